package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"phishguard/internal/config"
	"phishguard/internal/model"
	"phishguard/internal/service"
	"phishguard/internal/storage"
	"phishguard/internal/utils"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

func init() {
	utils.TestInitLogger()
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setupMiniredis(t *testing.T) *storage.Storage {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &storage.Storage{Client: client}
}

// newTestHandler wires a real engine to a directory feed served locally.
func newTestHandler(t *testing.T, cfg *config.Config, refresh bool) (*Handler, *service.Engine) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":1,"whitelist":["uniswap.org"],"blacklist":["evil.com"]}`)
	}))
	t.Cleanup(srv.Close)

	store := setupMiniredis(t)
	agg := service.NewAggregator([]service.Feed{service.NewDirectoryFeed(srv.URL, srv.Client())},
		service.AggregatorConfig{RetryInitial: time.Millisecond}, nil)
	refresher := service.NewRefresher(agg, service.NewHolder(), store, store, nil, service.RefresherConfig{})
	engine := service.NewEngine(refresher, service.NewResultCache(time.Hour, nil), service.DefaultClassifierOptions())
	if refresh {
		if err := engine.ForceRefresh(context.Background()); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
	}
	return NewHandler(engine, store, cfg), engine
}

func TestCheck(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &config.Config{}, true)

	tests := []struct {
		domain   string
		code     int
		category model.Category
	}{
		{"uniswap.org", http.StatusOK, model.CategoryAllowed},
		{"https://www.evil.com/claim", http.StatusOK, model.CategoryBlocked},
		{"un1swap.org", http.StatusOK, model.CategoryFuzzy},
		{"", http.StatusBadRequest, ""},
		{strings.Repeat("a", maxDomainLength+1), http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/check?domain="+tt.domain, nil)
		rec := httptest.NewRecorder()
		if err := h.Check(e.NewContext(req, rec)); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if rec.Code != tt.code {
			t.Errorf("%q: expected %d, got %d", tt.domain, tt.code, rec.Code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var res model.ClassificationResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Category != tt.category {
			t.Errorf("%q: expected %s, got %s", tt.domain, tt.category, res.Category)
		}
	}
}

func TestAdminRequired(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &config.Config{AdminToken: "s3cret"}, false)
	next := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			if err := h.AdminRequired(next)(e.NewContext(req, rec)); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}

	t.Run("open without token", func(t *testing.T) {
		open := &Handler{Config: &config.Config{}}
		rec := httptest.NewRecorder()
		_ = open.AdminRequired(next)(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected open route, got %d", rec.Code)
		}
	})
}

func TestRefresh(t *testing.T) {
	e := echo.New()
	h, engine := newTestHandler(t, &config.Config{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	rec := httptest.NewRecorder()
	if err := h.Refresh(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.Snapshot().AllowedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if engine.Snapshot().AllowedCount() != 1 {
		t.Error("refresh did not publish a snapshot")
	}
}

func TestStatsAndHistory(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &config.Config{}, true)

	rec := httptest.NewRecorder()
	if err := h.Stats(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil), rec)); err != nil {
		t.Fatal(err)
	}
	var stats model.EngineStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Allowed != 1 || stats.Blocked != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	rec = httptest.NewRecorder()
	if err := h.History(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), rec)); err != nil {
		t.Fatal(err)
	}
	var body struct {
		Entries []model.HistoryEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Blocked != 1 {
		t.Errorf("unexpected history %+v", body.Entries)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	e := echo.New()
	cfg := &config.Config{MaxSnapshotAge: 48 * time.Hour}

	t.Run("Healthz", func(t *testing.T) {
		h, _ := newTestHandler(t, cfg, false)
		rec := httptest.NewRecorder()
		_ = h.Healthz(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("not ready before first snapshot", func(t *testing.T) {
		h, _ := newTestHandler(t, cfg, false)
		rec := httptest.NewRecorder()
		_ = h.Readyz(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("ready with fresh snapshot", func(t *testing.T) {
		h, _ := newTestHandler(t, cfg, true)
		rec := httptest.NewRecorder()
		_ = h.Readyz(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("not ready when snapshot too old", func(t *testing.T) {
		h, _ := newTestHandler(t, cfg, true)
		h.Clock = fixedClock{t: time.Now().Add(72 * time.Hour)}
		rec := httptest.NewRecorder()
		_ = h.Readyz(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}
