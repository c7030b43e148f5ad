package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"phishguard/internal/config"
	"phishguard/internal/model"
	"phishguard/internal/service"
	"phishguard/internal/storage"
	"phishguard/internal/utils"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxDomainLength bounds the query parameter; full URLs are accepted.
const maxDomainLength = 2048

type Handler struct {
	Engine  *service.Engine
	Storage *storage.Storage
	Config  *config.Config
	Clock   service.Clock
}

func NewHandler(engine *service.Engine, store *storage.Storage, cfg *config.Config) *Handler {
	return &Handler{
		Engine:  engine,
		Storage: store,
		Config:  cfg,
		Clock:   service.SystemClock,
	}
}

// === Middleware ===

// AdminRequired guards mutating routes with a bearer token. Without a
// configured ADMIN_TOKEN the routes are open.
func (h *Handler) AdminRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.Config == nil || h.Config.AdminToken == "" {
			return next(c)
		}
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.Config.AdminToken)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return next(c)
	}
}

// === Routes ===

func (h *Handler) Check(c echo.Context) error {
	domain := strings.TrimSpace(c.QueryParam("domain"))
	if domain == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "domain is required"})
	}
	if len(domain) > maxDomainLength {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "domain too long"})
	}

	res := h.Engine.ClassifyDomain(c.Request().Context(), domain)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Refresh(c echo.Context) error {
	// The request context ends with the response; the refresh must not.
	go func() {
		if err := h.Engine.ForceRefresh(context.Background()); err != nil {
			utils.Log.Error("manual refresh failed", utils.Field("error", err.Error()))
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Engine.Stats())
}

func (h *Handler) History(c echo.Context) error {
	if h.Storage == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"entries": []model.HistoryEntry{}})
	}
	entries, err := h.Storage.GetSnapshotHistory(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports ready once a non-empty snapshot no older than
// MaxSnapshotAge is published.
func (h *Handler) Readyz(c echo.Context) error {
	stats := h.Engine.Stats()
	if stats.BuiltAt.IsZero() || stats.Allowed+stats.Blocked == 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "no snapshot"})
	}
	if h.Config != nil && h.Config.MaxSnapshotAge > 0 {
		if age := h.Clock.Now().Sub(stats.LastUpdated); age > h.Config.MaxSnapshotAge {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "snapshot too old", "age": age.String()})
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ready", "lastUpdated": stats.LastUpdated})
}
