package service

import (
	"context"
	"phishguard/internal/utils"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedulePeriod = 6 * time.Hour
	nextDueKey            = "phishguard:refresh:next_due"
	storeTimeout          = 2 * time.Second
)

// RefreshTrigger is what the scheduler fires on every tick.
type RefreshTrigger interface {
	EnsureFresh(ctx context.Context) error
}

// Scheduler fires the background keep-fresh refresh on a fixed period,
// independent of query traffic. The next due time is persisted so a restart
// does not reset the cadence.
type Scheduler struct {
	Cron    *cron.Cron
	Store   KV
	Trigger RefreshTrigger
	Period  time.Duration

	mu     sync.Mutex
	next   time.Time
	primed bool
}

func NewScheduler(store KV, trigger RefreshTrigger, period time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultSchedulePeriod
	}
	return &Scheduler{
		Cron:    cron.New(),
		Store:   store,
		Trigger: trigger,
		Period:  period,
	}
}

func (s *Scheduler) Start() {
	s.loadNextDue()
	s.Cron.Schedule(s, cron.FuncJob(s.RunRefreshJob))
	s.Cron.Start()
	utils.Log.Info("scheduler started", utils.Field("period", s.Period.String()))
}

func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
}

// RunRefreshJob is the cron job body.
func (s *Scheduler) RunRefreshJob() {
	if s.Trigger == nil {
		return
	}
	if err := s.Trigger.EnsureFresh(context.Background()); err != nil {
		utils.Log.Error("scheduled refresh failed", utils.Field("error", err.Error()))
	}
}

// Next implements cron.Schedule. The first call honours the persisted due
// time (firing immediately when it has passed); every later call happens
// right after a run and moves the due time one period ahead.
func (s *Scheduler) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.primed = true
		if s.next.After(t) {
			return s.next
		}
		s.next = t
		return s.next
	}
	if s.next.After(t) {
		return s.next
	}
	s.next = t.Add(s.Period)
	s.saveNextDue(s.next)
	return s.next
}

func (s *Scheduler) NextDue() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) loadNextDue() {
	if s.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	val, ok, err := s.Store.Get(ctx, nextDueKey)
	if err != nil {
		utils.Log.Warn("scheduler could not read next due time", utils.Field("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		utils.Log.Warn("scheduler ignoring malformed next due time", utils.Field("value", val))
		return
	}

	s.mu.Lock()
	s.next = time.Unix(sec, 0)
	s.mu.Unlock()
}

func (s *Scheduler) saveNextDue(due time.Time) {
	if s.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.Store.Set(ctx, nextDueKey, strconv.FormatInt(due.Unix(), 10)); err != nil {
		utils.Log.Warn("scheduler could not persist next due time", utils.Field("error", err.Error()))
	}
}
