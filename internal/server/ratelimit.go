package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds per-client traffic. A zero limit is unbounded.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerMinute > 0 || c.RequestsPerHour > 0 || c.MaxRequestsPerDay > 0 || c.MaxDataPerDay > 0
}

// RateLimiter tracks fixed-window request counts per client.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	now   func() time.Time
	usage map[string]*clientUsage
}

type clientUsage struct {
	minuteStart time.Time
	minute      int
	hourStart   time.Time
	hour        int
	dayStart    time.Time
	day         int
	dataDay     int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a limiter with the given bounds.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, now: time.Now, usage: make(map[string]*clientUsage)}
}

// Allow records a request of dataSize bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage[client]
	if u == nil {
		u = &clientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.usage[client] = u
	}
	u.roll(now)

	if rl.cfg.RequestsPerMinute > 0 && u.minute >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.cfg.RequestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.cfg.RequestsPerHour > 0 && u.hour >= rl.cfg.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.cfg.RequestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.cfg.MaxRequestsPerDay > 0 && u.day >= rl.cfg.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.cfg.MaxRequestsPerDay), Used: int64(u.day), Resets: resets}
	}
	if rl.cfg.MaxDataPerDay > 0 && u.dataDay+dataSize > rl.cfg.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.cfg.MaxDataPerDay, Used: u.dataDay, Resets: resets}
	}

	u.minute++
	u.hour++
	u.day++
	u.dataDay += dataSize
	return nil
}

// Usage returns a copy of the counters for client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	u := rl.usage[client]
	if u == nil {
		return Usage{}
	}
	u.roll(rl.now())
	return Usage{RequestsThisMinute: u.minute, RequestsThisHour: u.hour, RequestsToday: u.day, DataToday: u.dataDay}
}

func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minute = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hour = now, 0
	}
	if day := startOfDay(now); day.After(u.dayStart) {
		u.dayStart, u.day, u.dataDay = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError is a per-minute or per-hour limit violation.
type RateLimitError struct {
	Type       string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError is a daily request or data quota violation.
type QuotaExceededError struct {
	Type   string
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
