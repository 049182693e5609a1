package bots

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/models"
)

// ErrNoBotAvailable is a normal outcome, not a failure: every bot is offline,
// at capacity or has an expired session. Callers queue and retry.
var ErrNoBotAvailable = errors.New("no bot available")

// Registry is the single owner of all bot state. Every mutation (status,
// session expiry, load counters) goes through it under one mutex, so two
// concurrent assignments can never push a bot past its configured maximum.
type Registry struct {
	mu   sync.Mutex
	bots map[string]*models.Bot
	log  *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		bots: make(map[string]*models.Bot),
		log:  log,
	}
}

func (r *Registry) Register(bot models.Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := bot
	r.bots[b.Handle] = &b
}

func (r *Registry) SetStatus(handle, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[handle]; ok {
		b.Status = status
	}
}

func (r *Registry) SetSessionExpiry(handle string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[handle]; ok {
		b.SessionExpiresAt = expiresAt
	}
}

// Acquire takes one slot on a specific bot. Used on dropoff-leg retries where
// the item already sits in that bot's inventory.
func (r *Registry) Acquire(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[handle]
	if !ok {
		return fmt.Errorf("unknown bot %q", handle)
	}
	if !b.Eligible(time.Now()) {
		return ErrNoBotAvailable
	}
	b.ActiveTrades++
	b.LastAssignedAt = time.Now()
	return nil
}

// AcquireBest selects and acquires in one critical section, so the capacity
// check and the increment are atomic with respect to concurrent assignments.
func (r *Registry) AcquireBest() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]models.Bot, 0, len(r.bots))
	for _, b := range r.bots {
		snapshot = append(snapshot, *b)
	}
	handle, err := SelectBot(snapshot, time.Now())
	if err != nil {
		return "", err
	}

	b := r.bots[handle]
	b.ActiveTrades++
	b.LastAssignedAt = time.Now()
	return handle, nil
}

func (r *Registry) Release(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[handle]
	if !ok {
		return
	}
	if b.ActiveTrades <= 0 {
		r.log.Warn("release on bot with zero load", zap.String("bot", handle))
		return
	}
	b.ActiveTrades--
}

// SetLoad overwrites a bot's counter from the reconciliation sweep, which
// recomputes load from actual in-flight trade records.
func (r *Registry) SetLoad(handle string, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[handle]
	if !ok {
		return
	}
	if b.ActiveTrades != active {
		r.log.Warn("bot load drift corrected",
			zap.String("bot", handle),
			zap.Int("counted", b.ActiveTrades),
			zap.Int("actual", active),
		)
		b.ActiveTrades = active
	}
}

// Snapshot returns copies sorted by handle, for the admin view and sweeps.
func (r *Registry) Snapshot() []models.Bot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
