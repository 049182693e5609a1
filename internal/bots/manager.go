package bots

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/skins-market/backend/internal/config"
	"github.com/skins-market/backend/internal/models"
	"github.com/skins-market/backend/internal/steam"
)

// Manager brings configured bots online: it restores persisted sessions where
// possible, performs fresh logins otherwise, and keeps sessions refreshed.
type Manager struct {
	registry *Registry
	store    *SessionStore
	client   *steam.Client
	cfg      *config.Config
	log      *zap.Logger
}

func NewManager(registry *Registry, store *SessionStore, client *steam.Client, cfg *config.Config, log *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		client:   client,
		cfg:      cfg,
		log:      log,
	}
}

// StartAll registers every configured bot. A bot whose login fails is
// registered in ERROR status so it shows up in the admin view but is never
// selected.
func (m *Manager) StartAll(ctx context.Context) {
	for _, account := range m.cfg.BotAccounts {
		bot := models.Bot{
			Handle:    account.Handle,
			SecretRef: account.SecretRef,
			MaxTrades: account.MaxTrades,
			Status:    models.BotStatusOffline,
		}

		session, err := m.ensureSession(ctx, account)
		if err != nil {
			m.log.Error("bot login failed", zap.String("bot", account.Handle), zap.Error(err))
			bot.Status = models.BotStatusError
			m.registry.Register(bot)
			continue
		}

		bot.Status = models.BotStatusOnline
		bot.SessionExpiresAt = session.ExpiresAt
		m.registry.Register(bot)
		m.log.Info("bot online",
			zap.String("bot", account.Handle),
			zap.Int("max_trades", account.MaxTrades),
			zap.Time("session_expires", session.ExpiresAt),
		)
	}
}

// ensureSession restores the stored session or logs in fresh. A fresh login
// always overwrites the stored session.
func (m *Manager) ensureSession(ctx context.Context, account config.BotAccount) (*steam.Session, error) {
	session, err := m.store.Load(ctx, account.Handle)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		m.log.Warn("session store read failed, falling back to login",
			zap.String("bot", account.Handle), zap.Error(err))
	}

	session, err = m.client.Login(ctx, account.Handle, account.SecretRef)
	if err != nil {
		return nil, err
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = time.Now().Add(m.cfg.DefaultSessionLifetime)
	}
	if err := m.store.Save(ctx, account.Handle, session); err != nil {
		m.log.Warn("failed to persist session", zap.String("bot", account.Handle), zap.Error(err))
	}
	return session, nil
}

// Session returns the current session for a bot, re-authenticating if the
// stored one is gone.
func (m *Manager) Session(ctx context.Context, handle string) (*steam.Session, error) {
	for _, account := range m.cfg.BotAccounts {
		if account.Handle == handle {
			return m.ensureSession(ctx, account)
		}
	}
	return nil, errors.New("bot is not configured: " + handle)
}

// RefreshSessions re-authenticates bots whose session expires within the
// configured margin, and revives bots stuck in ERROR.
func (m *Manager) RefreshSessions(ctx context.Context) {
	deadline := time.Now().Add(m.cfg.SessionRefreshMargin)

	for _, bot := range m.registry.Snapshot() {
		if bot.Status == models.BotStatusOnline && bot.SessionExpiresAt.After(deadline) {
			continue
		}

		account, ok := m.findAccount(bot.Handle)
		if !ok {
			continue
		}

		_ = m.store.Invalidate(ctx, bot.Handle)
		session, err := m.ensureSession(ctx, account)
		if err != nil {
			m.log.Error("session refresh failed", zap.String("bot", bot.Handle), zap.Error(err))
			m.registry.SetStatus(bot.Handle, models.BotStatusError)
			continue
		}

		m.registry.SetSessionExpiry(bot.Handle, session.ExpiresAt)
		m.registry.SetStatus(bot.Handle, models.BotStatusOnline)
		m.log.Info("bot session refreshed",
			zap.String("bot", bot.Handle),
			zap.Time("session_expires", session.ExpiresAt),
		)
	}
}

// Reconcile overwrites load counters from the in-flight trade counts, the
// safety net for slots stranded by a crash mid-trade.
func (m *Manager) Reconcile(activeByBot map[string]int) {
	for _, bot := range m.registry.Snapshot() {
		m.registry.SetLoad(bot.Handle, activeByBot[bot.Handle])
	}
}

func (m *Manager) findAccount(handle string) (config.BotAccount, bool) {
	for _, account := range m.cfg.BotAccounts {
		if account.Handle == handle {
			return account, true
		}
	}
	return config.BotAccount{}, false
}
