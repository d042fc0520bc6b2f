// Package service contains the session lifecycle manager, command dispatcher,
// and the OTP-gated configuration update flow.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/crypto"
	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/metrics"
	"github.com/marwld/minibot/internal/model"
	"github.com/marwld/minibot/internal/repository"
	"github.com/marwld/minibot/internal/retry"
	"github.com/marwld/minibot/internal/transport"
)

// PairingSink receives the one-time pairing code produced during connection
// establishment. Implementations deliver at most once; extra calls are no-ops.
type PairingSink interface {
	Code(code string)
}

// NopSink discards pairing codes; used by background reconnects and bulk ops.
type NopSink struct{}

// Code implements PairingSink.
func (NopSink) Code(string) {}

// Lifecycle is the connection lifecycle surface consumed by the HTTP layer.
type Lifecycle interface {
	// Establish creates a connection for the number, delivering any pairing
	// code to sink. Returns errs.ErrAlreadyConnected when one exists.
	Establish(ctx context.Context, number string, sink PairingSink) error
	// ConnectAll reconnects every identity in the durable registry.
	ConnectAll(ctx context.Context) ([]model.BulkResult, error)
	// ReconnectAll reconnects every identity with stored credentials.
	ReconnectAll(ctx context.Context) ([]model.BulkResult, error)
	// Active returns the identities with an open connection.
	Active() []string
	// About fetches a third party's public status text via a live connection.
	About(ctx context.Context, number, target string) (model.About, error)
}

// Stores groups the durable record repositories behind the lifecycle manager.
type Stores struct {
	Sessions repository.SessionRepository
	Configs  repository.ConfigRepository
	Numbers  repository.NumberRepository
}

// ManagerConfig carries the tunables of the lifecycle state machine.
type ManagerConfig struct {
	GroupInviteLink string
	ChannelAddress  string
	ChannelPostID   string
	AdminNumbers    []string
	Defaults        model.Settings

	MaxRetries      int
	RetryBase       time.Duration // group join, channel react, pairing code
	StatusRetryBase time.Duration // status-feed read/react
	PairingPreDelay time.Duration // settle before each pairing-code request
	SettleDelay     time.Duration // after "open" before post-connect side effects
	ReconnectDelay  time.Duration // after recoverable close
	BulkDelay       time.Duration // between bulk-reconnect iterations
}

// DefaultManagerConfig returns the stock tunables.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetries:      3,
		RetryBase:       2 * time.Second,
		StatusRetryBase: time.Second,
		PairingPreDelay: 1500 * time.Millisecond,
		SettleDelay:     3 * time.Second,
		ReconnectDelay:  10 * time.Second,
		BulkDelay:       time.Second,
	}
}

// Session is one live connection owned by the Manager. A Session exists in
// the registry from the moment establishment is decided (reserving the
// identity) and becomes externally visible once the connection opens.
type Session struct {
	id        uuid.UUID
	identity  string
	createdAt time.Time
	client    transport.Client

	mu       sync.RWMutex
	settings model.Settings
	open     bool
}

// Identity returns the normalized identity the session is bound to.
func (s *Session) Identity() string { return s.identity }

// CreatedAt returns the connection creation timestamp (uptime anchor).
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Client returns the underlying transport connection.
func (s *Session) Client() transport.Client { return s.client }

// Settings returns the per-identity settings loaded at open time.
func (s *Session) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Session) setSettings(cfg model.Settings) {
	s.mu.Lock()
	s.settings = cfg
	s.mu.Unlock()
}

func (s *Session) isOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

func (s *Session) markOpen() {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
}

// Manager owns the identity→connection registry and drives the
// create/restore/reconnect/teardown state machine.
type Manager struct {
	log        *zap.Logger
	dialer     transport.Dialer
	stores     Stores
	sealer     *crypto.Sealer
	cfg        ManagerConfig
	retry      *retry.Engine
	statusTry  *retry.Engine
	dispatcher *Dispatcher

	// ctx bounds background work (reconnect sleeps, event handlers) to the
	// process lifetime.
	ctx context.Context

	mu       sync.Mutex
	sessions map[string]*Session

	escalate func(error)
}

var _ Lifecycle = (*Manager)(nil)

// NewManager constructs the lifecycle manager. ctx should span the process.
func NewManager(ctx context.Context, log *zap.Logger, dialer transport.Dialer, stores Stores, sealer *crypto.Sealer, cfg ManagerConfig) *Manager {
	m := &Manager{
		log:       log,
		dialer:    dialer,
		stores:    stores,
		sealer:    sealer,
		cfg:       cfg,
		retry:     retry.New(log, cfg.MaxRetries, cfg.RetryBase),
		statusTry: retry.New(log, cfg.MaxRetries, cfg.StatusRetryBase),
		ctx:       ctx,
		sessions:  make(map[string]*Session),
		escalate:  func(error) {},
	}
	m.dispatcher = NewDispatcher(log)
	return m
}

// OnFatal installs the process-supervisor hook invoked when the post-connect
// sequence fails in a way the state machine cannot contain.
func (m *Manager) OnFatal(fn func(error)) { m.escalate = fn }

// Establish implements the primary entry point of the lifecycle state machine.
// The identity is reserved in the registry before any suspension point, so a
// concurrent duplicate request observes ErrAlreadyConnected immediately.
func (m *Manager) Establish(ctx context.Context, number string, sink PairingSink) error {
	identity := model.NormalizeIdentity(number)
	if identity == "" {
		return errors.New("empty identity")
	}

	m.mu.Lock()
	if _, exists := m.sessions[identity]; exists {
		m.mu.Unlock()
		return errs.ErrAlreadyConnected
	}
	sess := &Session{
		id:        uuid.Must(uuid.NewV4()),
		identity:  identity,
		createdAt: time.Now(),
	}
	m.sessions[identity] = sess
	m.mu.Unlock()

	established := false
	defer func() {
		if !established {
			m.removeIfCurrent(sess)
			if sess.client != nil {
				_ = sess.client.Close()
			}
		}
	}()

	if err := m.stores.Sessions.PruneDuplicates(ctx, identity); err != nil {
		return fmt.Errorf("prune session records: %w", err)
	}
	if err := m.stores.Configs.PruneDuplicates(ctx, identity); err != nil {
		return fmt.Errorf("prune config records: %w", err)
	}

	sealed, err := m.stores.Sessions.Restore(ctx, identity)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	var creds []byte
	if sealed != nil {
		creds, err = m.sealer.Open(sealed)
		if err != nil {
			// Sealed under a different key or corrupt; pair fresh.
			m.log.Warn("stored credentials unreadable, pairing fresh",
				zap.String("identity", identity), zap.Error(err))
			creds = nil
		} else {
			m.log.Info("restored session from store", zap.String("identity", identity))
		}
	}

	client, err := m.dialer.Dial(ctx, identity, transport.AuthState{Creds: creds})
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}
	sess.client = client

	// Event subscriptions must be live before any inbound traffic.
	go m.run(sess)

	if !client.Registered() {
		var code string
		res := m.retry.Do(ctx, "pairing code", func(ctx context.Context) error {
			sleep(ctx, m.cfg.PairingPreDelay)
			metrics.PairingAttempts.Inc()
			c, err := client.RequestPairingCode(ctx, identity)
			if err != nil {
				return err
			}
			code = c
			return nil
		})
		if !res.OK {
			return fmt.Errorf("request pairing code: %w", res.Err)
		}
		sink.Code(code)
	}

	established = true
	return nil
}

// ConnectAll reconnects every identity in the durable registry.
func (m *Manager) ConnectAll(ctx context.Context) ([]model.BulkResult, error) {
	ids, err := m.stores.Numbers.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	if len(ids) == 0 {
		return nil, errs.ErrNotFound
	}
	return m.bulkEstablish(ctx, ids), nil
}

// ReconnectAll reconnects every identity with stored credential records.
func (m *Manager) ReconnectAll(ctx context.Context) ([]model.BulkResult, error) {
	ids, err := m.stores.Sessions.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	if len(ids) == 0 {
		return nil, errs.ErrNotFound
	}
	return m.bulkEstablish(ctx, ids), nil
}

// bulkEstablish drives Establish per identity with a fixed inter-iteration
// delay so the batch does not stampede the transport's connection endpoint.
// One identity's failure never aborts the batch.
func (m *Manager) bulkEstablish(ctx context.Context, ids []string) []model.BulkResult {
	results := make([]model.BulkResult, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			sleep(ctx, m.cfg.BulkDelay)
		}
		err := m.Establish(ctx, id, NopSink{})
		switch {
		case err == nil:
			results = append(results, model.BulkResult{Identity: id, Status: model.StatusConnectionInitiated})
		case errors.Is(err, errs.ErrAlreadyConnected):
			results = append(results, model.BulkResult{Identity: id, Status: model.StatusAlreadyConnected})
		default:
			m.log.Warn("bulk establish failed", zap.String("identity", id), zap.Error(err))
			results = append(results, model.BulkResult{Identity: id, Status: model.StatusFailed, Error: err.Error()})
		}
	}
	return results
}

// Active returns the identities whose connections are open.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id, sess := range m.sessions {
		if sess.isOpen() {
			out = append(out, id)
		}
	}
	return out
}

// Lookup returns the open session for a number, or errs.ErrNoActiveSession.
func (m *Manager) Lookup(number string) (*Session, error) {
	identity := model.NormalizeIdentity(number)
	m.mu.Lock()
	sess, ok := m.sessions[identity]
	m.mu.Unlock()
	if !ok || !sess.isOpen() {
		return nil, errs.ErrNoActiveSession
	}
	return sess, nil
}

// About fetches a third party's public status text via the live connection.
func (m *Manager) About(ctx context.Context, number, target string) (model.About, error) {
	sess, err := m.Lookup(number)
	if err != nil {
		return model.About{}, err
	}
	addr := transport.UserAddress(model.NormalizeIdentity(target))
	about, err := sess.client.FetchAbout(ctx, addr)
	if err != nil {
		return model.About{}, fmt.Errorf("fetch about for %s: %w", target, err)
	}
	return about, nil
}

// Shutdown closes every live connection and clears the registry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		if sess.client != nil {
			if err := sess.client.Close(); err != nil {
				m.log.Warn("close connection", zap.String("identity", sess.identity), zap.Error(err))
			}
		}
		if sess.isOpen() {
			metrics.LiveSessions.Dec()
		}
	}
}

// isCurrent reports whether sess still owns its identity in the registry.
// Orphaned subscriptions check this before acting so a stale reconnect cannot
// race a fresh connection.
func (m *Manager) isCurrent(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sess.identity] == sess
}

// removeIfCurrent deregisters sess; reports whether it was the current owner.
func (m *Manager) removeIfCurrent(sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sess.identity] != sess {
		return false
	}
	delete(m.sessions, sess.identity)
	return true
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
