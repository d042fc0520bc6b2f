package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/crypto"
	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/metrics"
	"github.com/marwld/minibot/internal/model"
	"github.com/marwld/minibot/internal/repository"
)

// ConfigUpdater is the OTP-gated configuration surface consumed by HTTP.
type ConfigUpdater interface {
	// RequestUpdate stages a settings payload and delivers a one-time code
	// to the identity's own account.
	RequestUpdate(ctx context.Context, number string, settings model.Settings) error
	// Verify checks the code and, on match, commits the staged payload.
	Verify(ctx context.Context, number, code string) error
}

// LiveLookup resolves an open session for an identity.
type LiveLookup interface {
	Lookup(number string) (*Session, error)
}

// challenge is one pending configuration update awaiting verification.
// The code itself is never stored, only its salted hash.
type challenge struct {
	salt    []byte
	hash    []byte
	expiry  time.Time
	payload model.Settings
}

// OTPService implements the two-step config update flow. Challenges live in
// process memory only: a restart invalidates them, which is acceptable for a
// five-minute window.
type OTPService struct {
	log     *zap.Logger
	configs repository.ConfigRepository
	live    LiveLookup
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*challenge
}

var _ ConfigUpdater = (*OTPService)(nil)

// NewOTPService constructs the flow with the given challenge TTL.
func NewOTPService(log *zap.Logger, configs repository.ConfigRepository, live LiveLookup, ttl time.Duration) *OTPService {
	return &OTPService{
		log:     log,
		configs: configs,
		live:    live,
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]*challenge),
	}
}

// RequestUpdate stages settings behind a fresh challenge. A new request
// overwrites any pending challenge for the identity. If code delivery fails
// the challenge is rolled back so no unverifiable state lingers.
func (s *OTPService) RequestUpdate(ctx context.Context, number string, settings model.Settings) error {
	identity := model.NormalizeIdentity(number)
	sess, err := s.live.Lookup(identity)
	if err != nil {
		return err
	}

	code, err := crypto.NewCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	ch := &challenge{
		salt:    salt,
		hash:    crypto.HashCode(code, salt),
		expiry:  s.now().Add(s.ttl),
		payload: settings.Clone(),
	}

	s.mu.Lock()
	s.pending[identity] = ch
	s.mu.Unlock()

	text := fmt.Sprintf("🔐 Your config update code is: *%s*\n\nIt expires in %d minutes.",
		code, int(s.ttl.Minutes()))
	if _, err := sess.Client().SendText(ctx, sess.Client().SelfAddress(), text); err != nil {
		s.mu.Lock()
		if s.pending[identity] == ch {
			delete(s.pending, identity)
		}
		s.mu.Unlock()
		return fmt.Errorf("deliver code: %w", err)
	}

	s.log.Info("config update requested", zap.String("identity", identity))
	return nil
}

// Verify validates the code against the pending challenge in strict order:
// existence, expiry, match. A mismatch keeps the challenge alive for another
// attempt; a persistence failure keeps it alive too, so the same code can be
// retried after the store recovers.
func (s *OTPService) Verify(ctx context.Context, number, code string) error {
	identity := model.NormalizeIdentity(number)

	s.mu.Lock()
	ch, ok := s.pending[identity]
	s.mu.Unlock()
	if !ok {
		metrics.OTPVerifications.WithLabelValues("not_found").Inc()
		return errs.ErrOTPNotFound
	}
	if !s.now().Before(ch.expiry) {
		s.mu.Lock()
		if s.pending[identity] == ch {
			delete(s.pending, identity)
		}
		s.mu.Unlock()
		metrics.OTPVerifications.WithLabelValues("expired").Inc()
		return errs.ErrOTPExpired
	}
	if !crypto.VerifyCode(code, ch.salt, ch.hash) {
		metrics.OTPVerifications.WithLabelValues("mismatch").Inc()
		return errs.ErrOTPMismatch
	}

	if err := s.configs.Save(ctx, identity, ch.payload); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	s.mu.Lock()
	if s.pending[identity] == ch {
		delete(s.pending, identity)
	}
	s.mu.Unlock()
	metrics.OTPVerifications.WithLabelValues("success").Inc()
	s.log.Info("config updated", zap.String("identity", identity))

	// Confirmation is best effort; the commit already happened.
	if sess, err := s.live.Lookup(identity); err == nil {
		if _, err := sess.Client().SendText(ctx, sess.Client().SelfAddress(),
			"✅ Your configuration has been updated."); err != nil {
			s.log.Debug("config update notice failed", zap.Error(err))
		}
	}
	return nil
}
