package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/metrics"
	"github.com/marwld/minibot/internal/model"
	"github.com/marwld/minibot/internal/retry"
	"github.com/marwld/minibot/internal/transport"
)

// fallbackEmojis is used for reactions when the configured list is empty.
var fallbackEmojis = []string{"🫠", "🥶", "🔮", "❤️"}

// pickEmoji returns a random reaction emoji from the AUTO_LIKE_EMOJI list.
func pickEmoji(settings model.Settings) string {
	emojis := settings.List(model.KeyAutoLikeEmoji)
	if len(emojis) == 0 {
		emojis = fallbackEmojis
	}
	return emojis[rand.Intn(len(emojis))]
}

// run is the per-connection event loop. It exits when the transport closes
// its event channel, which implementations do after emitting Closed.
func (m *Manager) run(sess *Session) {
	for ev := range sess.client.Events() {
		switch e := ev.(type) {
		case transport.Opened:
			m.handleOpened(sess)
		case transport.CredsRotated:
			m.handleCredsRotated(sess, e)
		case transport.Closed:
			m.handleClosed(sess, e)
		case transport.Message:
			m.handleMessage(sess, e)
		case transport.MessagesDeleted:
			m.handleRevoked(sess, e)
		}
	}
}

// handleOpened runs the post-connect sequence. A failure here leaves the
// process in a state the state machine cannot repair, so it is escalated to
// the process supervisor hook after logging.
func (m *Manager) handleOpened(sess *Session) {
	if err := m.postConnect(sess); err != nil {
		m.log.Error("post-connect sequence failed",
			zap.String("identity", sess.identity), zap.Error(err))
		m.escalate(err)
	}
}

func (m *Manager) postConnect(sess *Session) error {
	ctx := m.ctx

	// Let the transport finish its own handshake chatter before we act.
	sleep(ctx, m.cfg.SettleDelay)
	if !m.isCurrent(sess) {
		return nil
	}

	groupNote := m.joinGroup(ctx, sess)
	m.reactToPinnedPost(ctx, sess)

	settings, err := m.stores.Configs.Load(ctx, sess.identity)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		settings = m.cfg.Defaults.Clone()
		if err := m.stores.Configs.Save(ctx, sess.identity, settings); err != nil {
			return fmt.Errorf("persist default config: %w", err)
		}
	case err != nil:
		// Run on defaults rather than refuse the connection.
		m.log.Warn("load config failed, using defaults",
			zap.String("identity", sess.identity), zap.Error(err))
		settings = m.cfg.Defaults.Clone()
	}
	sess.setSettings(settings)

	m.mu.Lock()
	if m.sessions[sess.identity] != sess {
		m.mu.Unlock()
		return nil
	}
	sess.markOpen()
	m.mu.Unlock()
	metrics.LiveSessions.Inc()
	m.log.Info("connection open", zap.String("identity", sess.identity))

	if err := m.stores.Numbers.Add(ctx, sess.identity); err != nil {
		return fmt.Errorf("register number: %w", err)
	}

	m.sendWelcome(ctx, sess, groupNote)
	m.notifyAdmins(ctx, sess)
	return nil
}

// joinGroup joins the configured support group, returning a human-readable
// note for the welcome message. Failure is reported, never fatal.
func (m *Manager) joinGroup(ctx context.Context, sess *Session) string {
	if m.cfg.GroupInviteLink == "" {
		return ""
	}
	code, err := transport.InviteCodeFromLink(m.cfg.GroupInviteLink)
	if err != nil {
		m.log.Warn("bad group invite link", zap.Error(err))
		return "Could not join support group: invite link is invalid"
	}
	res := m.retry.Do(ctx, "join group", func(ctx context.Context) error {
		_, err := sess.client.AcceptGroupInvite(ctx, code)
		return err
	})
	if res.OK {
		return "Joined the support group"
	}
	if res.Kind == retry.KindConflict {
		return "Already in the support group"
	}
	m.log.Warn("join group failed",
		zap.String("identity", sess.identity),
		zap.Int("attempts", res.Attempts),
		zap.String("kind", string(res.Kind)),
		zap.Error(res.Err))
	return "Could not join support group: " + res.Message
}

// reactToPinnedPost follows the announcement channel and reacts to its pinned
// post. Best effort on both steps.
func (m *Manager) reactToPinnedPost(ctx context.Context, sess *Session) {
	if m.cfg.ChannelAddress == "" {
		return
	}
	if err := sess.client.FollowChannel(ctx, m.cfg.ChannelAddress); err != nil {
		m.log.Warn("follow channel", zap.String("identity", sess.identity), zap.Error(err))
		return
	}
	if m.cfg.ChannelPostID == "" {
		return
	}
	res := m.retry.Do(ctx, "react to pinned post", func(ctx context.Context) error {
		return sess.client.ReactToChannelPost(ctx, m.cfg.ChannelAddress, m.cfg.ChannelPostID, "❤️")
	})
	if !res.OK {
		m.log.Warn("react to pinned post failed",
			zap.String("identity", sess.identity), zap.Error(res.Err))
	}
}

func (m *Manager) sendWelcome(ctx context.Context, sess *Session, groupNote string) {
	var b strings.Builder
	b.WriteString("✅ Connected successfully!\n\n")
	b.WriteString("Number: " + sess.identity + "\n")
	b.WriteString("Prefix: " + sess.Settings().Prefix() + "\n")
	if groupNote != "" {
		b.WriteString(groupNote + "\n")
	}
	b.WriteString("\nSend " + sess.Settings().Prefix() + "menu to see available commands.")
	if _, err := sess.client.SendText(ctx, sess.client.SelfAddress(), b.String()); err != nil {
		m.log.Warn("send welcome", zap.String("identity", sess.identity), zap.Error(err))
	}
}

func (m *Manager) notifyAdmins(ctx context.Context, sess *Session) {
	if len(m.cfg.AdminNumbers) == 0 {
		return
	}
	text := "New connection: " + sess.identity
	for _, admin := range m.cfg.AdminNumbers {
		addr := transport.UserAddress(model.NormalizeIdentity(admin))
		if _, err := sess.client.SendText(ctx, addr, text); err != nil {
			m.log.Warn("notify admin", zap.String("admin", admin), zap.Error(err))
		}
	}
}

// handleCredsRotated persists rotated auth material. Persistence failures are
// logged only; they must never feed back into the transport.
func (m *Manager) handleCredsRotated(sess *Session, e transport.CredsRotated) {
	sealed, err := m.sealer.Seal(e.Creds)
	if err != nil {
		m.log.Error("seal credentials", zap.String("identity", sess.identity), zap.Error(err))
		return
	}
	if err := m.stores.Sessions.Persist(m.ctx, sess.identity, sealed); err != nil {
		m.log.Error("persist credentials", zap.String("identity", sess.identity), zap.Error(err))
	}
}

// handleClosed decides between terminal teardown and auto-reconnect.
func (m *Manager) handleClosed(sess *Session, e transport.Closed) {
	if !m.removeIfCurrent(sess) {
		// A fresh connection already owns the identity; this close belongs
		// to an orphaned subscription.
		return
	}
	if sess.isOpen() {
		metrics.LiveSessions.Dec()
	}

	if e.AuthRevoked {
		m.log.Warn("authorization revoked, deregistering",
			zap.String("identity", sess.identity), zap.Error(e.Err))
		if err := m.stores.Sessions.Delete(m.ctx, sess.identity); err != nil {
			m.log.Error("delete session records",
				zap.String("identity", sess.identity), zap.Error(err))
		}
		return
	}

	m.log.Info("connection lost, scheduling reconnect",
		zap.String("identity", sess.identity),
		zap.Duration("delay", m.cfg.ReconnectDelay),
		zap.Error(e.Err))
	metrics.Reconnects.Inc()

	// New goroutine per cycle; repeated losses never deepen a stack.
	go func() {
		sleep(m.ctx, m.cfg.ReconnectDelay)
		if m.ctx.Err() != nil {
			return
		}
		err := m.Establish(m.ctx, sess.identity, NopSink{})
		if err != nil && !errors.Is(err, errs.ErrAlreadyConnected) {
			m.log.Warn("reconnect failed", zap.String("identity", sess.identity), zap.Error(err))
		}
	}()
}

// handleMessage routes inbound traffic to channel reactions, status-feed
// automation, or the command dispatcher.
func (m *Manager) handleMessage(sess *Session, e transport.Message) {
	switch {
	case m.cfg.ChannelAddress != "" && e.Chat == m.cfg.ChannelAddress:
		m.reactToChannelPost(sess, e)
	case e.Chat == transport.StatusFeed:
		m.handleStatusPost(sess, e)
	default:
		settings := sess.Settings()
		if settings.Enabled(model.KeyAutoReact) {
			if err := sess.client.SendPresence(m.ctx, e.Chat, transport.PresenceRecording); err != nil {
				m.log.Debug("send presence", zap.Error(err))
			}
		}
		m.dispatcher.Handle(m.ctx, sess, e, settings)
	}
}

// reactToChannelPost reacts to new posts in the announcement channel with a
// random emoji from the configured list.
func (m *Manager) reactToChannelPost(sess *Session, e transport.Message) {
	if e.ServerID == "" {
		return
	}
	emoji := pickEmoji(sess.Settings())
	res := m.retry.Do(m.ctx, "react to channel post", func(ctx context.Context) error {
		return sess.client.ReactToChannelPost(ctx, e.Chat, e.ServerID, emoji)
	})
	if !res.OK {
		m.log.Warn("react to channel post failed",
			zap.String("identity", sess.identity), zap.Error(res.Err))
	}
}

// handleStatusPost applies the per-identity status automation: view and like.
func (m *Manager) handleStatusPost(sess *Session, e transport.Message) {
	if e.Sender == "" {
		return
	}
	settings := sess.Settings()

	if settings.Enabled(model.KeyAutoViewStatus) {
		res := m.statusTry.Do(m.ctx, "view status", func(ctx context.Context) error {
			return sess.client.MarkRead(ctx, e.Chat, []string{e.ID})
		})
		if !res.OK {
			m.log.Warn("view status failed", zap.String("identity", sess.identity), zap.Error(res.Err))
		}
	}

	if settings.Enabled(model.KeyAutoLikeStatus) {
		emoji := pickEmoji(settings)
		res := m.statusTry.Do(m.ctx, "like status", func(ctx context.Context) error {
			return sess.client.SendReaction(ctx, e.Chat, e.ID, emoji)
		})
		if !res.OK {
			m.log.Warn("like status failed", zap.String("identity", sess.identity), zap.Error(res.Err))
		}
	}
}

// handleRevoked notifies the owning account about deleted messages.
func (m *Manager) handleRevoked(sess *Session, e transport.MessagesDeleted) {
	if e.Chat == transport.StatusFeed || len(e.IDs) == 0 {
		return
	}
	text := fmt.Sprintf("🗑️ %d message(s) deleted in %s at %s",
		len(e.IDs), e.Chat, time.Now().Format("15:04:05"))
	if _, err := sess.client.SendText(m.ctx, sess.client.SelfAddress(), text); err != nil {
		m.log.Debug("revocation notice", zap.Error(err))
	}
}
