package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/model"
)

var codeRe = regexp.MustCompile(`\d{6}`)

// fixedLookup serves one open session regardless of identity, or an error.
type fixedLookup struct {
	sess *Session
	err  error
}

func (l *fixedLookup) Lookup(number string) (*Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.sess, nil
}

func newOTPFixture(t *testing.T) (*OTPService, *fakeClient, *memConfigs) {
	t.Helper()
	client := newFakeClient(true)
	configs := newMemConfigs()
	svc := NewOTPService(zaptest.NewLogger(t), configs,
		&fixedLookup{sess: newOpenSession(client)}, 5*time.Minute)
	return svc, client, configs
}

// deliveredCode extracts the 6-digit code from the last message sent to self.
func deliveredCode(t *testing.T, client *fakeClient) string {
	t.Helper()
	sent := client.sentMessages()
	require.NotEmpty(t, sent)
	code := codeRe.FindString(sent[len(sent)-1].text)
	require.Len(t, code, 6)
	return code
}

func TestOTP_HappyPath(t *testing.T) {
	svc, client, configs := newOTPFixture(t)
	ctx := context.Background()
	payload := model.Settings{"AUTO_REACT": "on"}

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", payload))
	code := deliveredCode(t, client)

	require.NoError(t, svc.Verify(ctx, "263714000001", code))
	require.Equal(t, payload, configs.get("263714000001"))

	// challenge is consumed
	require.ErrorIs(t, svc.Verify(ctx, "263714000001", code), errs.ErrOTPNotFound)
}

func TestOTP_MismatchKeepsChallenge(t *testing.T) {
	svc, client, configs := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", model.Settings{"K": "v"}))
	code := deliveredCode(t, client)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	require.ErrorIs(t, svc.Verify(ctx, "263714000001", wrong), errs.ErrOTPMismatch)
	require.Nil(t, configs.get("263714000001"))

	// the correct code still works after a mismatch
	require.NoError(t, svc.Verify(ctx, "263714000001", code))
}

func TestOTP_Expiry(t *testing.T) {
	svc, client, _ := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", model.Settings{"K": "v"}))
	code := deliveredCode(t, client)

	svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	require.ErrorIs(t, svc.Verify(ctx, "263714000001", code), errs.ErrOTPExpired)

	// an expired challenge is dropped, not retried
	svc.now = time.Now
	require.ErrorIs(t, svc.Verify(ctx, "263714000001", code), errs.ErrOTPNotFound)
}

func TestOTP_VerifyWithoutRequest(t *testing.T) {
	svc, _, _ := newOTPFixture(t)
	require.ErrorIs(t, svc.Verify(context.Background(), "263714000001", "123456"), errs.ErrOTPNotFound)
}

func TestOTP_NoActiveSession(t *testing.T) {
	svc := NewOTPService(zaptest.NewLogger(t), newMemConfigs(),
		&fixedLookup{err: errs.ErrNoActiveSession}, 5*time.Minute)
	err := svc.RequestUpdate(context.Background(), "263714000001", model.Settings{})
	require.ErrorIs(t, err, errs.ErrNoActiveSession)
}

func TestOTP_NewRequestOverwritesPrior(t *testing.T) {
	svc, client, configs := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", model.Settings{"K": "old"}))
	first := deliveredCode(t, client)

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", model.Settings{"K": "new"}))
	second := deliveredCode(t, client)

	if first != second {
		require.ErrorIs(t, svc.Verify(ctx, "263714000001", first), errs.ErrOTPMismatch)
	}
	require.NoError(t, svc.Verify(ctx, "263714000001", second))
	require.Equal(t, "new", configs.get("263714000001")["K"])
}

func TestOTP_DeliveryFailureRollsBack(t *testing.T) {
	svc, client, _ := newOTPFixture(t)
	client.sendErr = errors.New("socket closed")

	err := svc.RequestUpdate(context.Background(), "263714000001", model.Settings{"K": "v"})
	require.Error(t, err)

	client.sendErr = nil
	require.ErrorIs(t, svc.Verify(context.Background(), "263714000001", "123456"), errs.ErrOTPNotFound)
}

func TestOTP_SaveFailureKeepsChallenge(t *testing.T) {
	svc, client, configs := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestUpdate(ctx, "263714000001", model.Settings{"K": "v"}))
	code := deliveredCode(t, client)

	configs.setSaveErr(errors.New("connection reset"))
	require.Error(t, svc.Verify(ctx, "263714000001", code))

	configs.setSaveErr(nil)
	require.NoError(t, svc.Verify(ctx, "263714000001", code))
	require.Equal(t, "v", configs.get("263714000001")["K"])
}
