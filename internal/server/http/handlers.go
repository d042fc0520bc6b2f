package httpserver

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/errs"
	"github.com/marwld/minibot/internal/model"
)

type statusResponse struct {
	Status string `json:"status"`
}

type pingResponse struct {
	Status        string `json:"status"`
	ActiveSession int    `json:"activesession"`
}

type codeResponse struct {
	Code string `json:"code"`
}

type activeResponse struct {
	Count   int      `json:"count"`
	Numbers []string `json:"numbers"`
}

type bulkResponse struct {
	Status      string             `json:"status"`
	Connections []model.BulkResult `json:"connections"`
}

type aboutResponse struct {
	About string `json:"about"`
	SetAt string `json:"set_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pairingResponder delivers the pairing code as the HTTP response, at most
// once. When no code was delivered the handler owns the response.
type pairingResponder struct {
	w    http.ResponseWriter
	once sync.Once

	mu    sync.Mutex
	wrote bool
}

func (p *pairingResponder) Code(code string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.wrote = true
		p.mu.Unlock()
		writeJSON(p.w, http.StatusOK, codeResponse{Code: code})
	})
}

func (p *pairingResponder) delivered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrote
}

// handleConnect pairs or restores a connection for ?number=.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if model.NormalizeIdentity(number) == "" {
		writeError(w, http.StatusBadRequest, "number is required")
		return
	}

	sink := &pairingResponder{w: w}
	err := s.life.Establish(r.Context(), number, sink)
	switch {
	case err == nil:
		if !sink.delivered() {
			writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusConnectionInitiated})
		}
	case errors.Is(err, errs.ErrAlreadyConnected):
		writeJSON(w, http.StatusOK, statusResponse{Status: model.StatusAlreadyConnected})
	default:
		if !sink.delivered() {
			writeError(w, http.StatusServiceUnavailable, "failed to initiate connection: "+err.Error())
		}
	}
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	numbers := s.life.Active()
	if numbers == nil {
		numbers = []string{}
	}
	writeJSON(w, http.StatusOK, activeResponse{Count: len(numbers), Numbers: numbers})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pingResponse{Status: "active", ActiveSession: len(s.life.Active())})
}

func (s *Server) handleConnectAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.life.ConnectAll(r.Context())
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "no numbers registered")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, bulkResponse{Status: "success", Connections: results})
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	results, err := s.life.ReconnectAll(r.Context())
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "no stored sessions")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, bulkResponse{Status: "success", Connections: results})
	}
}

// handleUpdateConfig stages the JSON settings blob from ?config= and sends an
// OTP to the account.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, configString := q.Get("number"), q.Get("config")
	if model.NormalizeIdentity(number) == "" || configString == "" {
		writeError(w, http.StatusBadRequest, "number and config are required")
		return
	}

	var settings model.Settings
	if err := json.Unmarshal([]byte(configString), &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config format")
		return
	}

	err := s.updater.RequestUpdate(r.Context(), number, settings)
	switch {
	case errors.Is(err, errs.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "no active session for this number")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "otp_sent"})
	}
}

// handleVerifyOTP checks ?otp= against the pending challenge for ?number=.
// Attempts are rate limited per (identity, caller IP).
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, code := q.Get("number"), q.Get("otp")
	identity := model.NormalizeIdentity(number)
	if identity == "" || code == "" {
		writeError(w, http.StatusBadRequest, "number and otp are required")
		return
	}

	ipHash := hashIP(r.RemoteAddr)
	if s.lim != nil {
		allowed, retryAfter, err := s.lim.Allow(r.Context(), identity, ipHash)
		if err != nil {
			// limiter outage must not lock users out
			s.log.Warn("otp limiter check failed", zap.Error(err))
		} else if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter/time.Second)))
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}
	}

	err := s.updater.Verify(r.Context(), number, code)
	switch {
	case err == nil:
		if s.lim != nil {
			if lerr := s.lim.Success(r.Context(), identity, ipHash); lerr != nil {
				s.log.Warn("otp limiter reset failed", zap.Error(lerr))
			}
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
	case errors.Is(err, errs.ErrOTPNotFound):
		writeError(w, http.StatusNotFound, "no otp request found")
	case errors.Is(err, errs.ErrOTPExpired):
		writeError(w, http.StatusGone, "otp expired")
	case errors.Is(err, errs.ErrOTPMismatch):
		if s.lim != nil {
			if _, _, lerr := s.lim.Failure(r.Context(), identity, ipHash); lerr != nil {
				s.log.Warn("otp limiter record failed", zap.Error(lerr))
			}
		}
		writeError(w, http.StatusUnauthorized, "invalid otp")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleGetAbout fetches ?target='s public status text via ?number='s connection.
func (s *Server) handleGetAbout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, target := q.Get("number"), q.Get("target")
	if model.NormalizeIdentity(number) == "" || model.NormalizeIdentity(target) == "" {
		writeError(w, http.StatusBadRequest, "number and target are required")
		return
	}

	about, err := s.life.About(r.Context(), number, target)
	switch {
	case errors.Is(err, errs.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "no active session for this number")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		resp := aboutResponse{About: about.Text}
		if !about.SetAt.IsZero() {
			resp.SetAt = about.SetAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// hashIP returns a stable digest of the caller's IP, stripped of the port.
func hashIP(remoteAddr string) []byte {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return sum[:]
}
