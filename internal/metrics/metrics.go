// Package metrics holds process-wide Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LiveSessions tracks the size of the live-connection registry.
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "minibot_live_sessions",
		Help: "Number of open transport connections.",
	})

	// PairingAttempts counts pairing-code requests issued to the transport.
	PairingAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minibot_pairing_attempts_total",
		Help: "Pairing-code requests issued, including retries.",
	})

	// Reconnects counts recoverable-close reconnect transitions.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minibot_reconnects_total",
		Help: "Auto-reconnect transitions after recoverable connection loss.",
	})

	// OTPVerifications counts verification outcomes by result.
	OTPVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "minibot_otp_verifications_total",
		Help: "OTP verification attempts by outcome.",
	}, []string{"outcome"})
)

// MustRegister registers all collectors with the given registerer.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(LiveSessions, PairingAttempts, Reconnects, OTPVerifications)
}
