package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newAPIClient(srv.URL, 5*time.Second)
}

func TestConnect_DecodesCode(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		require.Equal(t, "263714000001", r.URL.Query().Get("number"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"ABCD-EFGH"}`))
	})

	resp, err := api.connect(context.Background(), "263714000001")
	require.NoError(t, err)
	require.Equal(t, "ABCD-EFGH", resp.Code)
}

func TestConnect_DecodesStatus(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"already_connected"}`))
	})

	resp, err := api.connect(context.Background(), "263714000001")
	require.NoError(t, err)
	require.Equal(t, "already_connected", resp.Status)
}

func TestGet_ErrorBodySurfaced(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no active session for this number"}`))
	})

	_, err := api.verifyOTP(context.Background(), "263714000001", "123456")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no active session")
	require.Contains(t, err.Error(), "404")
}

func TestGet_NonJSONError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream sad"))
	})

	_, err := api.ping(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestUpdateConfig_SendsConfigJSON(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "263714000001", q.Get("number"))
		require.JSONEq(t, `{"AUTO_REACT":"on"}`, q.Get("config"))
		_, _ = w.Write([]byte(`{"status":"otp_sent"}`))
	})

	resp, err := api.updateConfig(context.Background(), "263714000001", map[string]string{"AUTO_REACT": "on"})
	require.NoError(t, err)
	require.Equal(t, "otp_sent", resp.Status)
}

func TestPing_Decodes(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"active","activesession":3}`))
	})

	resp, err := api.ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, "active", resp.Status)
	require.Equal(t, 3, resp.ActiveSession)
}

func TestActive_Decodes(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":2,"numbers":["263714000001","263714000002"]}`))
	})

	resp, err := api.active(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Numbers, 2)
}

func TestConnectAll_Decodes(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","connections":[{"number":"263714000001","status":"failed","error":"refused"}]}`))
	})

	resp, err := api.connectAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, "refused", resp.Connections[0].Error)
}

func TestParseSettings(t *testing.T) {
	s, err := parseSettings([]string{"AUTO_REACT=on", "PREFIX=!", "EMPTY="})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"AUTO_REACT": "on", "PREFIX": "!", "EMPTY": ""}, s)

	_, err = parseSettings([]string{"novalue"})
	require.Error(t, err)

	_, err = parseSettings([]string{"=v"})
	require.Error(t, err)
}
