package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient is a thin typed wrapper over the server's HTTP API.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

type connectResponse struct {
	Code   string `json:"code,omitempty"`
	Status string `json:"status,omitempty"`
}

type activeResponse struct {
	Count   int      `json:"count"`
	Numbers []string `json:"numbers"`
}

type bulkEntry struct {
	Number string `json:"number"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type bulkResponse struct {
	Status      string      `json:"status"`
	Connections []bulkEntry `json:"connections"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type pingResponse struct {
	Status        string `json:"status"`
	ActiveSession int    `json:"activesession"`
}

type aboutResponse struct {
	About string `json:"about"`
	SetAt string `json:"set_at,omitempty"`
}

// get performs a GET and decodes the JSON body into out. A non-2xx status
// with an {"error": ...} body becomes a plain error.
func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) connect(ctx context.Context, number string) (connectResponse, error) {
	var out connectResponse
	err := c.get(ctx, "/", url.Values{"number": {number}}, &out)
	return out, err
}

func (c *apiClient) active(ctx context.Context) (activeResponse, error) {
	var out activeResponse
	err := c.get(ctx, "/active", nil, &out)
	return out, err
}

func (c *apiClient) ping(ctx context.Context) (pingResponse, error) {
	var out pingResponse
	err := c.get(ctx, "/ping", nil, &out)
	return out, err
}

func (c *apiClient) connectAll(ctx context.Context) (bulkResponse, error) {
	var out bulkResponse
	err := c.get(ctx, "/connect-all", nil, &out)
	return out, err
}

func (c *apiClient) reconnect(ctx context.Context) (bulkResponse, error) {
	var out bulkResponse
	err := c.get(ctx, "/reconnect", nil, &out)
	return out, err
}

// updateConfig stages settings as the JSON config parameter and triggers OTP
// delivery.
func (c *apiClient) updateConfig(ctx context.Context, number string, settings map[string]string) (statusResponse, error) {
	blob, err := json.Marshal(settings)
	if err != nil {
		return statusResponse{}, err
	}
	var out statusResponse
	err = c.get(ctx, "/update-config", url.Values{"number": {number}, "config": {string(blob)}}, &out)
	return out, err
}

func (c *apiClient) verifyOTP(ctx context.Context, number, code string) (statusResponse, error) {
	var out statusResponse
	err := c.get(ctx, "/verify-otp", url.Values{"number": {number}, "otp": {code}}, &out)
	return out, err
}

func (c *apiClient) getAbout(ctx context.Context, number, target string) (aboutResponse, error) {
	var out aboutResponse
	err := c.get(ctx, "/getabout", url.Values{"number": {number}, "target": {target}}, &out)
	return out, err
}
