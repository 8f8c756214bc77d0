package hydra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// AdminClient talks to the admin API of the authorization server.
type AdminClient struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type AdminConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewAdminClient(cfg AdminConfig) (*AdminClient, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse hydra admin url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	wrapped := *httpClient
	wrapped.Transport = forwardedProtoTransport{base: httpClient.Transport}
	return &AdminClient{baseURL: baseURL, httpClient: &wrapped}, nil
}

// forwardedProtoTransport marks every admin call as HTTPS, otherwise the
// server refuses to talk over a plain internal connection.
type forwardedProtoTransport struct {
	base http.RoundTripper
}

func (t forwardedProtoTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	out := req.Clone(req.Context())
	out.Header.Set("X-Forwarded-Proto", "https")
	return base.RoundTrip(out)
}

type redirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

type loginRequestResponse struct {
	Challenge string `json:"challenge"`
	Skip      bool   `json:"skip"`
	Subject   string `json:"subject"`
}

type consentRequestResponse struct {
	Challenge      string   `json:"challenge"`
	Skip           bool     `json:"skip"`
	Subject        string   `json:"subject"`
	RequestedScope []string `json:"requested_scope"`
	Client         struct {
		ClientID   string `json:"client_id"`
		ClientName string `json:"client_name"`
	} `json:"client"`
}

func (c *AdminClient) FetchLoginRequest(ctx context.Context, challenge string) (ports.LoginRequest, error) {
	var out loginRequestResponse
	err := c.do(ctx, http.MethodGet, "oauth2/auth/requests/login", url.Values{"login_challenge": {challenge}}, nil, http.StatusOK, &out)
	if err != nil {
		return ports.LoginRequest{}, err
	}
	return ports.LoginRequest{Challenge: challenge, Skip: out.Skip, Subject: out.Subject}, nil
}

func (c *AdminClient) AcceptLoginRequest(ctx context.Context, challenge, subject string) (string, error) {
	body := map[string]any{
		"subject":      subject,
		"remember":     false,
		"remember_for": 1000000000,
	}
	return c.redirect(ctx, "oauth2/auth/requests/login/accept", url.Values{"login_challenge": {challenge}}, body)
}

func (c *AdminClient) RejectLoginRequest(ctx context.Context, challenge, errorCode, description string) (string, error) {
	body := map[string]any{
		"error":             errorCode,
		"error_description": description,
	}
	return c.redirect(ctx, "oauth2/auth/requests/login/reject", url.Values{"login_challenge": {challenge}}, body)
}

func (c *AdminClient) FetchConsentRequest(ctx context.Context, challenge string) (ports.ConsentRequest, error) {
	var out consentRequestResponse
	err := c.do(ctx, http.MethodGet, "oauth2/auth/requests/consent", url.Values{"consent_challenge": {challenge}}, nil, http.StatusOK, &out)
	if err != nil {
		return ports.ConsentRequest{}, err
	}
	return ports.ConsentRequest{
		Challenge:      challenge,
		Skip:           out.Skip,
		Subject:        out.Subject,
		RequestedScope: out.RequestedScope,
		ClientID:       out.Client.ClientID,
		ClientName:     out.Client.ClientName,
	}, nil
}

func (c *AdminClient) AcceptConsentRequest(ctx context.Context, challenge string, grantScope []string) (string, error) {
	if grantScope == nil {
		grantScope = []string{}
	}
	body := map[string]any{
		"grant_scope":  grantScope,
		"remember":     false,
		"remember_for": 0,
	}
	return c.redirect(ctx, "oauth2/auth/requests/consent/accept", url.Values{"consent_challenge": {challenge}}, body)
}

// RevokeConsentSessions revokes all consent sessions of subject, which also
// revokes the access and refresh tokens issued under them.
func (c *AdminClient) RevokeConsentSessions(ctx context.Context, subject string) error {
	query := url.Values{"subject": {subject}, "all": {"true"}}
	return c.do(ctx, http.MethodDelete, "oauth2/auth/sessions/consent", query, nil, http.StatusNoContent, nil)
}

func (c *AdminClient) InvalidateLoginSessions(ctx context.Context, subject string) error {
	query := url.Values{"subject": {subject}}
	return c.do(ctx, http.MethodDelete, "oauth2/auth/sessions/login", query, nil, http.StatusNoContent, nil)
}

func (c *AdminClient) redirect(ctx context.Context, path string, query url.Values, body any) (string, error) {
	var out redirectResponse
	if err := c.do(ctx, http.MethodPut, path, query, body, http.StatusOK, &out); err != nil {
		return "", err
	}
	if out.RedirectTo == "" {
		return "", fmt.Errorf("hydra %s: response lacks redirect_to", path)
	}
	return out.RedirectTo, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, query url.Values, body any, wantStatus int, out any) error {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hydra %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("hydra %s: %w", path, domain.ErrNotFound)
	}
	if resp.StatusCode != wantStatus {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("hydra %s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hydra %s: decode response: %w", path, err)
	}
	return nil
}
