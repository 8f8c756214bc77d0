package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

type Config struct {
	ResourceServer          string
	ReservePath             string
	UserIDField             string
	DeactivationRequestType string
	Timeout                 time.Duration
}

// Client calls the identity API. Activation and deactivation URLs are
// resolved relative to the reserve URL, so "/users/.user-reserve" yields
// "/users/{id}/activate".
type Client struct {
	reserveURL       *url.URL
	userIDField      string
	deactivationType string
	http             *http.Client
}

func NewClient(cfg Config, tokens *TokenCache, base http.RoundTripper) (*Client, error) {
	server, err := url.Parse(cfg.ResourceServer)
	if err != nil {
		return nil, fmt.Errorf("parse resource server url: %w", err)
	}
	reservePath, err := url.Parse(cfg.ReservePath)
	if err != nil {
		return nil, fmt.Errorf("parse reserve path: %w", err)
	}
	if cfg.UserIDField == "" {
		cfg.UserIDField = "userId"
	}
	if cfg.DeactivationRequestType == "" {
		cfg.DeactivationRequestType = "UserDeactivationRequest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		reserveURL:       server.ResolveReference(reservePath),
		userIDField:      cfg.UserIDField,
		deactivationType: cfg.DeactivationRequestType,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newBearerTransport(tokens, base),
		},
	}, nil
}

func (c *Client) userURL(userID, action string) (string, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return "", err
	}
	rel, err := url.Parse(url.PathEscape(userID) + "/" + action)
	if err != nil {
		return "", err
	}
	return c.reserveURL.ResolveReference(rel).String(), nil
}

func (c *Client) ReserveUserID(ctx context.Context) (ports.Reservation, error) {
	status, body, err := c.post(ctx, c.reserveURL.String(), map[string]any{})
	if err != nil {
		return ports.Reservation{}, err
	}
	if status < 200 || status > 299 {
		return ports.Reservation{}, fmt.Errorf("%w: reserve user id: unexpected status %d", domain.ErrDeliveryFailed, status)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ports.Reservation{}, fmt.Errorf("decode reservation: %w", err)
	}
	userID, ok := decodeScalar(payload[c.userIDField])
	if !ok {
		return ports.Reservation{}, fmt.Errorf("reservation response lacks %q", c.userIDField)
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return ports.Reservation{}, err
	}
	rawReservation := payload["reservationId"]
	if _, ok := decodeScalar(rawReservation); !ok {
		return ports.Reservation{}, fmt.Errorf("reservation response lacks %q", "reservationId")
	}
	// The JSON literal is kept as issued, quotes included, so it goes back
	// to the API with its original type.
	reservationID := string(bytes.TrimSpace(rawReservation))
	return ports.Reservation{UserID: userID, ReservationID: reservationID}, nil
}

// ActivateUser treats 200 as success and 409/422 as an expired reservation.
func (c *Client) ActivateUser(ctx context.Context, userID, reservationID string) error {
	endpoint, err := c.userURL(userID, "activate")
	if err != nil {
		return err
	}
	status, _, err := c.post(ctx, endpoint, map[string]any{"reservationId": reservationValue(reservationID)})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: user %s, reservation %s, status %d", domain.ErrReservationExpired, userID, reservationID, status)
	default:
		return fmt.Errorf("%w: activate user %s: unexpected status %d", domain.ErrDeliveryFailed, userID, status)
	}
}

func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	endpoint, err := c.userURL(userID, "deactivate")
	if err != nil {
		return err
	}
	status, _, err := c.post(ctx, endpoint, map[string]any{"type": c.deactivationType})
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("%w: deactivate user %s: unexpected status %d", domain.ErrDeliveryFailed, userID, status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", domain.ErrDeliveryFailed, err)
	}
	return resp.StatusCode, body, nil
}

func decodeScalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

// reservationValue sends a reservation ID back as the JSON literal it was
// issued as. Anything that is not valid JSON is sent as a string.
func reservationValue(id string) any {
	if json.Valid([]byte(id)) {
		return json.RawMessage(id)
	}
	return id
}
