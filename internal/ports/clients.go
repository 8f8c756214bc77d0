package ports

import "context"

// Reservation is a provisionally claimed user ID. ReservationID is opaque:
// it holds the JSON literal the identity API issued, e.g. 456 or "456".
type Reservation struct {
	UserID        string
	ReservationID string
}

// IdentityAPI is the contract required from the service owning user
// objects. ActivateUser returns domain.ErrReservationExpired for terminal
// rejections and domain.ErrDeliveryFailed for anything retryable.
type IdentityAPI interface {
	ReserveUserID(ctx context.Context) (Reservation, error)
	ActivateUser(ctx context.Context, userID, reservationID string) error
	DeactivateUser(ctx context.Context, userID string) error
}

// LoginRequest is a pending login challenge of the authorization server.
type LoginRequest struct {
	Challenge string
	Skip      bool
	Subject   string
}

type ConsentRequest struct {
	Challenge      string
	Skip           bool
	Subject        string
	RequestedScope []string
	ClientID       string
	ClientName     string
}

// AuthorizationServer is the admin API of the OAuth2 server. Accept and
// reject calls return the URL the browser must be redirected to.
type AuthorizationServer interface {
	FetchLoginRequest(ctx context.Context, challenge string) (LoginRequest, error)
	AcceptLoginRequest(ctx context.Context, challenge, subject string) (string, error)
	RejectLoginRequest(ctx context.Context, challenge, errorCode, description string) (string, error)
	FetchConsentRequest(ctx context.Context, challenge string) (ConsentRequest, error)
	AcceptConsentRequest(ctx context.Context, challenge string, grantScope []string) (string, error)
	RevokeConsentSessions(ctx context.Context, subject string) error
	InvalidateLoginSessions(ctx context.Context, subject string) error
}
