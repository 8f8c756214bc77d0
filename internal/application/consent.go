package application

import (
	"context"
	"fmt"
)

// PromptConsent decides consent challenges that need no user input:
// skipped requests and requests without scopes are accepted with no scopes.
func (s *Service) PromptConsent(ctx context.Context, challenge string) (ConsentPrompt, error) {
	req, err := s.authServer.FetchConsentRequest(ctx, challenge)
	if err != nil {
		return ConsentPrompt{}, fmt.Errorf("fetch consent request: %w", err)
	}
	if req.Skip || len(req.RequestedScope) == 0 {
		redirect, err := s.GrantConsent(ctx, challenge, nil)
		if err != nil {
			return ConsentPrompt{}, err
		}
		return ConsentPrompt{RedirectTo: redirect}, nil
	}
	return ConsentPrompt{Request: req}, nil
}

func (s *Service) GrantConsent(ctx context.Context, challenge string, grantedScopes []string) (string, error) {
	if grantedScopes == nil {
		grantedScopes = []string{}
	}
	redirect, err := s.authServer.AcceptConsentRequest(ctx, challenge, grantedScopes)
	if err != nil {
		return "", fmt.Errorf("accept consent request: %w", err)
	}
	return redirect, nil
}

// RevokeGrantedAccess revokes every consent the challenge's subject has
// given, and with them the tokens issued to applications.
func (s *Service) RevokeGrantedAccess(ctx context.Context, challenge string) error {
	req, err := s.authServer.FetchConsentRequest(ctx, challenge)
	if err != nil {
		return fmt.Errorf("fetch consent request: %w", err)
	}
	if req.Skip || req.Subject == "" {
		return nil
	}
	if err := s.authServer.RevokeConsentSessions(ctx, req.Subject); err != nil {
		return fmt.Errorf("revoke consent sessions: %w", err)
	}
	return nil
}
