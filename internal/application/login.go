package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

// ResumeLogin accepts a login challenge the authorization server already
// knows the subject of. It returns "" when the user must log in.
func (s *Service) ResumeLogin(ctx context.Context, challenge string) (string, error) {
	req, err := s.authServer.FetchLoginRequest(ctx, challenge)
	if err != nil {
		return "", fmt.Errorf("fetch login request: %w", err)
	}
	if !req.Skip || req.Subject == "" {
		return "", nil
	}
	return s.acceptLogin(ctx, challenge, req.Subject)
}

// Login checks the password and lets the user in when the browser is a
// recognized device. Otherwise a verification code is emailed and the
// returned cookie must be presented to VerifyLogin along with the code.
func (s *Service) Login(ctx context.Context, attempt LoginAttempt) (LoginResult, error) {
	redirect, err := s.ResumeLogin(ctx, attempt.Challenge)
	if err != nil {
		return LoginResult{}, err
	}
	if redirect != "" {
		return LoginResult{RedirectTo: redirect, ComputerCode: attempt.ComputerCode}, nil
	}

	user, err := s.authenticate(ctx, attempt.Email, attempt.Password)
	if err != nil {
		return LoginResult{}, err
	}
	if user.Suspended() {
		return LoginResult{}, domain.ErrAccountSuspended
	}

	computerCode, computerCodeHash, err := s.computerCode(attempt.ComputerCode)
	if err != nil {
		return LoginResult{}, err
	}
	known, err := s.devices.Contains(ctx, user.UserID, computerCodeHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("check device history: %w", err)
	}
	if known {
		// Re-adding promotes the device to the newest entry.
		if err := s.devices.Add(ctx, user.UserID, computerCodeHash); err != nil {
			return LoginResult{}, fmt.Errorf("add device: %w", err)
		}
		redirect, err := s.acceptLogin(ctx, attempt.Challenge, s.Subject(user.UserID))
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{RedirectTo: redirect, ComputerCode: computerCode}, nil
	}

	code, err := s.secrets.NewVerificationCode()
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate verification code: %w", err)
	}
	cookie, err := s.secrets.NewSecret()
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate verification cookie: %w", err)
	}
	record := &domain.LoginVerificationRecord{
		Token:       s.secrets.Digest(cookie),
		UserID:      user.UserID,
		Email:       user.Email,
		Code:        code,
		ChallengeID: attempt.Challenge,
	}
	if err := s.newLoginVerification(ctx, record); err != nil {
		return LoginResult{}, err
	}
	s.sendEmail(ctx, ports.Email{
		Template: ports.EmailVerificationCode,
		To:       user.Email,
		Code:     code,
		Values:   map[string]string{"user_agent": attempt.UserAgent},
	})
	return LoginResult{VerificationCookie: cookie, ComputerCode: computerCode}, nil
}

// newLoginVerification stores record and counts its creation as a failed
// attempt, which bounds how many of them can be made.
func (s *Service) newLoginVerification(ctx context.Context, record *domain.LoginVerificationRecord) error {
	if err := s.createRecord(ctx, record, s.cfg.LoginVerificationCodeExpiration); err != nil {
		return err
	}
	return s.registerFailure(ctx, record)
}

// LookupLoginVerification returns the pending verification of the browser
// holding cookie.
func (s *Service) LookupLoginVerification(ctx context.Context, cookie string) (*domain.LoginVerificationRecord, error) {
	if cookie == "" {
		return nil, domain.ErrRecordExpired
	}
	return lookupAs[*domain.LoginVerificationRecord](ctx, s, domain.KindLoginVerification, s.secrets.Digest(cookie))
}

func (s *Service) VerifyLogin(ctx context.Context, req VerifyLoginRequest) (LoginResult, error) {
	record, err := s.LookupLoginVerification(ctx, req.VerificationCookie)
	if err != nil {
		return LoginResult{}, err
	}

	code := strings.TrimSpace(req.Code)
	if record.Code == "" || subtle.ConstantTimeCompare([]byte(code), []byte(record.Code)) != 1 {
		if err := s.registerFailure(ctx, record); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, domain.ErrIncorrectVerificationCode
	}

	if err := s.consumeRecord(ctx, record); err != nil {
		return LoginResult{}, err
	}
	computerCode, computerCodeHash, err := s.computerCode(req.ComputerCode)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.devices.Add(ctx, record.UserID, computerCodeHash); err != nil {
		return LoginResult{}, fmt.Errorf("add device: %w", err)
	}
	redirect, err := s.acceptLogin(ctx, record.ChallengeID, s.Subject(record.UserID))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{RedirectTo: redirect, ComputerCode: computerCode}, nil
}

// acceptLogin lets subject in unless the subject's login ceiling has been
// reached, in which case the challenge is rejected.
func (s *Service) acceptLogin(ctx context.Context, challenge, subject string) (string, error) {
	_, err := s.counters.IncrementWithLimit(ctx, "logins:"+subject, s.cfg.MaxLoginsPerMonth, loginCountPeriod)
	if errors.Is(err, domain.ErrRateLimited) {
		s.logger.WarnContext(ctx, "login ceiling reached",
			"module", "application",
			"layer", "service",
			"operation", "accept_login",
			"outcome", "rejected",
			"subject", subject,
		)
		redirect, err := s.authServer.RejectLoginRequest(ctx, challenge, tooManyLoginsError, tooManyLoginsDescription)
		if err != nil {
			return "", fmt.Errorf("reject login request: %w", err)
		}
		return redirect, nil
	}
	if err != nil {
		return "", fmt.Errorf("count login: %w", err)
	}

	redirect, err := s.authServer.AcceptLoginRequest(ctx, challenge, subject)
	if err != nil {
		return "", fmt.Errorf("accept login request: %w", err)
	}
	s.logger.DebugContext(ctx, "login accepted",
		"module", "application",
		"layer", "service",
		"operation", "accept_login",
		"outcome", "success",
		"subject", subject,
	)
	return redirect, nil
}
