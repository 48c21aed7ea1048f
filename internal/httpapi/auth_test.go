package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"minimart/backend/internal/domain"
	"minimart/backend/internal/store/memory"
)

func TestLoginIssuesParsableToken(t *testing.T) {
	repo := memory.New()
	mgr := NewAuthManager(repo, testSecret, time.Hour)

	user, err := mgr.Signup(context.Background(), domain.SignupRequest{
		Name: "Dana", Email: "Dana@Example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "dana@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}

	resp, err := mgr.Login(context.Background(), domain.LoginRequest{
		Email: "dana@example.com", Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := mgr.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != user.ID || actor.Role != domain.RoleAdmin || actor.Email != "dana@example.com" {
		t.Errorf("actor = %+v, want identity of the signed-up admin", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := memory.New()
	mgr := NewAuthManager(repo, testSecret, time.Hour)

	if _, err := mgr.Signup(context.Background(), domain.SignupRequest{
		Name: "Dana", Email: "dana@example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, err := mgr.Login(context.Background(), domain.LoginRequest{
		Email: "dana@example.com", Password: "wrong",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}

	// Unknown email must be indistinguishable from a wrong password.
	_, err = mgr.Login(context.Background(), domain.LoginRequest{
		Email: "nobody@example.com", Password: "hunter22",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	repo := memory.New()
	mgr := NewAuthManager(repo, testSecret, 30*time.Minute)

	if _, err := mgr.Signup(context.Background(), domain.SignupRequest{
		Name: "Dana", Email: "dana@example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	issued := time.Now()
	mgr.now = func() time.Time { return issued }
	resp, err := mgr.Login(context.Background(), domain.LoginRequest{
		Email: "dana@example.com", Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mgr.now = func() time.Time { return issued.Add(31 * time.Minute) }
	if _, err := mgr.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.New()
	mgr := NewAuthManager(repo, testSecret, time.Hour)
	other := NewAuthManager(repo, "another-secret-another-secret-32", time.Hour)

	if _, err := mgr.Signup(context.Background(), domain.SignupRequest{
		Name: "Dana", Email: "dana@example.com", Password: "hunter22", ConfirmPassword: "hunter22",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	resp, err := mgr.Login(context.Background(), domain.LoginRequest{
		Email: "dana@example.com", Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: err = %v, want ErrInvalidToken", err)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(3, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	key := "10.0.0.9"
	for i := 0; i < 3; i++ {
		if !limiter.allow(key) {
			t.Fatalf("attempt %d blocked too early", i)
		}
		limiter.noteFailure(key)
	}
	if limiter.allow(key) {
		t.Errorf("allowed after max failures")
	}

	// Failures age out of the window.
	now = now.Add(61 * time.Second)
	if !limiter.allow(key) {
		t.Errorf("still blocked after window elapsed")
	}
}

func TestAttemptLimiterResetOnSuccess(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)
	key := "10.0.0.9"

	limiter.noteFailure(key)
	limiter.noteFailure(key)
	if limiter.allow(key) {
		t.Fatalf("allowed after max failures")
	}

	limiter.reset(key)
	if !limiter.allow(key) {
		t.Errorf("still blocked after reset")
	}
}
