package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"minimart/backend/internal/domain"
	"minimart/backend/internal/store"
	"minimart/backend/internal/xid"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type accessClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager owns credential storage and access tokens. Tokens are HS256
// JWTs carrying the actor identity; nothing about the signed-in user lives
// in process state.
type AuthManager struct {
	repo     store.Repository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewAuthManager(repo store.Repository, secret string, tokenTTL time.Duration) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &AuthManager{
		repo:     repo,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Signup registers a new user. The first account ever created becomes an
// ADMIN; everyone after that is a regular USER.
func (m *AuthManager) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	fields := make(map[string]string)
	if len(req.Name) < 2 {
		fields["name"] = "name must be at least 2 characters"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = "a valid email address is required"
	}
	if len(req.Password) < 6 {
		fields["password"] = "password must be at least 6 characters"
	}
	if req.Password != req.ConfirmPassword {
		fields["confirm_password"] = "passwords do not match"
	}
	if len(fields) > 0 {
		return nil, &store.ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := domain.RoleUser
	count, err := m.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		role = domain.RoleAdmin
	}

	return m.repo.CreateUser(ctx, domain.User{
		ID:           xid.New("user"),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Login verifies credentials and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (m *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	user, err := m.repo.GetUserByEmail(ctx, email)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := m.now().Add(m.tokenTTL)
	claims := accessClaims{
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ParseToken validates a bearer token and returns the actor it names.
func (m *AuthManager) ParseToken(tokenString string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	return domain.Actor{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
