// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP and write responses; services validate, enforce the
// ownership and authentication rules, and orchestrate; repositories read and
// write the database. Services accept primitives and return domain errors —
// they know nothing about HTTP, cookies, or status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/repository"
)

// lineProviderName is the provider value stored on Authentication rows.
const lineProviderName = "line"

// AuthService handles signup, login, and LINE identity resolution.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue/validate session JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the caller
// (the HTTP handler) can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup registers a new email+password account and issues a session.
//
// Failure modes:
//   - any field missing  → apperror.ErrValidation ("Missing fields")
//   - email already used → apperror.ErrDuplicate ("user already exists")
//
// The duplicate check is the database's UNIQUE constraint, not a pre-query —
// a pre-query would race against concurrent signups for the same email.
func (s *AuthService) Signup(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return nil, apperror.ValidationFailed("", "missing fields")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// ErrDuplicate passes through untouched; anything else is wrapped.
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up",
		slog.Int64("userID", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueSession(user)
}

// Login verifies email+password credentials and issues a session.
//
// COLLAPSED ERROR IDENTITY:
// Unknown email, an OAuth-only account with no password hash, and a wrong
// password all return the identical apperror.ErrInvalidCredentials. The
// response must not reveal whether the account exists or what kind it is.
// The richer cause is logged at Debug for operators only.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "missing fields")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("login failed: unknown email")
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if user.PasswordHash == "" {
		// OAuth-only account — same error as a wrong password.
		s.logger.Debug("login failed: account has no password", slog.Int64("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login failed: password mismatch", slog.Int64("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	s.logger.Info("user logged in", slog.Int64("userID", user.ID))

	return s.issueSession(user)
}

// LoginWithLine resolves a verified LINE profile to a local user and issues a
// session. The handler has already completed the code exchange and profile
// fetch; this method only does identity resolution.
//
// Resolution order:
//  1. An Authentication row for ("line", userId) exists → that user. If the
//     user predates the line_user_id column, backfill it (idempotent
//     enrichment, not a new account).
//  2. No row → create a user with a synthetic placeholder email
//     ("line_<uid>@line.local" — unique without needing a real email from
//     LINE) plus the Authentication row, in one transaction.
//
// RACE: two first-time callbacks for the same LINE account can both see "no
// existing authentication" and race on the create. The loser hits the
// (provider, uid) UNIQUE constraint, which the repository reports as
// ErrDuplicate — we then retry the find path once instead of surfacing the
// violation to the browser.
func (s *AuthService) LoginWithLine(ctx context.Context, profile *auth.LineProfile) (*AuthResult, error) {
	if profile == nil || profile.UserID == "" {
		return nil, fmt.Errorf("service/auth: LINE profile must not be empty")
	}

	user, err := s.users.GetUserByAuthentication(ctx, lineProviderName, profile.UserID)
	switch {
	case err == nil:
		if user.LineUserID == "" {
			// Legacy/partial link — enrich, don't create.
			if err := s.users.LinkLine(ctx, user.ID, profile.UserID); err != nil {
				return nil, fmt.Errorf("service/auth: backfilling LINE link: %w", err)
			}
			user.LineUserID = profile.UserID
			user.LineLogin = true
		}

	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.registerLineUser(ctx, profile)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up LINE authentication: %w", err)
	}

	s.logger.Info("user authenticated via LINE", slog.Int64("userID", user.ID))

	return s.issueSession(user)
}

// registerLineUser creates the user + authentication pair for a first-time
// LINE login, retrying the find path once if a concurrent callback won the
// create race.
func (s *AuthService) registerLineUser(ctx context.Context, profile *auth.LineProfile) (*model.User, error) {
	user := &model.User{
		Email:      fmt.Sprintf("line_%s@line.local", profile.UserID),
		Name:       profile.DisplayName,
		LineUserID: profile.UserID,
		LineLogin:  true,
	}
	authRecord := &model.Authentication{
		Provider:   lineProviderName,
		UID:        profile.UserID,
		LineUserID: profile.UserID,
	}

	err := s.users.CreateUserWithAuthentication(ctx, user, authRecord)
	if err == nil {
		s.logger.Info("new user registered via LINE", slog.Int64("userID", user.ID))
		return user, nil
	}
	if !errors.Is(err, apperror.ErrDuplicate) {
		return nil, fmt.Errorf("service/auth: registering LINE user: %w", err)
	}

	// Lost the create race — the row exists now, read it back.
	s.logger.Debug("LINE registration race detected, retrying lookup")
	user, err = s.users.GetUserByAuthentication(ctx, lineProviderName, profile.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: re-reading LINE user after race: %w", err)
	}
	return user, nil
}

// GetUserByID returns the user for the given internal ID.
// Used by the /api/auth/me handler after the middleware validates the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// issueSession mints a session token for the user.
func (s *AuthService) issueSession(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
