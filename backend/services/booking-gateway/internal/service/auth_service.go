package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/policy"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// LoginResult is what a client receives after signing in.
type LoginResult struct {
	Token   string
	Session session.Session
}

// AuthService creates, resolves and destroys sessions.
type AuthService struct {
	backend     Backend
	sessions    session.Store
	tokenizer   *TokenService
	clock       policy.Clock
	fallbackTTL time.Duration
	logger      *zap.Logger
}

// NewAuthService builds AuthService. fallbackTTL is used when the backend reports no expiry.
func NewAuthService(backend Backend, sessions session.Store, tokenizer *TokenService, clock policy.Clock, fallbackTTL time.Duration, logger *zap.Logger) *AuthService {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	if fallbackTTL <= 0 {
		fallbackTTL = time.Hour
	}
	return &AuthService{
		backend:     backend,
		sessions:    sessions,
		tokenizer:   tokenizer,
		clock:       clock,
		fallbackTTL: fallbackTTL,
		logger:      logger,
	}
}

// Login authenticates against the backend and starts a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "auth.login"
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.New(apperr.Unauthenticated, op, "username and password are required")
	}

	res, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	expires := res.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(s.fallbackTTL)
	}
	if !expires.After(now) {
		return nil, apperr.New(apperr.Unauthenticated, op, "backend issued an expired token")
	}

	sess := session.Session{
		ID:        uuid.NewString(),
		Token:     res.Token,
		Role:      session.NormalizeRole(res.Role),
		RawRole:   res.Role,
		SubjectID: res.SubjectID,
		Username:  res.Username,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if sess.Role == session.RoleUnknown {
		s.logger.Warn("login with unrecognised role", zap.String("username", sess.Username), zap.String("role", res.Role))
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, apperr.Wrap(apperr.Unknown, op, err)
	}
	token, err := s.tokenizer.GenerateToken(sess)
	if err != nil {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, apperr.Wrap(apperr.Unknown, op, err)
	}

	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", sess.SubjectID),
		zap.String("role", string(sess.Role)),
	)
	return &LoginResult{Token: token, Session: sess}, nil
}

// Logout destroys the session.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return apperr.New(apperr.Unauthenticated, "auth.logout", "no active session")
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return apperr.Wrap(apperr.Unknown, "auth.logout", err)
	}
	s.logger.Info("session ended", zap.String("session_id", sess.ID))
	return nil
}

// Resolve maps a gateway token to the current session snapshot.
func (s *AuthService) Resolve(ctx context.Context, token string) (session.Session, error) {
	const op = "auth.resolve"
	claims, err := s.tokenizer.ValidateToken(token)
	if err != nil {
		return session.Session{}, apperr.New(apperr.Unauthenticated, op, "invalid or expired token")
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.Session{}, apperr.New(apperr.Unauthenticated, op, "session has ended")
	}
	if err != nil {
		return session.Session{}, apperr.Wrap(apperr.Unknown, op, err)
	}
	if sess.SubjectID != claims.Subject || sess.IsExpired(s.clock.Now()) {
		return session.Session{}, apperr.New(apperr.Unauthenticated, op, "session has ended")
	}
	return sess, nil
}
