package dataservice

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minPasswordLen = 6
	resetTTL       = time.Hour
)

var (
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrWeakPassword        = errors.New("password should be at least 6 characters")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
)

type ServiceConfig struct {
	RefreshTTL               time.Duration
	RequireEmailConfirmation bool
}

// Service holds the auth and records rules behind the HTTP handlers.
type Service struct {
	store   *Store
	tokens  *token.Manager
	changes *Broadcaster
	cfg     ServiceConfig
	log     *zap.Logger
}

func NewService(store *Store, tokens *token.Manager, changes *Broadcaster, cfg ServiceConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		changes: changes,
		cfg:     cfg,
		log:     log,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.Session{}, ErrInvalidCredentials
	}

	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return model.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Session{}, err
	}

	ok, err := verifyPassword(password, u.PasswordHash)
	if err != nil {
		return model.Session{}, err
	}
	if !ok {
		return model.Session{}, ErrInvalidCredentials
	}
	if !u.Confirmed {
		return model.Session{}, ErrEmailNotConfirmed
	}
	return s.issueSession(ctx, u.ID)
}

func (s *Service) SignUp(ctx context.Context, email, password string) (model.SignUpResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.SignUpResult{}, err
	}
	if len(password) < minPasswordLen {
		return model.SignUpResult{}, ErrWeakPassword
	}

	hash, err := hashPassword(password)
	if err != nil {
		return model.SignUpResult{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Confirmed:    !s.cfg.RequireEmailConfirmation,
		CreatedAt:    time.Now(),
	}
	if !u.Confirmed {
		u.ConfirmationToken = uuid.NewString()
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return model.SignUpResult{}, err
	}

	if !u.Confirmed {
		// stands in for the confirmation mail
		s.log.Info("confirmation required", zap.String("user_id", u.ID), zap.String("confirmation_token", u.ConfirmationToken))
		return model.SignUpResult{UserID: u.ID, PendingConfirmation: true}, nil
	}

	session, err := s.issueSession(ctx, u.ID)
	if err != nil {
		return model.SignUpResult{}, err
	}
	return model.SignUpResult{UserID: u.ID, Session: &session}, nil
}

func (s *Service) Verify(ctx context.Context, confirmationToken string) (model.Session, error) {
	u, err := s.store.ConfirmUser(ctx, confirmationToken)
	if err != nil {
		return model.Session{}, err
	}
	return s.issueSession(ctx, u.ID)
}

// Authenticate resolves an access token to its user id.
func (s *Service) Authenticate(accessToken string) (string, error) {
	return s.tokens.Authenticate(accessToken)
}

func (s *Service) User(ctx context.Context, userID string) (model.User, error) {
	return s.store.UserByID(ctx, userID)
}

func (s *Service) SignOut(ctx context.Context, userID string) error {
	return s.store.RevokeRefreshTokens(ctx, userID)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (model.Session, error) {
	userID, err := s.store.ConsumeRefreshToken(ctx, refreshToken)
	if errors.Is(err, ErrNotFound) {
		return model.Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return model.Session{}, err
	}
	return s.issueSession(ctx, userID)
}

// Recover starts a password reset. Unknown emails succeed silently.
func (s *Service) Recover(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resetToken := uuid.NewString()
	if err := s.store.SavePasswordReset(ctx, resetToken, u.ID, time.Now().Add(resetTTL)); err != nil {
		return err
	}
	// stands in for the recovery mail
	s.log.Info("password reset requested", zap.String("user_id", u.ID), zap.String("reset_token", resetToken))
	return nil
}

func (s *Service) CompleteRecovery(ctx context.Context, resetToken, password string) error {
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}
	userID, err := s.store.ConsumePasswordReset(ctx, resetToken)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetPassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.store.RevokeRefreshTokens(ctx, userID)
}

func (s *Service) issueSession(ctx context.Context, userID string) (model.Session, error) {
	access, exp, err := s.tokens.Issue(userID)
	if err != nil {
		return model.Session{}, err
	}
	refresh := uuid.NewString()
	if err := s.store.SaveRefreshToken(ctx, refresh, userID, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return model.Session{}, err
	}
	return model.Session{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       exp,
	}, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string, filter model.OrderFilter) ([]model.Order, error) {
	return s.store.ListOrders(ctx, userID, filter)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, userID, orderID string, status model.OrderStatus) (model.Order, error) {
	o, err := s.store.TransitionOrder(ctx, orderID, userID, status)
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info("order status updated", zap.String("order_id", orderID), zap.String("status", string(status)), zap.String("driver_id", userID))
	s.changes.Publish()
	return o, nil
}

// Profile returns the user's profile, creating an empty one on first read.
func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("creating profile", zap.String("user_id", userID))
		return s.store.UpsertProfile(ctx, model.Profile{ID: userID})
	}
	return p, err
}

func (s *Service) SaveProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error) {
	p.ID = userID
	if existing, err := s.store.GetProfile(ctx, userID); err == nil {
		p.CreatedAt = existing.CreatedAt
	}
	return s.store.UpsertProfile(ctx, p)
}

// OrderChanges subscribes to order change signals.
func (s *Service) OrderChanges() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}
