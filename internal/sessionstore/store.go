package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/ghaggin/courier/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultKey       = "driver.session"
	defaultRetention = 30 * 24 * time.Hour
)

var (
	ErrStorage = errors.New("session storage failed")
	ErrCorrupt = errors.New("stored session is corrupt")
)

// Store persists the one driver session under a single key of a scs
// backend. Backends implementing scs.CtxStore get the caller's context.
type Store struct {
	backend   scs.Store
	key       string
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRetention bounds how long a saved session outlives its access token,
// which is what lets an expired session be refreshed on the next start.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

func New(backend scs.Store, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		backend:   backend,
		key:       DefaultKey,
		retention: defaultRetention,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Load(ctx context.Context) (model.Session, bool, error) {
	var (
		b     []byte
		found bool
		err   error
	)
	if cs, ok := s.backend.(scs.CtxStore); ok {
		b, found, err = cs.FindCtx(ctx, s.key)
	} else {
		b, found, err = s.backend.Find(s.key)
	}
	if err != nil {
		return model.Session{}, false, fmt.Errorf("%w: load: %w", ErrStorage, err)
	}
	if !found {
		return model.Session{}, false, nil
	}

	var session model.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return model.Session{}, false, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !session.Valid() {
		return model.Session{}, false, ErrCorrupt
	}
	return session, true, nil
}

// Save replaces the stored session. The backend entry outlives the later
// of the access token expiry and now by the retention window, so a session
// with a lapsed or missing expiry is still kept for a refresh.
func (s *Store) Save(ctx context.Context, session model.Session) error {
	if !session.Valid() {
		return fmt.Errorf("%w: missing user id or access token", ErrCorrupt)
	}
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStorage, err)
	}

	base := s.now()
	if session.Expiry.After(base) {
		base = session.Expiry
	}
	expiry := base.Add(s.retention)
	if cs, ok := s.backend.(scs.CtxStore); ok {
		err = cs.CommitCtx(ctx, s.key, b, expiry)
	} else {
		err = s.backend.Commit(s.key, b, expiry)
	}
	if err != nil {
		return fmt.Errorf("%w: save: %w", ErrStorage, err)
	}
	s.log.Debug("session saved", zap.String("user_id", session.UserID))
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	var err error
	if cs, ok := s.backend.(scs.CtxStore); ok {
		err = cs.DeleteCtx(ctx, s.key)
	} else {
		err = s.backend.Delete(s.key)
	}
	if err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStorage, err)
	}
	s.log.Debug("session cleared")
	return nil
}
