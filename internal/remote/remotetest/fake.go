// Package remotetest provides a scriptable remote.Service for tests.
package remotetest

import (
	"context"
	"errors"
	"sync"

	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/remote"
)

var ErrNotScripted = errors.New("remotetest: call not scripted")

// Fake answers each call with the matching func field, or ErrNotScripted
// when it is nil. Calls are counted by method name.
type Fake struct {
	SignInFunc                func(ctx context.Context, email, password string) (model.Session, error)
	SignUpFunc                func(ctx context.Context, email, password string) (model.SignUpResult, error)
	SignOutFunc               func(ctx context.Context, accessToken string) error
	ValidateSessionFunc       func(ctx context.Context, accessToken string) (string, error)
	RefreshSessionFunc        func(ctx context.Context, refreshToken string) (model.Session, error)
	ResetPasswordFunc         func(ctx context.Context, email string) error
	CompletePasswordResetFunc func(ctx context.Context, resetToken, newPassword string) error
	ListOrdersFunc            func(ctx context.Context, accessToken string, filter model.OrderFilter) ([]model.Order, error)
	UpdateOrderStatusFunc     func(ctx context.Context, accessToken, orderID string, status model.OrderStatus) error
	WatchOrdersFunc           func(ctx context.Context, accessToken string) (<-chan struct{}, error)
	GetProfileFunc            func(ctx context.Context, accessToken string) (model.Profile, error)
	SaveProfileFunc           func(ctx context.Context, accessToken string, p model.Profile) (model.Profile, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ remote.Service = (*Fake)(nil)

func (f *Fake) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

// Calls returns how many times the named method ran.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *Fake) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	f.record("SignIn")
	if f.SignInFunc == nil {
		return model.Session{}, ErrNotScripted
	}
	return f.SignInFunc(ctx, email, password)
}

func (f *Fake) SignUp(ctx context.Context, email, password string) (model.SignUpResult, error) {
	f.record("SignUp")
	if f.SignUpFunc == nil {
		return model.SignUpResult{}, ErrNotScripted
	}
	return f.SignUpFunc(ctx, email, password)
}

func (f *Fake) SignOut(ctx context.Context, accessToken string) error {
	f.record("SignOut")
	if f.SignOutFunc == nil {
		return ErrNotScripted
	}
	return f.SignOutFunc(ctx, accessToken)
}

func (f *Fake) ValidateSession(ctx context.Context, accessToken string) (string, error) {
	f.record("ValidateSession")
	if f.ValidateSessionFunc == nil {
		return "", ErrNotScripted
	}
	return f.ValidateSessionFunc(ctx, accessToken)
}

func (f *Fake) RefreshSession(ctx context.Context, refreshToken string) (model.Session, error) {
	f.record("RefreshSession")
	if f.RefreshSessionFunc == nil {
		return model.Session{}, ErrNotScripted
	}
	return f.RefreshSessionFunc(ctx, refreshToken)
}

func (f *Fake) ResetPassword(ctx context.Context, email string) error {
	f.record("ResetPassword")
	if f.ResetPasswordFunc == nil {
		return ErrNotScripted
	}
	return f.ResetPasswordFunc(ctx, email)
}

func (f *Fake) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	f.record("CompletePasswordReset")
	if f.CompletePasswordResetFunc == nil {
		return ErrNotScripted
	}
	return f.CompletePasswordResetFunc(ctx, resetToken, newPassword)
}

func (f *Fake) ListOrders(ctx context.Context, accessToken string, filter model.OrderFilter) ([]model.Order, error) {
	f.record("ListOrders")
	if f.ListOrdersFunc == nil {
		return nil, ErrNotScripted
	}
	return f.ListOrdersFunc(ctx, accessToken, filter)
}

func (f *Fake) UpdateOrderStatus(ctx context.Context, accessToken, orderID string, status model.OrderStatus) error {
	f.record("UpdateOrderStatus")
	if f.UpdateOrderStatusFunc == nil {
		return ErrNotScripted
	}
	return f.UpdateOrderStatusFunc(ctx, accessToken, orderID, status)
}

func (f *Fake) WatchOrders(ctx context.Context, accessToken string) (<-chan struct{}, error) {
	f.record("WatchOrders")
	if f.WatchOrdersFunc == nil {
		return nil, ErrNotScripted
	}
	return f.WatchOrdersFunc(ctx, accessToken)
}

func (f *Fake) GetProfile(ctx context.Context, accessToken string) (model.Profile, error) {
	f.record("GetProfile")
	if f.GetProfileFunc == nil {
		return model.Profile{}, ErrNotScripted
	}
	return f.GetProfileFunc(ctx, accessToken)
}

func (f *Fake) SaveProfile(ctx context.Context, accessToken string, p model.Profile) (model.Profile, error) {
	f.record("SaveProfile")
	if f.SaveProfileFunc == nil {
		return model.Profile{}, ErrNotScripted
	}
	return f.SaveProfileFunc(ctx, accessToken, p)
}
