package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ghaggin/courier/internal/model"
)

// Service is everything the driver app needs from the hosted backend.
// Errors the backend refuses explicitly carry resilient.ErrRejected.
type Service interface {
	SignIn(ctx context.Context, email, password string) (model.Session, error)
	SignUp(ctx context.Context, email, password string) (model.SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	ValidateSession(ctx context.Context, accessToken string) (string, error)
	RefreshSession(ctx context.Context, refreshToken string) (model.Session, error)
	ResetPassword(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error

	ListOrders(ctx context.Context, accessToken string, filter model.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, accessToken, orderID string, status model.OrderStatus) error
	// WatchOrders signals once per change to the orders collection until
	// ctx ends or the stream breaks, then closes the channel.
	WatchOrders(ctx context.Context, accessToken string) (<-chan struct{}, error)

	GetProfile(ctx context.Context, accessToken string) (model.Profile, error)
	SaveProfile(ctx context.Context, accessToken string, p model.Profile) (model.Profile, error)
}

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: %d %s", e.Status, e.Message)
}

// rejected reports whether the backend refused the request itself, as
// opposed to failing to handle it.
func rejected(status int) bool {
	switch status {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}
