package model

import "time"

// Session is an authenticated identity. A refresh issues a new value, fields
// are never changed in place.
type Session struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func (s Session) Valid() bool {
	return s.UserID != "" && s.AccessToken != ""
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// SignUpResult carries the outcome of a registration. Session is nil while
// the account waits for email confirmation.
type SignUpResult struct {
	UserID              string   `json:"user_id"`
	Session             *Session `json:"session,omitempty"`
	PendingConfirmation bool     `json:"pending_confirmation"`
}
