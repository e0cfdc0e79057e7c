package token

import "github.com/ghaggin/courier/internal/config"

// NewFromConfig builds the Manager for the modes that sign or verify
// access tokens.
func NewFromConfig(c *config.Config) (*Manager, error) {
	if err := c.RequireSecret(); err != nil {
		return nil, err
	}
	return NewManager(Config{
		Secret:    []byte(c.Token.Secret),
		Issuer:    c.Token.Issuer,
		AccessTTL: c.Token.AccessTTL,
	})
}
