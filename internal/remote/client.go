package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/resilient"
	"go.uber.org/zap"
)

const (
	pathSignIn          = "auth/v1/signin"
	pathSignUp          = "auth/v1/signup"
	pathSignOut         = "auth/v1/signout"
	pathUser            = "auth/v1/user"
	pathToken           = "auth/v1/token"
	pathRecover         = "auth/v1/recover"
	pathRecoverComplete = "auth/v1/recover/complete"
	pathOrders          = "rest/v1/orders"
	pathOrderChanges    = "rest/v1/orders/changes"
	pathProfile         = "rest/v1/profiles/me"

	EventChange = "change"
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the data service over JSON HTTP.
type Client struct {
	client    httpClient
	stream    httpClient
	serverURL url.URL
	log       *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient uses client for plain calls and stream for the change feed,
// which must not carry an overall request timeout.
func NewClient(client, stream httpClient, serverURL url.URL, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		client:    client,
		stream:    stream,
		serverURL: serverURL,
		log:       log,
	}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, http.MethodPost, pathSignIn, "", nil, CredentialsRequest{Email: email, Password: password}, &s)
	return s, err
}

func (c *Client) SignUp(ctx context.Context, email, password string) (model.SignUpResult, error) {
	var res model.SignUpResult
	err := c.do(ctx, http.MethodPost, pathSignUp, "", nil, CredentialsRequest{Email: email, Password: password}, &res)
	return res, err
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, pathSignOut, accessToken, nil, nil, nil)
}

func (c *Client) ValidateSession(ctx context.Context, accessToken string) (string, error) {
	var u UserResponse
	if err := c.do(ctx, http.MethodGet, pathUser, accessToken, nil, nil, &u); err != nil {
		return "", err
	}
	return u.ID, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, http.MethodPost, pathToken, "", nil, RefreshRequest{RefreshToken: refreshToken}, &s)
	return s, err
}

func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, pathRecover, "", nil, RecoverRequest{Email: email}, nil)
}

func (c *Client) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error {
	return c.do(ctx, http.MethodPost, pathRecoverComplete, "", nil, CompleteRecoveryRequest{Token: resetToken, Password: newPassword}, nil)
}

func (c *Client) ListOrders(ctx context.Context, accessToken string, filter model.OrderFilter) ([]model.Order, error) {
	var orders []model.Order
	err := c.do(ctx, http.MethodGet, pathOrders, accessToken, EncodeFilter(filter), nil, &orders)
	return orders, err
}

func (c *Client) UpdateOrderStatus(ctx context.Context, accessToken, orderID string, status model.OrderStatus) error {
	return c.do(ctx, http.MethodPatch, pathOrders+"/"+orderID, accessToken, nil, StatusRequest{Status: status}, nil)
}

func (c *Client) GetProfile(ctx context.Context, accessToken string) (model.Profile, error) {
	var p model.Profile
	err := c.do(ctx, http.MethodGet, pathProfile, accessToken, nil, nil, &p)
	return p, err
}

func (c *Client) SaveProfile(ctx context.Context, accessToken string, p model.Profile) (model.Profile, error) {
	var saved model.Profile
	err := c.do(ctx, http.MethodPut, pathProfile, accessToken, nil, p, &saved)
	return saved, err
}

func (c *Client) WatchOrders(ctx context.Context, accessToken string) (<-chan struct{}, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathOrderChanges, accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watch orders: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "event:") || strings.TrimSpace(strings.TrimPrefix(line, "event:")) != EventChange {
				continue
			}
			select {
			case ch <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.log.Debug("order change stream ended", zap.Error(err))
		}
	}()
	return ch, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, accessToken string, query url.Values, body any) (*http.Request, error) {
	u := c.serverURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, accessToken, query, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(b, e)

	if rejected(resp.StatusCode) {
		return resilient.Reject(e)
	}
	return e
}
