package connectivity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func upInterface() ([]net.Interface, error) {
	return []net.Interface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
		{Name: "wlan0", Flags: net.FlagUp},
	}, nil
}

func TestNetProbe_online(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewNetProbe(srv.URL, nil, WithInterfaces(upInterface))
	assert.True(t, p.IsOnline(context.Background()))
}

func TestNetProbe_clientErrorIsStillReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewNetProbe(srv.URL, nil, WithInterfaces(upInterface))
	assert.True(t, p.IsOnline(context.Background()))
}

func TestNetProbe_offline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	tests := map[string]*NetProbe{
		"server error": NewNetProbe(srv.URL, nil, WithInterfaces(upInterface)),
		"unreachable":  NewNetProbe(closedURL, nil, WithInterfaces(upInterface)),
		"timeout":      NewNetProbe(slow.URL, nil, WithInterfaces(upInterface), WithTimeout(20*time.Millisecond)),
		"bad url":      NewNetProbe("://nope", nil, WithInterfaces(upInterface)),
		"loopback only": NewNetProbe(srv.URL, nil, WithInterfaces(func() ([]net.Interface, error) {
			return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
		})),
		"interfaces down": NewNetProbe(srv.URL, nil, WithInterfaces(func() ([]net.Interface, error) {
			return []net.Interface{{Name: "eth0"}}, nil
		})),
		"interfaces error": NewNetProbe(srv.URL, nil, WithInterfaces(func() ([]net.Interface, error) {
			return nil, errors.New("permission denied")
		})),
	}

	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			assert.False(t, p.IsOnline(context.Background()))
		})
	}
}

func TestAlways(t *testing.T) {
	assert.True(t, Always(true).IsOnline(context.Background()))
	assert.False(t, Always(false).IsOnline(context.Background()))
}
