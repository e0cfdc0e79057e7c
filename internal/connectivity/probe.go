package connectivity

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 3 * time.Second

// Probe reports whether the device has a usable network path right now.
type Probe interface {
	IsOnline(ctx context.Context) bool
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetProbe checks for an active non-loopback interface and then for a
// response from the remote host. Any error counts as offline.
type NetProbe struct {
	url        string
	timeout    time.Duration
	client     httpClient
	interfaces func() ([]net.Interface, error)
	log        *zap.Logger
}

type Option func(*NetProbe)

func WithClient(c httpClient) Option {
	return func(p *NetProbe) {
		p.client = c
	}
}

func WithInterfaces(fn func() ([]net.Interface, error)) Option {
	return func(p *NetProbe) {
		p.interfaces = fn
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *NetProbe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewNetProbe(url string, log *zap.Logger, opts ...Option) *NetProbe {
	if log == nil {
		log = zap.NewNop()
	}
	p := &NetProbe{
		url:        url,
		timeout:    defaultTimeout,
		client:     http.DefaultClient,
		interfaces: net.Interfaces,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *NetProbe) IsOnline(ctx context.Context) bool {
	if !p.hasNetwork() {
		p.log.Debug("no active network interface")
		return false
	}

	reachable := p.reachable(ctx)
	p.log.Debug("connectivity probe", zap.String("url", p.url), zap.Bool("reachable", reachable))
	return reachable
}

func (p *NetProbe) hasNetwork() bool {
	ifaces, err := p.interfaces()
	if err != nil {
		p.log.Debug("listing network interfaces failed", zap.Error(err))
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

func (p *NetProbe) reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Debug("building probe request failed", zap.Error(err))
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("probe request failed", zap.Error(err))
		return false
	}
	_ = resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// Always is a Probe with a fixed answer.
type Always bool

func (a Always) IsOnline(context.Context) bool {
	return bool(a)
}
