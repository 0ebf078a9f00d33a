// Package proxy connects to a remote transport session server over a
// WebSocket. The remote side owns the physical adapter; this side only sees the
// capabilities it advertises.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceTransport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceTransport/pkg/transport"
)

const (
	// DefaultPort is used when the address has no port.
	DefaultPort = 9900

	// DefaultTimeout bounds the connect and capability handshake.
	DefaultTimeout = 10 * time.Second

	sessionPath = "/transport"

	// forwarded lists the remote capabilities this side can serve.
	// JTAG shifts are not carried by the session protocol.
	forwarded = ^transport.CapJTAG
)

var (
	// ErrBadAddress is returned for an empty or malformed --proxy value.
	ErrBadAddress = errors.New("proxy: malformed address")

	// ErrRemote is returned when the session server rejects the session.
	ErrRemote = errors.New("proxy: remote error")
)

// Options are the proxy-specific knobs.
type Options struct {
	Address string
	Timeout time.Duration
}

// AddFlags registers the proxy flag group.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Address, "proxy", "", "session server address, host[:port]")
	fs.DurationVar(&o.Timeout, "proxy-timeout", DefaultTimeout, "proxy connect timeout")
}

// ParseAddress validates addr and returns it as host:port, adding
// DefaultPort when no port is given.
func ParseAddress(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrBadAddress)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		port = strconv.Itoa(DefaultPort)
		if strings.Contains(host, ":") && net.ParseIP(host) == nil {
			return "", fmt.Errorf("%w %q: %v", ErrBadAddress, addr, err)
		}
	}
	if host == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrBadAddress, addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("%w %q: invalid port %q", ErrBadAddress, addr, port)
	}
	return net.JoinHostPort(host, port), nil
}

type request struct {
	Request string `json:"request"`
}

type response struct {
	Capabilities []string `json:"capabilities,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Proxy is a session with a remote transport server.
type Proxy struct {
	addr   string
	conn   *websocket.Conn
	caps   transport.Capability
	remote transport.Capability
}

// New connects to the session server and queries its capabilities.
func New(ctx context.Context, opts Options) (*Proxy, error) {
	addr, err := ParseAddress(opts.Address)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+sessionPath, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy: dial %s: %w", addr, err)
	}

	caps, err := handshake(ctx, conn)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("proxy: %s: %w", addr, err)
	}
	logging.Debug(logging.ComponentProxy, "session established", "addr", addr, "capabilities", caps.String())
	if dropped := caps &^ forwarded; dropped != 0 {
		logging.Debug(logging.ComponentProxy, "remote capabilities not forwarded", "capabilities", dropped.String())
	}

	return &Proxy{
		addr:   addr,
		conn:   conn,
		caps:   caps&forwarded | transport.CapProxy,
		remote: caps,
	}, nil
}

func handshake(ctx context.Context, conn *websocket.Conn) (transport.Capability, error) {
	if err := wsjson.Write(ctx, conn, request{Request: "capabilities"}); err != nil {
		return 0, err
	}
	var resp response
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	var caps transport.Capability
	for _, name := range resp.Capabilities {
		c, ok := transport.ParseCapability(name)
		if !ok {
			logging.Warn(logging.ComponentProxy, "ignoring unknown remote capability", "name", name)
			continue
		}
		caps |= c
	}
	return caps, nil
}

// Addr returns the host:port of the session server.
func (p *Proxy) Addr() string { return p.addr }

func (p *Proxy) Capabilities() transport.Capability { return p.caps }

// Remote returns every capability the session server advertised, including
// those this side cannot forward.
func (p *Proxy) Remote() transport.Capability { return p.remote }

func (p *Proxy) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "")
}
