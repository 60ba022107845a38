package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second // must exceed pingPeriod
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1024 * 1024 * 2

	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseTimeout     = 5 * time.Second
)

// GorillaDialer dials the node with gorilla/websocket.
type GorillaDialer struct {
	handshakeTimeout time.Duration
	closeTimeout     time.Duration
	proxyAddr        string
	header           http.Header
}

// DialerOpt configures a GorillaDialer.
type DialerOpt = Opt[GorillaDialer]

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) DialerOpt {
	return func(g *GorillaDialer) {
		g.handshakeTimeout = d
	}
}

// WithCloseTimeout bounds how long Close waits to write the close frame.
func WithCloseTimeout(d time.Duration) DialerOpt {
	return func(g *GorillaDialer) {
		g.closeTimeout = d
	}
}

// WithSOCKS5Proxy routes the TCP connection through a SOCKS5 proxy.
func WithSOCKS5Proxy(addr string) DialerOpt {
	return func(g *GorillaDialer) {
		g.proxyAddr = addr
	}
}

// WithHeader adds a request header to the handshake.
func WithHeader(key, value string) DialerOpt {
	return func(g *GorillaDialer) {
		if g.header == nil {
			g.header = http.Header{}
		}
		g.header.Add(key, value)
	}
}

// NewGorillaDialer returns a dialer with 10s handshake and 5s close timeouts.
func NewGorillaDialer(opts ...DialerOpt) *GorillaDialer {
	g := &GorillaDialer{handshakeTimeout: defaultHandshakeTimeout, closeTimeout: defaultCloseTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dial opens a socket to url. Proxy settings come from WithSOCKS5Proxy or,
// failing that, the environment.
func (g *GorillaDialer) Dial(ctx context.Context, url string) (Socket, error) {
	if url == "" {
		return nil, errors.New("ws: url cannot be empty")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: g.handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if g.proxyAddr != "" {
		pd, err := proxy.SOCKS5("tcp", g.proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy %s: %w", g.proxyAddr, err)
		}
		if cd, ok := pd.(proxy.ContextDialer); ok {
			dialer.NetDialContext = cd.DialContext
		} else {
			dialer.NetDial = pd.Dial
		}
		dialer.Proxy = nil
	}

	conn, _, err := dialer.DialContext(ctx, url, g.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &Client{conn: conn, closeTimeout: g.closeTimeout, done: make(chan struct{})}, nil
}

// Client is a Socket over a gorilla connection.
type Client struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	closeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
	listening sync.Once
}

// Listen starts the read and ping pumps. Only the first call has effect.
func (c *Client) Listen(h SocketHandler) {
	c.listening.Do(func() {
		goplus.Go(func() { c.readPump(h) })
		goplus.Go(c.pingPump)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close sends a normal close frame and tears the connection down. It is safe
// to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.closeTimeout)); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			logger.Debug().Err(werr).Msg("ws close frame not sent")
		}
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump(h SocketHandler) {
	code, reason := websocket.CloseAbnormalClosure, ""
	defer func() {
		c.closeOnce.Do(func() {
			close(c.done)
			_ = c.conn.Close()
		})
		if h.OnClose != nil {
			h.OnClose(code, reason)
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, ce.Text
			case c.closed():
				code, reason = websocket.CloseNormalClosure, "client disconnect"
			default:
				reason = err.Error()
			}
			if !c.closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error().Err(err).Msg("ws read error")
				if h.OnError != nil {
					h.OnError(err)
				}
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug().Err(err).Msg("ws ping failed")
				return
			}
		}
	}
}

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed() {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
