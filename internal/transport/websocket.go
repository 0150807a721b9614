package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultWriteTimeout  = 5 * time.Second
	defaultAcceptBacklog = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Peers are headless stream tools, not browsers
	},
}

// Option configures a WebSocket listener.
type Option func(*options)

type options struct {
	clock        clockwork.Clock
	writeTimeout time.Duration
}

// WithClock injects the clock used for packet timestamps and deadlines.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithWriteTimeout bounds how long a Send may block on a slow peer.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WSListener accepts WebSocket connections on a TCP address. The root path
// upgrades to a connection; /health/live and /metrics serve the usual
// observability endpoints.
type WSListener struct {
	echo      *echo.Echo
	ln        net.Listener
	opts      options
	acceptCh  chan *WSConn
	done      chan struct{}
	closeOnce sync.Once
}

// Listen binds addr and starts serving. The TCP bind happens synchronously
// so an unusable address fails here, at startup, not later.
func Listen(addr string, opts ...Option) (*WSListener, error) {
	o := options{
		clock:        clockwork.NewRealClock(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	l := &WSListener{
		echo:     e,
		ln:       ln,
		opts:     o,
		acceptCh: make(chan *WSConn, defaultAcceptBacklog),
		done:     make(chan struct{}),
	}

	e.GET("/", l.handleConnect)
	e.GET("/health/live", handleLiveness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.Listener = ln
	go func() {
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Listener server stopped", "addr", addr, "error", err)
		}
	}()

	slog.Info("Listener ready", "addr", ln.Addr().String())
	return l, nil
}

// Accept blocks until the next connection is established or the listener
// closes.
func (l *WSListener) Accept() (Conn, error) {
	select {
	case c := <-l.acceptCh:
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

// Close stops accepting and shuts the HTTP server down. Established
// connections stay open; their owners close them. Idempotent.
func (l *WSListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.echo.Close()
	})
	return err
}

// Addr returns the bound address, with the port resolved if :0 was given.
func (l *WSListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *WSListener) handleConnect(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// A single failed handshake must not affect the listener
		slog.Warn("Connection rejected", "remote_addr", c.Request().RemoteAddr, "error", err)
		return nil
	}

	wc := newWSConn(conn, l.opts.clock, l.opts.writeTimeout)
	select {
	case l.acceptCh <- wc:
	case <-l.done:
		_ = conn.Close()
	}
	return nil
}

func handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// WSConn adapts a WebSocket connection to the Conn interface. Each binary
// message is one packet; other message types are skipped.
type WSConn struct {
	id           string
	conn         *websocket.Conn
	clock        clockwork.Clock
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func newWSConn(conn *websocket.Conn, clock clockwork.Clock, writeTimeout time.Duration) *WSConn {
	return &WSConn{
		id:           uuid.NewString(),
		conn:         conn,
		clock:        clock,
		writeTimeout: writeTimeout,
	}
}

func (c *WSConn) ID() string {
	return c.id
}

// Recv blocks until the next binary message arrives and stamps it with the
// arrival time.
func (c *WSConn) Recv() (Packet, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Packet{}, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return Packet{Timestamp: c.clock.Now(), Data: data}, nil
	}
}

// Send writes the packet as one binary message. The write deadline is the
// packet timestamp plus the configured write timeout.
func (c *WSConn) Send(p Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ts := p.Timestamp
	if ts.IsZero() {
		ts = c.clock.Now()
	}
	_ = c.conn.SetWriteDeadline(ts.Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, p.Data)
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}

func (c *WSConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
