package relay

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/streamfork/relay/internal/channel"
	"github.com/streamfork/relay/internal/metrics"
	"github.com/streamfork/relay/internal/transport"
)

// Relay fans one inbound packet stream out to all connected subscribers
// through a shared broadcast channel. Construct one per process and hand it
// both listeners.
type Relay struct {
	channel        *channel.Channel
	clock          clockwork.Clock
	maxPublishers  int // 0 = unlimited
	maxSubscribers int // 0 = unlimited

	publishers  atomic.Int64
	subscribers atomic.Int64
}

func New(ch *channel.Channel, clock clockwork.Clock, maxPublishers, maxSubscribers int) *Relay {
	return &Relay{
		channel:        ch,
		clock:          clock,
		maxPublishers:  maxPublishers,
		maxSubscribers: maxSubscribers,
	}
}

// Publishers returns the number of live publisher sessions.
func (r *Relay) Publishers() int {
	return int(r.publishers.Load())
}

// Subscribers returns the number of live subscriber sessions.
func (r *Relay) Subscribers() int {
	return int(r.subscribers.Load())
}

// ServePublishers accepts publisher connections until the listener closes,
// spawning one session per connection. Accept errors other than listener
// shutdown are logged and the loop keeps going.
func (r *Relay) ServePublishers(ln transport.Listener) {
	slog.Info("Input listener serving", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, transport.ErrListenerClosed) {
				slog.Info("Input listener closed")
				return
			}
			slog.Error("Accept failed on input listener", "error", err)
			continue
		}

		if r.maxPublishers > 0 && int(r.publishers.Load()) >= r.maxPublishers {
			slog.Warn("Rejecting publisher: connection limit reached",
				"remote_addr", conn.RemoteAddr().String(),
				"limit", r.maxPublishers,
			)
			metrics.ConnectionsRejectedTotal.WithLabelValues("publisher").Inc()
			_ = conn.Close()
			continue
		}

		r.publishers.Add(1)
		go r.runPublisher(conn)
	}
}

// ServeSubscribers is the output-side counterpart of ServePublishers. Each
// accepted connection gets its own fresh subscription.
func (r *Relay) ServeSubscribers(ln transport.Listener) {
	slog.Info("Output listener serving", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, transport.ErrListenerClosed) {
				slog.Info("Output listener closed")
				return
			}
			slog.Error("Accept failed on output listener", "error", err)
			continue
		}

		if r.maxSubscribers > 0 && int(r.subscribers.Load()) >= r.maxSubscribers {
			slog.Warn("Rejecting subscriber: connection limit reached",
				"remote_addr", conn.RemoteAddr().String(),
				"limit", r.maxSubscribers,
			)
			metrics.ConnectionsRejectedTotal.WithLabelValues("subscriber").Inc()
			_ = conn.Close()
			continue
		}

		r.subscribers.Add(1)
		go r.runSubscriber(conn)
	}
}
