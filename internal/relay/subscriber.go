package relay

import (
	"context"
	"errors"

	"github.com/streamfork/relay/internal/channel"
	"github.com/streamfork/relay/internal/logging"
	"github.com/streamfork/relay/internal/metrics"
	"github.com/streamfork/relay/internal/transport"
)

// runSubscriber pumps frames from a fresh subscription to one subscriber
// connection. The session ends on write failure, peer disconnect, or
// channel close; lag only costs this subscriber the skipped frames.
func (r *Relay) runSubscriber(conn transport.Conn) {
	log := logging.WithConn(conn.ID(), conn.RemoteAddr().String())
	log.Info("Subscriber connected")
	metrics.ActiveSubscribers.Inc()

	sub := r.channel.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		sub.Close()
		_ = conn.Close()
		metrics.ActiveSubscribers.Dec()
		r.subscribers.Add(-1)
		log.Info("Subscriber connection closed")
	}()

	// Drain inbound traffic so an abrupt peer close is noticed even while
	// waiting for the next frame.
	go func() {
		for {
			if _, err := conn.Recv(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		f, err := sub.Next(ctx)
		if err != nil {
			var lagged *channel.LaggedError
			switch {
			case errors.As(err, &lagged):
				metrics.LagEventsTotal.Inc()
				metrics.FramesSkippedTotal.Add(float64(lagged.Skipped))
				log.Warn("Subscriber lagging, frames skipped", "skipped", lagged.Skipped)
				continue
			case errors.Is(err, channel.ErrClosed):
				log.Info("Channel closed, ending subscriber session")
			default:
				log.Info("Subscriber went away")
			}
			return
		}

		if err := conn.Send(transport.Packet{Timestamp: r.clock.Now(), Data: f.Payload}); err != nil {
			log.Warn("Error sending to subscriber", "error", err)
			return
		}

		metrics.FramesSentTotal.Inc()
		metrics.BytesSentTotal.Add(float64(len(f.Payload)))

		log.Debug("Frame sent", "bytes", len(f.Payload))
	}
}
