package relay

import (
	"github.com/streamfork/relay/internal/channel"
	"github.com/streamfork/relay/internal/logging"
	"github.com/streamfork/relay/internal/metrics"
	"github.com/streamfork/relay/internal/transport"
)

// runPublisher pumps packets from one publisher connection into the
// channel until the connection ends. A disconnecting publisher leaves the
// channel and every other session untouched; subscribers simply stop
// receiving new frames until another publisher connects.
func (r *Relay) runPublisher(conn transport.Conn) {
	log := logging.WithConn(conn.ID(), conn.RemoteAddr().String())
	log.Info("Publisher connected")
	metrics.ActivePublishers.Inc()

	defer func() {
		_ = conn.Close()
		metrics.ActivePublishers.Dec()
		r.publishers.Add(-1)
		log.Info("Publisher connection closed")
	}()

	for {
		pkt, err := conn.Recv()
		if err != nil {
			log.Warn("Error receiving from publisher", "error", err)
			return
		}

		metrics.FramesReceivedTotal.Inc()
		metrics.BytesReceivedTotal.Add(float64(len(pkt.Data)))

		// Fire-and-forget: Publish never blocks and never fails the session
		receivers := r.channel.Publish(channel.Frame{
			Payload:   pkt.Data,
			Timestamp: pkt.Timestamp,
		})
		metrics.PublishFanout.Observe(float64(receivers))

		log.Debug("Frame published", "bytes", len(pkt.Data), "receivers", receivers)
	}
}
