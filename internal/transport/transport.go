// Package transport provides the connection capability the relay is built
// on: bind an address, accept bidirectional connections, and move opaque
// timestamped packets over them. The relay never looks inside a packet.
//
// The shipped implementation runs over WebSocket binary messages (see
// Listen), with the HTTP surface also serving liveness and Prometheus
// endpoints.
package transport

import (
	"errors"
	"net"
	"time"
)

// ErrListenerClosed is returned by Accept after the listener shuts down.
var ErrListenerClosed = errors.New("listener closed")

// Packet is one opaque chunk plus its transport timestamp. On receive the
// timestamp is the arrival time; on send it is the caller's send time and
// bounds the write deadline. The relay does not reinterpret it.
type Packet struct {
	Timestamp time.Time
	Data      []byte
}

// Conn is one accepted bidirectional connection. ID is a stable identifier
// for log correlation. Recv and Send must each be called from at most one
// goroutine at a time.
type Conn interface {
	ID() string
	Recv() (Packet, error)
	Send(Packet) error
	Close() error
	RemoteAddr() net.Addr
}

// Listener accepts inbound connections on a bound address.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}
