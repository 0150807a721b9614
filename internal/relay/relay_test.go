package relay

import (
	"fmt"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamfork/relay/internal/channel"
	"github.com/streamfork/relay/internal/transport"
)

// testRelay binds both endpoints on free ports and starts the serve loops.
func testRelay(t *testing.T, capacity, maxPublishers, maxSubscribers int) (*Relay, *transport.WSListener, *transport.WSListener) {
	t.Helper()

	ch := channel.New(capacity)
	t.Cleanup(ch.Close)

	input, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = input.Close() })

	output, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = output.Close() })

	r := New(ch, clockwork.NewRealClock(), maxPublishers, maxSubscribers)
	go r.ServePublishers(input)
	go r.ServeSubscribers(output)

	return r, input, output
}

func dialEndpoint(t *testing.T, l *transport.WSListener) *ws.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/", l.Addr().String())
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *ws.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, ws.BinaryMessage, msgType)
	return data
}

func waitForSubscribers(t *testing.T, r *Relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Subscribers() == n },
		2*time.Second, 5*time.Millisecond, "expected %d subscriber sessions", n)
}

func waitForPublishers(t *testing.T, r *Relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Publishers() == n },
		2*time.Second, 5*time.Millisecond, "expected %d publisher sessions", n)
}

func TestRelayDeliversFramesInOrder(t *testing.T) {
	r, input, output := testRelay(t, 64, 0, 0)

	subA := dialEndpoint(t, output)
	subB := dialEndpoint(t, output)
	waitForSubscribers(t, r, 2)

	pub := dialEndpoint(t, input)
	waitForPublishers(t, r, 1)

	sizes := []int{100, 200, 50}
	for _, size := range sizes {
		require.NoError(t, pub.WriteMessage(ws.BinaryMessage, make([]byte, size)))
	}

	for _, sub := range []*ws.Conn{subA, subB} {
		for _, size := range sizes {
			assert.Len(t, readFrame(t, sub), size)
		}
	}
}

func TestLateSubscriberGetsNoHistory(t *testing.T) {
	r, input, output := testRelay(t, 64, 0, 0)

	early := dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	pub := dialEndpoint(t, input)
	waitForPublishers(t, r, 1)

	for _, size := range []int{100, 200, 50} {
		require.NoError(t, pub.WriteMessage(ws.BinaryMessage, make([]byte, size)))
	}

	// Only once the early subscriber has all three are they known published
	for _, size := range []int{100, 200, 50} {
		assert.Len(t, readFrame(t, early), size)
	}

	late := dialEndpoint(t, output)
	waitForSubscribers(t, r, 2)

	require.NoError(t, pub.WriteMessage(ws.BinaryMessage, make([]byte, 77)))

	// The late subscriber's very first frame is the new one
	assert.Len(t, readFrame(t, late), 77)
	assert.Len(t, readFrame(t, early), 77)
}

func TestPublisherDisconnectLeavesSubscribersAlive(t *testing.T) {
	r, input, output := testRelay(t, 64, 0, 0)

	sub := dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	pub := dialEndpoint(t, input)
	waitForPublishers(t, r, 1)

	require.NoError(t, pub.WriteMessage(ws.BinaryMessage, []byte("before")))
	assert.Equal(t, "before", string(readFrame(t, sub)))

	// Abrupt close, no close handshake
	require.NoError(t, pub.NetConn().Close())
	waitForPublishers(t, r, 0)

	// Subscriber session is still alive and serves frames from a new publisher
	pub2 := dialEndpoint(t, input)
	waitForPublishers(t, r, 1)
	require.NoError(t, pub2.WriteMessage(ws.BinaryMessage, []byte("after")))
	assert.Equal(t, "after", string(readFrame(t, sub)))
}

func TestMultiplePublishersInterleave(t *testing.T) {
	r, input, output := testRelay(t, 4096, 0, 0)

	sub := dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	pubA := dialEndpoint(t, input)
	pubB := dialEndpoint(t, input)
	waitForPublishers(t, r, 2)

	const perPublisher = 50
	for i := 0; i < perPublisher; i++ {
		require.NoError(t, pubA.WriteMessage(ws.BinaryMessage, []byte(fmt.Sprintf("A%03d", i))))
		require.NoError(t, pubB.WriteMessage(ws.BinaryMessage, []byte(fmt.Sprintf("B%03d", i))))
	}

	// Per-publisher relative order must survive the merge
	lastSeen := map[byte]int{'A': -1, 'B': -1}
	for i := 0; i < 2*perPublisher; i++ {
		data := readFrame(t, sub)
		var seq int
		_, err := fmt.Sscanf(string(data[1:]), "%d", &seq)
		require.NoError(t, err)
		assert.Equal(t, lastSeen[data[0]]+1, seq, "publisher %c out of order", data[0])
		lastSeen[data[0]] = seq
	}
	assert.Equal(t, perPublisher-1, lastSeen['A'])
	assert.Equal(t, perPublisher-1, lastSeen['B'])
}

func TestSubscriberDisconnectReapsSession(t *testing.T) {
	r, _, output := testRelay(t, 64, 0, 0)

	sub := dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	// No frames flowing; the read-drain goroutine must still notice
	require.NoError(t, sub.NetConn().Close())
	waitForSubscribers(t, r, 0)
}

func TestSubscriberLimit(t *testing.T) {
	r, _, output := testRelay(t, 64, 0, 1)

	dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	// Second connection is accepted at the transport level, then closed by
	// the relay. Its reads fail shortly after.
	second := dialEndpoint(t, output)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 1, r.Subscribers())
}

func TestChannelCloseEndsSubscriberSessions(t *testing.T) {
	ch := channel.New(64)

	output, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = output.Close() })

	r := New(ch, clockwork.NewRealClock(), 0, 0)
	go r.ServeSubscribers(output)

	sub := dialEndpoint(t, output)
	waitForSubscribers(t, r, 1)

	ch.Close()

	// The session ends cleanly and closes the connection
	waitForSubscribers(t, r, 0)
	require.NoError(t, sub.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = sub.ReadMessage()
	assert.Error(t, err)
}
