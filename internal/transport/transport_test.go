package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload(pts int64) Payload {
	return Payload{Data: bytes.Repeat([]byte{byte(pts)}, 2*2*4), PTS: pts, Width: 2, Height: 2}
}

func TestPayloadJSONShape(t *testing.T) {
	b, err := json.Marshal(Payload{Data: []byte{1, 2}, PTS: 42, Width: 1920, Height: 1080})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.ElementsMatch(t, []string{"data", "pts", "width", "height"}, keys(m))
	assert.Equal(t, float64(42), m["pts"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestPayloadImage(t *testing.T) {
	img, err := testPayload(1).Image()
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 8, img.Stride)

	_, err = Payload{Data: []byte{1}, Width: 2, Height: 2}.Image()
	require.Error(t, err)
	_, err = Payload{}.Image()
	require.Error(t, err)
}

func TestChunkRoundTrip(t *testing.T) {
	data := make([]byte, 100_000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	chunks := SplitMessage(7, data, 4096)
	require.Len(t, chunks, 25)

	var r Reassembler
	for i, c := range chunks {
		out, done, err := r.Add(c)
		require.NoError(t, err)
		if i < len(chunks)-1 {
			assert.False(t, done)
			continue
		}
		require.True(t, done)
		assert.Equal(t, data, out)
	}
}

func TestChunkEmptyMessage(t *testing.T) {
	chunks := SplitMessage(1, nil, 10)
	require.Len(t, chunks, 1)

	var r Reassembler
	out, done, err := r.Add(chunks[0])
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, out)
}

func TestReassemblerAbandonsIncompleteMessage(t *testing.T) {
	first := SplitMessage(1, bytes.Repeat([]byte{1}, 30), 10)
	second := SplitMessage(2, bytes.Repeat([]byte{2}, 15), 10)

	var r Reassembler
	_, done, err := r.Add(first[0])
	require.NoError(t, err)
	require.False(t, done)

	_, _, err = r.Add(second[0])
	require.NoError(t, err)
	out, done, err := r.Add(second[1])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, bytes.Repeat([]byte{2}, 15), out)
}

func TestReassemblerRejectsMalformed(t *testing.T) {
	var r Reassembler
	_, _, err := r.Add([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedChunk)

	chunks := SplitMessage(3, bytes.Repeat([]byte{3}, 30), 10)
	_, _, err = r.Add(chunks[1])
	require.ErrorIs(t, err, ErrMalformedChunk)

	_, _, err = r.Add(chunks[0])
	require.NoError(t, err)
	_, _, err = r.Add(chunks[2])
	require.ErrorIs(t, err, ErrMalformedChunk)
}

func TestEventBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus(16)
	defer bus.Close()

	require.ErrorIs(t, bus.SendFrame(testPayload(0)), ErrNoSubscribers)

	ch := bus.Subscribe()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, bus.SendFrame(testPayload(i)))
	}
	for i := int64(1); i <= 5; i++ {
		select {
		case e := <-ch:
			p, ok := PayloadFromEvent(e)
			require.True(t, ok)
			assert.Equal(t, i, p.PTS)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for frame event")
		}
	}
}

func TestEventBusClosed(t *testing.T) {
	bus := NewEventBus(1)
	bus.Subscribe()
	require.NoError(t, bus.Close())
	assert.True(t, IsClosed(bus.SendFrame(testPayload(1))))
	require.NoError(t, bus.Close())
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := NewFrameServer(nil)
	got := make(chan Payload, 8)
	srv.OnFrame(func(p Payload) { got <- p })
	ts := httptest.NewServer(srv)
	defer ts.Close()

	sink, err := DialWebSocket(context.Background(), wsURL(ts), nil)
	require.NoError(t, err)
	defer sink.Close()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, sink.SendFrame(testPayload(i)))
	}
	for i := int64(1); i <= 3; i++ {
		select {
		case p := <-got:
			assert.Equal(t, i, p.PTS)
			assert.Equal(t, testPayload(i).Data, p.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for frame")
		}
	}
}

func TestWebSocketSinkClosedByPeer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}))
	defer ts.Close()

	sink, err := DialWebSocket(context.Background(), wsURL(ts), nil)
	require.NoError(t, err)

	select {
	case <-sink.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not notice the peer closing")
	}
	assert.True(t, IsClosed(sink.SendFrame(testPayload(1))))
	assert.NoError(t, sink.Close())
}

func TestWebSocketSinkWriteTimeoutClosesSink(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release // never read, so the sender's buffers fill up
	}))
	defer ts.Close()

	sink, err := DialWebSocket(context.Background(), wsURL(ts), nil)
	require.NoError(t, err)
	defer sink.Close()
	sink.writeWait = 50 * time.Millisecond

	big := Payload{Data: bytes.Repeat([]byte{7}, 4<<20), Width: 1024, Height: 1024}
	var sendErr error
	for i := 0; i < 64 && sendErr == nil; i++ {
		sendErr = sink.SendFrame(big)
	}
	require.Error(t, sendErr, "writes to a stalled peer must eventually time out")
	assert.True(t, IsClosed(sendErr))

	select {
	case <-sink.Done():
	case <-time.After(time.Second):
		t.Fatal("sink still open after a failed write")
	}
	assert.True(t, IsClosed(sink.SendFrame(testPayload(1))))
}

func TestDialWebSocketFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := DialWebSocket(ctx, "ws://127.0.0.1:1/frames", nil)
	require.Error(t, err)
}

func TestDataChannelTransportWithoutChannels(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil, nil)
	err := tr.SendFrame(testPayload(1))
	require.ErrorIs(t, err, ErrNotReady)
	assert.False(t, IsClosed(err))
	require.ErrorIs(t, tr.SendControl(Command{Type: CommandStart}), ErrNotReady)
}

func TestDataChannelTransportReassemblesFrames(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil, nil)
	var got []Payload
	tr.OnFrame(func(p Payload) { got = append(got, p) })

	want := Payload{Data: bytes.Repeat([]byte{9}, 64*64*4), PTS: 99, Width: 64, Height: 64}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	for _, c := range SplitMessage(1, data, 1000) {
		tr.handleFrameMessage(webrtc.DataChannelMessage{Data: c})
	}
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}

func TestDataChannelTransportControl(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil, nil)
	var got []Command
	tr.OnControl(func(c Command) { got = append(got, c) })

	tr.handleControlMessage(webrtc.DataChannelMessage{Data: []byte(`{"type":"stop"}`)})
	tr.handleControlMessage(webrtc.DataChannelMessage{Data: []byte(`not json`)})
	require.Len(t, got, 1)
	assert.Equal(t, CommandStop, got[0].Type)
}

func TestFlowPassesBelowHighWater(t *testing.T) {
	f := newFlow(100, time.Second)
	err := f.wait(func() uint64 { return 100 }, func() bool { return false })
	require.NoError(t, err)
}

func TestFlowWaitsForBufferedAmountLow(t *testing.T) {
	f := newFlow(100, 5*time.Second)
	var buffered atomic.Uint64
	buffered.Store(500)

	go func() {
		time.Sleep(30 * time.Millisecond)
		buffered.Store(10)
		f.signal()
	}()

	start := time.Now()
	err := f.wait(buffered.Load, func() bool { return false })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFlowStopsWhenChannelCloses(t *testing.T) {
	f := newFlow(100, 5*time.Second)
	var closed atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		closed.Store(true)
	}()

	err := f.wait(func() uint64 { return 500 }, closed.Load)
	require.ErrorIs(t, err, ErrClosed)
	assert.False(t, errors.Is(err, errStalled))
}

func TestFlowStallTimesOut(t *testing.T) {
	f := newFlow(100, 50*time.Millisecond)
	err := f.wait(func() uint64 { return 500 }, func() bool { return false })
	require.ErrorIs(t, err, errStalled)
	assert.True(t, IsClosed(err))
}
