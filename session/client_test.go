package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vay-org/motionsdk-go/pose"
	"github.com/vay-org/motionsdk-go/protocol"
	"github.com/vay-org/motionsdk-go/transport"
)

const testTimeout = 2 * time.Second

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// fakeServer is a scripted analysis service endpoint. It decodes client
// messages onto channels and lets tests push server messages back.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn

	configCh chan protocol.Configuration
	frameCh  chan protocol.Frame

	// autoAck acknowledges every configuration message immediately.
	autoAck bool
}

func newFakeServer(t *testing.T, autoAck bool) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		configCh: make(chan protocol.Configuration, 16),
		frameCh:  make(chan protocol.Frame, 16),
		autoAck:  autoAck,
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conn = conn
	fs.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch {
		case msg.Configuration != nil:
			fs.configCh <- *msg.Configuration
			if fs.autoAck {
				fs.send(protocol.ServerMessage{
					ConfigurationAck: &protocol.ConfigurationAck{
						ExerciseKey: msg.Configuration.ExerciseKey,
					},
				})
			}
		case msg.Frame != nil:
			fs.frameCh <- *msg.Frame
		}
	}
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) send(msg protocol.ServerMessage) {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	if conn == nil {
		fs.t.Fatal("no client connected")
	}
	data, err := json.Marshal(msg)
	require.NoError(fs.t, err)
	require.NoError(fs.t, conn.WriteMessage(websocket.TextMessage, data))
}

// ack acknowledges the pending configuration manually (autoAck disabled).
func (fs *fakeServer) ack() {
	fs.send(protocol.ServerMessage{ConfigurationAck: &protocol.ConfigurationAck{}})
}

// sendPose answers the outstanding frame with a complete skeleton.
func (fs *fakeServer) sendPose(seq int64) {
	fs.send(protocol.ServerMessage{Pose: &protocol.PoseMessage{
		Seq:    seq,
		Points: fullSkeletonPoints(),
	}})
}

// closeFrame sends a WebSocket-level close frame without closing the TCP
// connection, leaving the client side unable to write.
func (fs *fakeServer) closeFrame(code int, reason string) {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	if conn == nil {
		fs.t.Fatal("no client connected")
	}
	msg := websocket.FormatCloseMessage(code, reason)
	require.NoError(fs.t, conn.WriteMessage(websocket.CloseMessage, msg))
}

func (fs *fakeServer) closeConn() {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func fullSkeletonPoints() []protocol.WirePoint {
	points := make([]protocol.WirePoint, 0, pose.NumKeypoints)
	for i, k := range pose.Keypoints() {
		points = append(points, protocol.WirePoint{
			Name: k.String(), X: float64(i), Y: float64(i), Score: 0.9,
		})
	}
	return points
}

func testConfig(fs *fakeServer, handlers Handlers) Config {
	return Config{
		Endpoint:    fs.url(),
		APIKey:      "test-key",
		ExerciseKey: "squat",
		SessionName: "test-session",
		Handlers:    handlers,
	}
}

func recvFrame(t *testing.T, fs *fakeServer) protocol.Frame {
	t.Helper()
	select {
	case f := <-fs.frameCh:
		return f
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for frame")
		return protocol.Frame{}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func connectReady(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return c.State() == StateReady
	}, testTimeout, 5*time.Millisecond)
}

func TestClient_RoundTrip(t *testing.T) {
	fs := newFakeServer(t, true)

	ready := make(chan struct{})
	poses := make(chan pose.Skeleton, 4)

	c, err := NewClient(testConfig(fs, Handlers{
		Ready: func() { close(ready) },
		Pose:  func(_ int64, s pose.Skeleton) { poses <- s },
	}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, ready, "ready event")

	c.Enqueue([]byte("frame-1"))
	f1 := recvFrame(t, fs)
	assert.Equal(t, []byte("frame-1"), f1.Data)

	fs.sendPose(f1.Seq)

	select {
	case s := <-poses:
		assert.True(t, s.Complete(), "pose should carry all 19 keypoints")
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for pose event")
	}

	// In-flight token cleared: the next frame releases without help.
	c.Enqueue([]byte("frame-2"))
	f2 := recvFrame(t, fs)
	assert.Equal(t, []byte("frame-2"), f2.Data)
	assert.Greater(t, f2.Seq, f1.Seq)
}

func TestClient_NoSendBeforeReady(t *testing.T) {
	fs := newFakeServer(t, false) // handshake ack withheld

	ready := make(chan struct{})
	c, err := NewClient(testConfig(fs, Handlers{
		Ready: func() { close(ready) },
	}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))

	// Frames enqueued against a pending handshake must not reach the wire.
	for i := 0; i < 10; i++ {
		c.Enqueue([]byte(fmt.Sprintf("early-%d", i)))
	}

	select {
	case f := <-fs.frameCh:
		t.Fatalf("frame %d sent before ready", f.Seq)
	case <-time.After(100 * time.Millisecond):
	}

	fs.ack()
	waitSignal(t, ready, "ready event")

	// Exactly one send occurs and it carries the newest payload.
	f := recvFrame(t, fs)
	assert.Equal(t, []byte("early-9"), f.Data)

	select {
	case <-fs.frameCh:
		t.Fatal("second frame released without a response")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_LatestWinsSupersede(t *testing.T) {
	fs := newFakeServer(t, false)

	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))

	c.Enqueue([]byte("A"))
	c.Enqueue([]byte("B"))
	fs.ack()

	f := recvFrame(t, fs)
	assert.Equal(t, []byte("B"), f.Data, "older unsent frame must be superseded")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.FramesEnqueued)
	assert.Equal(t, int64(1), stats.FramesSuperseded)
}

func TestClient_AtMostOneInFlight(t *testing.T) {
	fs := newFakeServer(t, true)

	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	// Spam frames from several producers while the server answers slowly.
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				c.Enqueue([]byte(fmt.Sprintf("p%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	// The server must never observe a second frame before it has answered
	// the first: outstanding <= 1 at every receipt.
	for round := 0; round < 5; round++ {
		f := recvFrame(t, fs)

		select {
		case extra := <-fs.frameCh:
			t.Fatalf("frame %d in flight while %d unanswered", extra.Seq, f.Seq)
		case <-time.After(50 * time.Millisecond):
		}

		fs.sendPose(f.Seq)
		c.Enqueue([]byte(fmt.Sprintf("round-%d", round)))
	}
}

func TestClient_ResponseReleasesHeldFrame(t *testing.T) {
	fs := newFakeServer(t, true)

	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	c.Enqueue([]byte("first"))
	f1 := recvFrame(t, fs)

	// Held while first is in flight.
	c.Enqueue([]byte("second"))
	select {
	case <-fs.frameCh:
		t.Fatal("held frame released while a request was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	fs.sendPose(f1.Seq)

	f2 := recvFrame(t, fs)
	assert.Equal(t, []byte("second"), f2.Data)
}

func TestClient_InterpolatedPoseDoesNotRelease(t *testing.T) {
	fs := newFakeServer(t, true)

	interpolated := make(chan struct{}, 1)
	c, err := NewClient(testConfig(fs, Handlers{
		PoseInterpolated: func(_ int64, _ pose.Skeleton) { interpolated <- struct{}{} },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	c.Enqueue([]byte("first"))
	f1 := recvFrame(t, fs)
	c.Enqueue([]byte("second"))

	// An interpolated pose is intermediate: the held frame stays held.
	fs.send(protocol.ServerMessage{PoseInterpolated: &protocol.PoseMessage{
		Seq: f1.Seq, Points: fullSkeletonPoints(),
	}})
	waitSignal(t, interpolated, "interpolated pose event")

	select {
	case <-fs.frameCh:
		t.Fatal("interpolated pose must not advance flow control")
	case <-time.After(100 * time.Millisecond):
	}

	fs.sendPose(f1.Seq)
	f2 := recvFrame(t, fs)
	assert.Equal(t, []byte("second"), f2.Data)
}

func TestClient_RepetitionCounting(t *testing.T) {
	fs := newFakeServer(t, true)

	reps := make(chan pose.Repetition, 4)
	c, err := NewClient(testConfig(fs, Handlers{
		Repetition: func(r pose.Repetition) { reps <- r },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	// A repetition without feedback is correct.
	fs.send(protocol.ServerMessage{Repetition: &protocol.RepetitionMessage{
		DurationMs: 1800,
	}})

	r := <-reps
	assert.True(t, r.Correct())
	assert.Empty(t, r.PrimaryCorrection())

	// With two feedback entries only the first entry's first message
	// surfaces as the primary correction.
	fs.send(protocol.ServerMessage{Repetition: &protocol.RepetitionMessage{
		DurationMs: 2100,
		Feedbacks: []protocol.WireFeedback{
			{MetricID: "depth", Messages: []string{"Go deeper", "Slow down"}},
			{MetricID: "back", Messages: []string{"Straighten your back"}},
		},
	}})

	r = <-reps
	assert.False(t, r.Correct())
	assert.Equal(t, "Go deeper", r.PrimaryCorrection())

	require.Eventually(t, func() bool {
		stats := c.Stats()
		return stats.Repetitions == 2 && stats.RepetitionsOK == 1
	}, testTimeout, 5*time.Millisecond)
}

func TestClient_SessionStateAndQuality(t *testing.T) {
	fs := newFakeServer(t, true)

	states := make(chan [2]pose.BodyState, 2)
	qualities := make(chan pose.Quality, 2)
	c, err := NewClient(testConfig(fs, Handlers{
		SessionState: func(current, previous pose.BodyState) {
			states <- [2]pose.BodyState{current, previous}
		},
		SessionQuality: func(q pose.Quality) { qualities <- q },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	fs.send(protocol.ServerMessage{SessionState: &protocol.SessionStateMessage{
		Current: "exercising", Previous: "positioning",
	}})
	got := <-states
	assert.Equal(t, pose.BodyStateExercising, got[0])
	assert.Equal(t, pose.BodyStatePositioning, got[1])

	fs.send(protocol.ServerMessage{SessionQuality: &protocol.QualityMessage{
		Latency: "poor", Environment: "good",
	}})
	q := <-qualities
	assert.Equal(t, pose.RatingPoor, q.Latency)
	assert.Equal(t, pose.RatingGood, q.Environment)
}

func TestClient_HandshakeRejectionThenRetry(t *testing.T) {
	fs := newFakeServer(t, false)

	ready := make(chan struct{})
	errs := make(chan *Error, 4)
	c, err := NewClient(testConfig(fs, Handlers{
		Ready: func() { close(ready) },
		Error: func(e *Error) { errs <- e },
	}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))

	// Drain the initial configuration, reject it.
	<-fs.configCh
	fs.send(protocol.ServerMessage{Error: &protocol.ErrorMessage{
		Code: protocol.CodeInvalidConfiguration, Message: "unknown exercise",
	}})

	select {
	case e := <-errs:
		assert.Equal(t, ErrorKindInvalidInput, e.Kind)
		assert.Equal(t, protocol.CodeInvalidConfiguration, e.Code)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for handshake rejection")
	}

	// Rejection is not fatal: the handshake stays pending and the metadata
	// can be retried on the same connection.
	assert.Equal(t, StateAwaitingHandshake, c.State())

	require.NoError(t, c.SetExercise("lunge"))
	cfg := <-fs.configCh
	assert.Equal(t, "lunge", cfg.ExerciseKey)

	fs.ack()
	waitSignal(t, ready, "ready after metadata retry")
}

func TestClient_FrameErrorAdvancesFlowControl(t *testing.T) {
	fs := newFakeServer(t, true)

	errs := make(chan *Error, 2)
	c, err := NewClient(testConfig(fs, Handlers{
		Error: func(e *Error) { errs <- e },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	c.Enqueue([]byte("bad-frame"))
	f1 := recvFrame(t, fs)
	c.Enqueue([]byte("good-frame"))

	// An error addressed to the outstanding frame clears the token.
	fs.send(protocol.ServerMessage{Error: &protocol.ErrorMessage{
		Seq: f1.Seq, Code: protocol.CodeInvalidFrame, Message: "corrupt jpeg",
	}})

	select {
	case e := <-errs:
		assert.Equal(t, ErrorKindInvalidInput, e.Kind)
		assert.Equal(t, f1.Seq, e.Seq)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for frame error")
	}

	f2 := recvFrame(t, fs)
	assert.Equal(t, []byte("good-frame"), f2.Data)
}

func TestClient_EnqueueFromHandlerReturnsOnSendFailure(t *testing.T) {
	fs := newFakeServer(t, true)

	var c *Client
	enqueueReturned := make(chan struct{})
	errs := make(chan *Error, 4)

	var err error
	c, err = NewClient(testConfig(fs, Handlers{
		Repetition: func(_ pose.Repetition) {
			// Let the reader consume the close frame first so the write
			// below fails instead of sneaking out.
			time.Sleep(150 * time.Millisecond)
			c.Enqueue([]byte("from-handler"))
			close(enqueueReturned)
		},
		Error: func(e *Error) { errs <- e },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	fs.send(protocol.ServerMessage{Repetition: &protocol.RepetitionMessage{DurationMs: 900}})
	fs.closeFrame(websocket.CloseGoingAway, "done")

	// Enqueue from inside a handler must return even when the frame write
	// fails; the failure surfaces as an error event afterwards.
	waitSignal(t, enqueueReturned, "Enqueue called from a handler")
}

func TestClient_SendFailureReleasesHeldFrame(t *testing.T) {
	fs := newFakeServer(t, true)

	errs := make(chan *Error, 2)
	c, err := NewClient(testConfig(fs, Handlers{
		Error: func(e *Error) { errs <- e },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	// A frame enqueued while another send was failing must not stay held
	// until the next Enqueue: the failure path releases it.
	c.mu.Lock()
	c.inFlight = true
	c.pending = &protocol.Frame{Seq: 7, Data: []byte("held")}
	c.mu.Unlock()

	c.handleSendFailure(fmt.Errorf("write deadline exceeded"))

	f := recvFrame(t, fs)
	assert.Equal(t, []byte("held"), f.Data)

	select {
	case <-errs:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for send failure event")
	}
}

func TestClient_SetExerciseRequiresLiveConnection(t *testing.T) {
	fs := newFakeServer(t, true)
	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	// Swap in a transport that was never dialed.
	c.mu.Lock()
	c.conn = transport.NewConn(&transport.ConnConfig{URL: fs.url()})
	c.mu.Unlock()

	err = c.SetExercise("lunge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live connection")
}

func TestClient_ServerCloseMessage(t *testing.T) {
	fs := newFakeServer(t, true)

	closed := make(chan struct{})
	var gotCode int
	var gotReason string
	c, err := NewClient(testConfig(fs, Handlers{
		Close: func(code int, reason string) {
			gotCode, gotReason = code, reason
			close(closed)
		},
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	fs.send(protocol.ServerMessage{Close: &protocol.CloseMessage{
		Code: 4001, Reason: "session budget exhausted",
	}})

	waitSignal(t, closed, "close event")
	assert.Equal(t, 4001, gotCode)
	assert.Equal(t, "session budget exhausted", gotReason)
	assert.Equal(t, StateClosed, c.State())

	// Terminal: enqueue becomes a no-op.
	before := c.Stats().FramesEnqueued
	c.Enqueue([]byte("late"))
	assert.Equal(t, before, c.Stats().FramesEnqueued)
}

func TestClient_TransportDisconnect(t *testing.T) {
	fs := newFakeServer(t, true)

	ended := make(chan struct{})
	c, err := NewClient(testConfig(fs, Handlers{
		Close: func(_ int, _ string) { close(ended) },
	}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	// Abrupt TCP close surfaces as a close event (abnormal closure) and the
	// session fails; no automatic reconnect.
	fs.closeConn()
	waitSignal(t, ended, "close event after disconnect")

	require.Eventually(t, func() bool {
		return c.State() == StateFailed
	}, testTimeout, 5*time.Millisecond)
}

func TestClient_ReconnectAfterFailure(t *testing.T) {
	fs := newFakeServer(t, true)

	var mu sync.Mutex
	readyCount := 0
	ready := make(chan struct{}, 2)
	ended := make(chan struct{}, 1)

	c, err := NewClient(testConfig(fs, Handlers{
		Ready: func() {
			mu.Lock()
			readyCount++
			mu.Unlock()
			ready <- struct{}{}
		},
		Close: func(_ int, _ string) { ended <- struct{}{} },
	}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, ready, "first ready")

	fs.closeConn()
	waitSignal(t, ended, "session end")

	// Reconnection is explicit and caller-initiated.
	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, ready, "second ready")

	c.Enqueue([]byte("after-reconnect"))
	f := recvFrame(t, fs)
	assert.Equal(t, []byte("after-reconnect"), f.Data)

	mu.Lock()
	assert.Equal(t, 2, readyCount)
	mu.Unlock()
}

func TestClient_CloseIdempotentAcrossStates(t *testing.T) {
	t.Run("before connect", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("connecting", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		c.mu.Lock()
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("awaiting handshake", func(t *testing.T) {
		fs := newFakeServer(t, false)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		require.NoError(t, c.Connect(context.Background()))
		assert.Equal(t, StateAwaitingHandshake, c.State())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("ready", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		connectReady(t, c)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("active", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		connectReady(t, c)
		c.Enqueue([]byte("frame"))
		recvFrame(t, fs)
		assert.Equal(t, StateActive, c.State())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("failed", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		c.failConnect(errors.New("dial refused"))
		assert.Equal(t, StateFailed, c.State())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("closed", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		connectReady(t, c)
		require.NoError(t, c.Close())

		// Closing an already-closed client stays a no-op however often.
		for i := 0; i < 3; i++ {
			require.NoError(t, c.Close())
		}
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("enqueue after close is a no-op", func(t *testing.T) {
		fs := newFakeServer(t, true)
		c, err := NewClient(testConfig(fs, Handlers{}))
		require.NoError(t, err)

		connectReady(t, c)
		require.NoError(t, c.Close())

		c.Enqueue([]byte("late"))
		assert.Equal(t, int64(0), c.Stats().FramesEnqueued)

		select {
		case <-fs.frameCh:
			t.Fatal("frame sent after close")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestClient_ConnectInvalidState(t *testing.T) {
	fs := newFakeServer(t, true)
	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect called in state")
}

func TestClient_ConnectFailure(t *testing.T) {
	errs := make(chan *Error, 1)
	c, err := NewClient(Config{
		Endpoint:    "ws://localhost:1",
		APIKey:      "test-key",
		ExerciseKey: "squat",
		DialTimeout: 100 * time.Millisecond,
		Handlers:    Handlers{Error: func(e *Error) { errs <- e }},
	})
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())

	select {
	case e := <-errs:
		assert.Equal(t, ErrorKindConnection, e.Kind)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for connect error event")
	}
}

func TestNewClient_ConfigValidation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k", ExerciseKey: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Endpoint")

	_, err = NewClient(Config{Endpoint: "ws://x", ExerciseKey: "e"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")

	_, err = NewClient(Config{Endpoint: "ws://x", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExerciseKey")
}

func TestNewClient_DefaultSessionName(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "ws://x", APIKey: "k", ExerciseKey: "e"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.cfg.SessionName)
}

func TestClient_SetExerciseWhileDisconnected(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "ws://x", APIKey: "k", ExerciseKey: "e"})
	require.NoError(t, err)

	err = c.SetExercise("lunge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set exercise called in state")
}

func TestClient_SetExerciseRearmsLiveSession(t *testing.T) {
	fs := newFakeServer(t, true)
	c, err := NewClient(testConfig(fs, Handlers{}))
	require.NoError(t, err)
	defer c.Close()

	connectReady(t, c)
	<-fs.configCh // initial configuration

	require.NoError(t, c.SetExercise("deadlift"))
	cfg := <-fs.configCh
	assert.Equal(t, "deadlift", cfg.ExerciseKey)

	// Re-arming keeps the session streamable.
	require.Eventually(t, func() bool {
		return c.State().streamable()
	}, testTimeout, 5*time.Millisecond)
	assert.Equal(t, "deadlift", c.Stats().ExerciseKey)
}
