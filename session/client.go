// Package session implements the streaming session client for the motion
// analysis service.
//
// A Client owns the connection lifecycle (handshake before data), the
// flow-control discipline (at most one analysis request in flight, newest
// held frame wins), and the demultiplexing of the inbound stream into the
// typed handlers registered in Config.Handlers.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vay-org/motionsdk-go/logger"
	"github.com/vay-org/motionsdk-go/protocol"
	"github.com/vay-org/motionsdk-go/transport"
)

// Default client constants.
const (
	DefaultHeartbeatInterval = 30 * time.Second

	// dispatchBuffer is the inbound message channel size.
	dispatchBuffer = 16
)

// Config configures a Client. It is immutable after NewClient.
type Config struct {
	// Endpoint is the WebSocket URL of the analysis service. Required.
	Endpoint string

	// APIKey authenticates the client. Required.
	APIKey string

	// ExerciseKey selects the exercise to analyze. Required.
	ExerciseKey string

	// SessionName uniquely names this session. Defaults to a random UUID.
	SessionName string

	// DialTimeout bounds the transport handshake. Zero means the transport
	// default.
	DialTimeout time.Duration

	// HeartbeatInterval paces keepalive pings. Defaults to
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Handlers is the event registration table. Register before Connect.
	Handlers Handlers

	// Collector receives flow observations. Optional.
	Collector Collector
}

func (c *Config) defaults() error {
	if c.Endpoint == "" {
		return errors.New("session.Config.Endpoint is required")
	}
	if c.APIKey == "" {
		return errors.New("session.Config.APIKey is required")
	}
	if c.ExerciseKey == "" {
		return errors.New("session.Config.ExerciseKey is required")
	}
	if c.SessionName == "" {
		c.SessionName = uuid.NewString()
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Collector == nil {
		c.Collector = noopCollector{}
	}
	return nil
}

// Stats is a snapshot of session counters.
type Stats struct {
	FramesEnqueued   int64
	FramesSuperseded int64
	FramesSent       int64
	Repetitions      int64
	RepetitionsOK    int64
	ExerciseKey      string
}

// Client is a streaming session to the analysis service. A Client handles
// one logical session at a time; after Close or a transport failure a new
// Connect starts a fresh session on the same Client.
//
// All methods are safe for concurrent use. Handlers run on the dispatch
// goroutine, serialized by a dedicated mutex so they are never invoked
// concurrently even when an error surfaces from the producer path.
type Client struct {
	cfg Config

	mu       sync.Mutex
	state    State
	conn     *transport.Conn
	cancel   context.CancelFunc
	exercise string

	// Flow control: at most one request in flight, newest held frame wins.
	inFlight bool
	sentAt   time.Time
	sentSeq  int64
	pending  *protocol.Frame
	seq      int64

	stats Stats

	// handlerMu serializes handler invocation across goroutines.
	handlerMu sync.Mutex
}

// NewClient creates a Client. Call Connect to start the session.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		state:    StateDisconnected,
		exercise: cfg.ExerciseKey,
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the session counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.ExerciseKey = c.exercise
	return s
}

// Connect dials the service and starts the configuration handshake. It
// returns once the configuration message is on the wire; readiness is
// signaled through the Ready handler when the server acknowledges. Connect
// is legal from Disconnected, Failed and Closed; a connected client must be
// closed first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.terminal() && c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect called in state %s", state)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.APIKey)

	conn := transport.NewConn(&transport.ConnConfig{
		URL:         c.cfg.Endpoint,
		Headers:     headers,
		DialTimeout: c.cfg.DialTimeout,
		Logger:      &transportLogger{},
	})

	sessionCtx, cancel := context.WithCancel(ctx)

	c.setStateLocked(StateConnecting)
	c.conn = conn
	c.cancel = cancel
	c.inFlight = false
	c.pending = nil
	c.mu.Unlock()

	if err := conn.ConnectWithRetry(sessionCtx); err != nil {
		cancel()
		c.failConnect(err)
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := c.sendConfiguration(conn); err != nil {
		cancel()
		_ = conn.Close()
		c.failConnect(err)
		return fmt.Errorf("failed to send configuration: %w", err)
	}

	c.mu.Lock()
	c.setStateLocked(StateAwaitingHandshake)
	c.mu.Unlock()

	conn.StartHeartbeat(sessionCtx, c.cfg.HeartbeatInterval)
	go c.receiveLoop(sessionCtx, conn)

	logger.Debug("configuration sent, awaiting acknowledgment",
		"session", c.cfg.SessionName, "exercise", c.exerciseKey())

	return nil
}

// SetExercise re-sends the configuration with a new exercise key. Legal
// while the handshake is pending (metadata retry after a rejection) and on
// a live session, where it re-arms the exercise without reconnecting.
func (c *Client) SetExercise(key string) error {
	c.mu.Lock()
	if c.state != StateAwaitingHandshake && !c.state.streamable() {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("set exercise called in state %s", state)
	}
	conn := c.conn
	if conn == nil || !conn.IsConnected() {
		c.mu.Unlock()
		return errors.New("set exercise called without a live connection")
	}
	c.exercise = key
	c.mu.Unlock()

	return c.sendConfiguration(conn)
}

// Enqueue hands a JPEG-encoded frame to the flow controller. It never
// blocks: the frame lands in a single holding slot where a newer frame
// supersedes an unsent older one, because stale camera samples are worse
// than dropped ones. After Close or a failure the call is a no-op.
func (c *Client) Enqueue(frame []byte) {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return
	}
	c.seq++
	if c.pending != nil {
		c.stats.FramesSuperseded++
		c.cfg.Collector.FrameSuperseded()
	}
	c.pending = &protocol.Frame{Seq: c.seq, Data: frame}
	c.stats.FramesEnqueued++
	c.cfg.Collector.FrameEnqueued()
	c.mu.Unlock()

	c.tryRelease()
}

// Close terminates the session. It is idempotent, safe from any goroutine
// and any state, and makes subsequent Enqueue and dispatch calls no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateClosed)
	c.pending = nil
	c.inFlight = false
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// tryRelease releases the held frame when the session is streamable, no
// request is in flight, and the holding slot is non-empty. It runs after
// every Enqueue, after the handshake completes, and after every completed
// response. This coupling is what advances flow control.
func (c *Client) tryRelease() {
	c.mu.Lock()
	if !c.state.streamable() || c.inFlight || c.pending == nil {
		c.mu.Unlock()
		return
	}
	frame := c.pending
	c.pending = nil
	c.inFlight = true
	c.sentAt = time.Now()
	c.sentSeq = frame.Seq
	if c.state == StateReady {
		c.setStateLocked(StateActive)
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.Send(protocol.ClientMessage{Frame: frame}); err != nil {
		c.handleSendFailure(err)
		return
	}

	c.mu.Lock()
	c.stats.FramesSent++
	c.mu.Unlock()
	c.cfg.Collector.FrameSent(len(frame.Data))
	logger.FrameSent(frame.Seq, len(frame.Data))
}

// handleSendFailure recovers from a failed frame write. The session
// survives: the token is cleared, a frame held during the failed send is
// released next, and the error surfaces asynchronously. Enqueue may run
// inside a handler that already holds handlerMu, so the producer path must
// never invoke handlers synchronously.
func (c *Client) handleSendFailure(err error) {
	c.mu.Lock()
	c.inFlight = false
	terminal := c.state.terminal()
	c.mu.Unlock()

	if terminal {
		return
	}
	go c.emitError(classifyTransportError(err))
	c.tryRelease()
}

func (c *Client) sendConfiguration(conn *transport.Conn) error {
	return conn.Send(protocol.ClientMessage{
		Configuration: &protocol.Configuration{
			ExerciseKey: c.exerciseKey(),
			SessionName: c.cfg.SessionName,
			APIKey:      c.cfg.APIKey,
		},
	})
}

func (c *Client) exerciseKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exercise
}

// failConnect records a dial/configure failure and emits its error event.
// Connect may be called from a Close handler to reconnect, so the emission
// is asynchronous like the other caller-path failures.
func (c *Client) failConnect(err error) {
	c.mu.Lock()
	c.setStateLocked(StateFailed)
	c.mu.Unlock()
	go c.emitError(classifyTransportError(err))
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.cfg.Collector.StateChanged(s)
}

// receiveLoop is the dispatch goroutine: it owns handler invocation order.
func (c *Client) receiveLoop(ctx context.Context, conn *transport.Conn) {
	msgCh := make(chan []byte, dispatchBuffer)
	errCh := make(chan error, 1)

	go func() {
		errCh <- conn.ReceiveLoop(ctx, msgCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				c.handleTransportFailure(err)
			}
			return
		case data := <-msgCh:
			c.dispatch(data)
		}
	}
}

// handleTransportFailure ends the session on a receive-path error. A server
// close frame becomes the Close event; anything else becomes an Error
// event. Exactly one event is emitted either way.
func (c *Client) handleTransportFailure(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		// Client-initiated close; the receive loop just unwound.
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateFailed)
	c.pending = nil
	c.inFlight = false
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	var closeErr *transport.CloseError
	if errors.As(err, &closeErr) {
		logger.Warn("session closed by server",
			"code", closeErr.Code, "reason", closeErr.Reason)
		c.emitClose(closeErr.Code, closeErr.Reason)
		return
	}

	c.emitError(classifyTransportError(err))
}

// dispatch decodes one inbound message and invokes the matching handler.
// Messages are handled strictly in arrival order.
func (c *Client) dispatch(data []byte) {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	msg, err := protocol.Decode(data)
	if err != nil {
		c.emitError(&Error{Kind: ErrorKindOther, Message: err.Error()})
		return
	}

	switch msg.Kind() {
	case protocol.KindConfigurationAck:
		c.handleConfigurationAck(msg.ConfigurationAck)
	case protocol.KindPose:
		c.handlePose(msg.Pose, false)
	case protocol.KindPoseInterpolated:
		c.handlePose(msg.PoseInterpolated, true)
	case protocol.KindFeedback:
		c.handleFeedback(msg.Feedback)
	case protocol.KindRepetition:
		c.handleRepetition(msg.Repetition)
	case protocol.KindMetricValues:
		c.handleMetricValues(msg.MetricValues)
	case protocol.KindSessionState:
		c.handleSessionState(msg.SessionState)
	case protocol.KindSessionQuality:
		c.handleSessionQuality(msg.SessionQuality)
	case protocol.KindError:
		c.handleServerError(msg.Error)
	case protocol.KindClose:
		c.handleServerClose(msg.Close)
	default:
		logger.Debug("dropping unknown server message")
	}
}

func (c *Client) handleConfigurationAck(ack *protocol.ConfigurationAck) {
	c.mu.Lock()
	if c.state != StateAwaitingHandshake {
		// Re-arm acknowledgment on a live session; nothing to transition.
		c.mu.Unlock()
		logger.Debug("exercise re-armed", "exercise", ack.ExerciseKey)
		return
	}
	c.setStateLocked(StateReady)
	c.mu.Unlock()

	logger.SessionConnected(c.cfg.Endpoint, c.cfg.SessionName, c.exerciseKey())

	c.invoke(func(h *Handlers) {
		if h.Ready != nil {
			h.Ready()
		}
	})

	// A frame enqueued before readiness is released now.
	c.tryRelease()
}

// completeRequest clears the in-flight token for a response addressed to
// the outstanding frame and advances the flow controller.
func (c *Client) completeRequest(kind string) {
	c.mu.Lock()
	if !c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	latency := time.Since(c.sentAt)
	seq := c.sentSeq
	c.mu.Unlock()

	c.cfg.Collector.ResponseReceived(kind, latency)
	logger.ResponseReceived(kind, seq, latency.Milliseconds())
	c.tryRelease()
}

func (c *Client) handlePose(msg *protocol.PoseMessage, interpolated bool) {
	skeleton, err := msg.Skeleton()
	if err != nil {
		c.emitError(&Error{Kind: ErrorKindOther, Message: err.Error()})
		return
	}

	if interpolated {
		// Interpolated poses are intermediate: they do not complete the
		// outstanding request.
		c.invoke(func(h *Handlers) {
			if h.PoseInterpolated != nil {
				h.PoseInterpolated(msg.Seq, skeleton)
			}
		})
		return
	}

	c.invoke(func(h *Handlers) {
		if h.Pose != nil {
			h.Pose(msg.Seq, skeleton)
		}
	})
	c.completeRequest("pose")
}

func (c *Client) handleFeedback(msg *protocol.FeedbackMessage) {
	feedbacks := msg.Feedbacks()
	c.invoke(func(h *Handlers) {
		if h.Feedback != nil {
			h.Feedback(msg.Seq, feedbacks)
		}
	})
	c.completeRequest("feedback")
}

func (c *Client) handleRepetition(msg *protocol.RepetitionMessage) {
	rep := msg.Repetition()

	c.mu.Lock()
	c.stats.Repetitions++
	if rep.Correct() {
		c.stats.RepetitionsOK++
	}
	c.mu.Unlock()
	c.cfg.Collector.RepetitionCounted(rep.Correct())

	c.invoke(func(h *Handlers) {
		if h.Repetition != nil {
			h.Repetition(rep)
		}
	})
}

func (c *Client) handleMetricValues(msg *protocol.MetricValuesMessage) {
	values := msg.MetricValues()
	c.invoke(func(h *Handlers) {
		if h.MetricValues != nil {
			h.MetricValues(msg.Seq, values)
		}
	})
	c.completeRequest("metricValues")
}

func (c *Client) handleSessionState(msg *protocol.SessionStateMessage) {
	current, previous, err := msg.States()
	if err != nil {
		c.emitError(&Error{Kind: ErrorKindOther, Message: err.Error()})
		return
	}
	c.invoke(func(h *Handlers) {
		if h.SessionState != nil {
			h.SessionState(current, previous)
		}
	})
}

func (c *Client) handleSessionQuality(msg *protocol.QualityMessage) {
	quality, err := msg.Quality()
	if err != nil {
		c.emitError(&Error{Kind: ErrorKindOther, Message: err.Error()})
		return
	}
	c.invoke(func(h *Handlers) {
		if h.SessionQuality != nil {
			h.SessionQuality(quality)
		}
	})
}

// handleServerError surfaces a service error. A handshake rejection leaves
// the state at AwaitingHandshake so the caller can retry the metadata; an
// error addressed to the outstanding frame additionally advances flow
// control.
func (c *Client) handleServerError(msg *protocol.ErrorMessage) {
	sessionErr := classifyServerError(msg)
	c.emitError(sessionErr)

	if msg.Seq != 0 {
		c.completeRequest("error")
	}
}

// handleServerClose ends the session on a protocol-level close message.
func (c *Client) handleServerClose(msg *protocol.CloseMessage) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateClosed)
	c.pending = nil
	c.inFlight = false
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	logger.Info("session closed", "code", msg.Code, "reason", msg.Reason)
	c.emitClose(msg.Code, msg.Reason)
}

func (c *Client) emitError(err *Error) {
	logger.SessionError(err.Kind.String(), err)
	c.cfg.Collector.ErrorObserved(err.Kind.String())
	c.invoke(func(h *Handlers) {
		if h.Error != nil {
			h.Error(err)
		}
	})
}

func (c *Client) emitClose(code int, reason string) {
	c.invoke(func(h *Handlers) {
		if h.Close != nil {
			h.Close(code, reason)
		}
	})
}

// invoke runs fn under the handler mutex so handlers never run
// concurrently, even when an error surfaces from the producer path while
// the dispatch goroutine is delivering a message.
func (c *Client) invoke(fn func(h *Handlers)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	fn(&c.cfg.Handlers)
}

// transportLogger adapts the SDK logger to the transport.Logger interface.
type transportLogger struct{}

// Debug implements transport.Logger.
func (*transportLogger) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug(msg, append([]interface{}{"component", "transport"}, keysAndValues...)...)
}

// Info implements transport.Logger.
func (*transportLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Info(msg, append([]interface{}{"component", "transport"}, keysAndValues...)...)
}

// Warn implements transport.Logger.
func (*transportLogger) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn(msg, append([]interface{}{"component", "transport"}, keysAndValues...)...)
}

// Error implements transport.Logger.
func (*transportLogger) Error(msg string, keysAndValues ...interface{}) {
	logger.Error(msg, append([]interface{}{"component", "transport"}, keysAndValues...)...)
}
