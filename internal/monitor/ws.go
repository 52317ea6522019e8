package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsConfig configures WebSocket session behavior.
type wsConfig struct {
	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

func defaultWSConfig() wsConfig {
	return wsConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// logEvent is one logsNotification delivered over the subscription.
type logEvent struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// wsSession is a single logsSubscribe subscription over one WebSocket
// connection. Sessions are single-use: on transport error the events channel
// closes and the owning watcher decides whether to open a new session.
type wsSession struct {
	conn   *websocket.Conn
	config wsConfig

	events chan logEvent
	subID  int64

	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
	lastErr error
	errMu   sync.Mutex
}

// dialLogsSession connects to the endpoint and subscribes to logs mentioning
// the program ID at confirmed commitment.
func dialLogsSession(ctx context.Context, endpoint, programID string, config wsConfig) (*wsSession, error) {
	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	s := &wsSession{
		conn:   conn,
		config: config,
		events: make(chan logEvent, 1024),
		done:   make(chan struct{}),
	}

	if err := s.subscribe(ctx, programID); err != nil {
		conn.Close()
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// subscribe sends logsSubscribe and waits for the subscription ID.
func (s *wsSession) subscribe(ctx context.Context, programID string) error {
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{programID}},
			map[string]string{"commitment": "confirmed"},
		},
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(s.config.SubscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetReadDeadline(deadline)

	_, message, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read subscribe ack: %w", err)
	}

	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return fmt.Errorf("decode subscribe ack: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscribe rejected: code=%d %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == 0 {
		return fmt.Errorf("subscribe ack missing subscription id")
	}

	s.subID = resp.Result
	return nil
}

// Events returns the notification stream. The channel closes when the
// session ends for any reason; call Err to learn why.
func (s *wsSession) Events() <-chan logEvent { return s.events }

// Err returns the error that ended the session, nil after a clean Close.
func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Close tears the session down and waits for its goroutines.
func (s *wsSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.config.WriteTimeout))
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *wsSession) fail(err error) {
	s.errMu.Lock()
	if s.lastErr == nil {
		s.lastErr = err
	}
	s.errMu.Unlock()
}

// readLoop reads notifications until the connection breaks or the session is
// closed, then closes the events channel.
func (s *wsSession) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.fail(err)
			}
			return
		}

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Params == nil {
			continue
		}
		if notif.Method != "logsNotification" || notif.Params.Subscription != s.subID {
			continue
		}

		ev := logEvent{
			Signature: notif.Params.Result.Value.Signature,
			Logs:      notif.Params.Result.Value.Logs,
			Err:       notif.Params.Result.Value.Err,
		}
		if notif.Params.Result.Context != nil {
			ev.Slot = notif.Params.Result.Context.Slot
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// pingLoop keeps the connection alive between notifications.
func (s *wsSession) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// Dead connection surfaces in the read loop.
				return
			}
		}
	}
}

// WebSocket message types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      uint64   `json:"id"`
	Result  int64    `json:"result"`
	Error   *wsError `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
