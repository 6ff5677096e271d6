// Package device talks to the printer over its local websocket (SDCP) and
// HTTP upload endpoints.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PrinterBridge/internal/link"
	"github.com/NowakAdmin/PrinterBridge/internal/metrics"
	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

var ErrNotConnected = errors.New("device link not connected")

const (
	defaultDialTimeout = 10 * time.Second
	writeTimeout       = 5 * time.Second
)

// Handler receives decoded frames and connectivity transitions, in arrival
// order, from the link's reader goroutine.
type Handler interface {
	HandleDeviceMessage(msg sdcp.Message)
	HandleDeviceState(state link.State)
}

// Link is one websocket connection to the printer. It never reconnects on
// its own; a dropped connection stays down until Run is called again.
type Link struct {
	url         string
	dialTimeout time.Duration
	dialer      *websocket.Dialer
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewLink(addr string, logger zerolog.Logger, m *metrics.Metrics) *Link {
	return &Link{
		url:         WebSocketURL(addr),
		dialTimeout: defaultDialTimeout,
		dialer:      websocket.DefaultDialer,
		logger:      logger,
		metrics:     m,
	}
}

func WebSocketURL(addr string) string {
	return "ws://" + addr + "/websocket"
}

// Run connects and pumps inbound frames to h until the connection closes or
// ctx is done. Heartbeats, malformed and unrecognized frames are dropped here.
func (l *Link) Run(ctx context.Context, h Handler) error {
	h.HandleDeviceState(link.Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	conn, response, err := l.dialer.DialContext(dialCtx, l.url, nil)
	cancel()
	if err != nil {
		h.HandleDeviceState(link.Disconnected)
		if response != nil {
			return fmt.Errorf("dial %s (http %d): %w", l.url, response.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", l.url, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	l.logger.Info().Str("url", l.url).Msg("device link connected")
	h.HandleDeviceState(link.Connected)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	err = l.readLoop(conn, h)

	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	_ = conn.Close()

	h.HandleDeviceState(link.Disconnected)

	if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return nil
	}

	return err
}

func (l *Link) readLoop(conn *websocket.Conn, h Handler) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := sdcp.Decode(raw)
		if err != nil {
			l.metrics.Frame("malformed")
			l.logger.Debug().Err(err).Msg("dropping device frame")
			continue
		}

		switch msg.(type) {
		case nil:
			l.metrics.Frame("unrecognized")
			continue
		case sdcp.Heartbeat:
			l.metrics.Frame("heartbeat")
			continue
		case sdcp.Ack:
			l.metrics.Frame("ack")
		case sdcp.Status:
			l.metrics.Frame("status")
		}

		h.HandleDeviceMessage(msg)
	}
}

// Send writes one request frame. Frames sent while disconnected are dropped
// with ErrNotConnected; nothing is queued.
func (l *Link) Send(req sdcp.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrNotConnected
	}

	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return l.conn.WriteJSON(req)
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.conn != nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return conn.Close()
}
