package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

const (
	probeTimeout    = 5 * time.Second
	discoverTimeout = 10 * time.Second
)

// Probe checks that the printer accepts a websocket connection.
func Probe(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, WebSocketURL(addr), nil)
	if err != nil {
		return err
	}

	return conn.Close()
}

// DiscoverMainboardID asks the printer for its status with an empty
// mainboard id and returns the id found in the first frame carrying one.
func DiscoverMainboardID(ctx context.Context, addr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, WebSocketURL(addr), nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err = conn.WriteJSON(sdcp.NewCodec("").Encode(sdcp.CmdStatus, nil)); err != nil {
		return "", err
	}

	for {
		_, raw, readErr := conn.ReadMessage()
		if readErr != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("no mainboard id received: %w", ctx.Err())
			}
			return "", readErr
		}

		if sdcp.IsHeartbeat(raw) {
			continue
		}

		if id := mainboardID(raw); id != "" {
			return id, nil
		}
	}
}

var errNoID = errors.New("no mainboard id")

func mainboardID(raw []byte) string {
	var frame struct {
		MainboardID string `json:"MainboardID"`
		Attributes  struct {
			MainboardID string `json:"MainboardID"`
		} `json:"Attributes"`
		Data json.RawMessage `json:"Data"`
	}
	if json.Unmarshal(raw, &frame) != nil {
		return ""
	}

	if id := strings.TrimSpace(frame.Attributes.MainboardID); id != "" {
		return id
	}

	if id, err := dataMainboardID(frame.Data); err == nil {
		return id
	}

	return strings.TrimSpace(frame.MainboardID)
}

func dataMainboardID(raw json.RawMessage) (string, error) {
	var data struct {
		MainboardID string `json:"MainboardID"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &data) != nil {
		return "", errNoID
	}

	id := strings.TrimSpace(data.MainboardID)
	if id == "" {
		return "", errNoID
	}

	return id, nil
}
