package sdcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// fromClient is the only origin marker observed in the protocol.
const fromClient = 0

var ErrMalformedFrame = errors.New("sdcp: malformed frame")

type Request struct {
	ID    string      `json:"Id"`
	Data  RequestData `json:"Data"`
	Topic string      `json:"Topic"`
}

type RequestData struct {
	Cmd         Command        `json:"Cmd"`
	Data        map[string]any `json:"Data"`
	RequestID   string         `json:"RequestID"`
	MainboardID string         `json:"MainboardID"`
	TimeStamp   int64          `json:"TimeStamp"`
	From        int            `json:"From"`
}

// RequestTopic returns the device topic commands for mainboardID are sent on.
func RequestTopic(mainboardID string) string {
	return "sdcp/request/" + mainboardID
}

// Codec builds request frames for one device.
type Codec struct {
	mainboardID string
	now         func() time.Time
}

func NewCodec(mainboardID string) *Codec {
	return &Codec{mainboardID: mainboardID, now: time.Now}
}

func (c *Codec) MainboardID() string {
	return c.mainboardID
}

func (c *Codec) Encode(cmd Command, payload map[string]any) Request {
	if payload == nil {
		payload = map[string]any{}
	}

	return Request{
		ID: uuid.NewString(),
		Data: RequestData{
			Cmd:         cmd,
			Data:        payload,
			RequestID:   uuid.NewString(),
			MainboardID: c.mainboardID,
			TimeStamp:   c.now().Unix(),
			From:        fromClient,
		},
		Topic: RequestTopic(c.mainboardID),
	}
}

// Message is one decoded inbound frame: Heartbeat, Ack or Status.
type Message interface {
	isMessage()
}

type Heartbeat struct{}

type Ack struct {
	Cmd      Command
	Code     int
	FileList []FileEntry
}

// Status carries a full snapshot; it always replaces the previous one.
type Status struct {
	Snapshot Snapshot
}

func (Heartbeat) isMessage() {}
func (Ack) isMessage()       {}
func (Status) isMessage()    {}

// FileEntry is one element of a file-list acknowledgement, kept as received
// so it can be forwarded without loss.
type FileEntry map[string]any

func (f FileEntry) CreateTime() float64 {
	v, _ := f["CreateTime"].(float64)
	return v
}

type envelope struct {
	Data   *ackData        `json:"Data"`
	Status json.RawMessage `json:"Status"`
}

type ackData struct {
	Cmd  *Command `json:"Cmd"`
	Data struct {
		Ack      *int        `json:"Ack"`
		FileList []FileEntry `json:"FileList"`
	} `json:"Data"`
}

// IsHeartbeat reports whether raw is the device's bare keepalive, either
// pong or the JSON string "pong".
func IsHeartbeat(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return string(trimmed) == "pong" || string(trimmed) == `"pong"`
}

// Decode classifies a raw frame. It returns (nil, nil) for well-formed
// frames that carry nothing the bridge acts on; those are dropped.
func Decode(raw []byte) (Message, error) {
	if IsHeartbeat(raw) {
		return Heartbeat{}, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if env.Data != nil && env.Data.Cmd != nil && env.Data.Data.Ack != nil {
		cmd := *env.Data.Cmd
		switch cmd.AckKind() {
		case AckTerminal:
			return Ack{Cmd: cmd, Code: *env.Data.Data.Ack}, nil
		case AckListing:
			return Ack{Cmd: cmd, Code: *env.Data.Data.Ack, FileList: env.Data.Data.FileList}, nil
		}
	}

	if len(env.Status) > 0 && !bytes.Equal(env.Status, []byte("null")) {
		var snap Snapshot
		if err := json.Unmarshal(env.Status, &snap); err != nil {
			return nil, fmt.Errorf("%w: status: %v", ErrMalformedFrame, err)
		}

		return Status{Snapshot: snap}, nil
	}

	return nil, nil
}
