package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

var ErrInvalidCommand = errors.New("invalid cloud command")

// Named cloud commands, matched case-insensitively.
const (
	CommandPause      = "pause"
	CommandResume     = "resume"
	CommandStop       = "stop"
	CommandGetFiles   = "get_files"
	CommandPrint      = "print"
	CommandPrintCloud = "print_cloud"
)

// controlKeys are tried in order; the first present key wins.
var controlKeys = []string{"TempTargetNozzle", "TempTargetHotbed", "TargetFanSpeed", "LightStatus"}

// CloudCommand is the decoded form of one inbound cloud payload:
// NamedCommand, ControlField or Unmatched.
type CloudCommand interface {
	isCloudCommand()
}

// NamedCommand carries a lower-cased Command name and the whole payload.
type NamedCommand struct {
	Name   string
	Fields map[string]any
}

// ControlField is a direct device control setting.
type ControlField struct {
	Key   string
	Value any
}

// Unmatched is a well-formed payload the bridge has no action for.
type Unmatched struct {
	Fields map[string]any
}

func (NamedCommand) isCloudCommand() {}
func (ControlField) isCloudCommand() {}
func (Unmatched) isCloudCommand()    {}

// DecodeCommand parses a cloud payload. A Command field takes precedence
// over control keys.
func DecodeCommand(raw []byte) (CloudCommand, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidCommand)
	}

	if v, ok := fields["Command"]; ok {
		name, isString := v.(string)
		if !isString {
			return nil, fmt.Errorf("%w: Command must be a string", ErrInvalidCommand)
		}

		return NamedCommand{Name: strings.ToLower(strings.TrimSpace(name)), Fields: fields}, nil
	}

	for _, key := range controlKeys {
		if v, ok := fields[key]; ok {
			return ControlField{Key: key, Value: v}, nil
		}
	}

	return Unmatched{Fields: fields}, nil
}

// simpleCommands need no payload validation.
var simpleCommands = map[string]sdcp.Command{
	CommandPause:  sdcp.CmdPausePrint,
	CommandResume: sdcp.CmdResumePrint,
	CommandStop:   sdcp.CmdStopPrint,
}

// controlPayload builds the 403 payload. Temperature targets are sent as
// integers, fan speed and light state pass through unchanged.
func controlPayload(c ControlField) (map[string]any, error) {
	switch c.Key {
	case "TempTargetNozzle", "TempTargetHotbed":
		n, err := sdcp.ToInt(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, c.Key, err)
		}
		return map[string]any{c.Key: n}, nil
	default:
		return map[string]any{c.Key: c.Value}, nil
	}
}

func printOptions(fields map[string]any) (sdcp.PrintOptions, error) {
	opts, err := sdcp.ParsePrintOptions(fields)
	if err != nil {
		return sdcp.PrintOptions{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if opts.Filename == "" {
		return sdcp.PrintOptions{}, fmt.Errorf("%w: Filename is required", ErrInvalidCommand)
	}

	return opts, nil
}
