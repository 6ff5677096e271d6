package sdcp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusName(t *testing.T) {
	known := map[int]string{
		0: "idle", 1: "homing", 2: "dropping", 3: "printing", 4: "lifting",
		5: "pausing", 6: "paused", 7: "stopping", 8: "stopped", 9: "complete",
		10: "file_checking", 12: "recovery", 13: "printing", 15: "loading",
		16: "preheating", 20: "leveling",
	}
	for code, name := range known {
		assert.Equal(t, name, StatusName(code), "code %d", code)
	}

	for _, code := range []int{-1, 11, 14, 17, 19, 21, 999} {
		assert.Equal(t, "idle", StatusName(code), "code %d", code)
	}
}

func TestCodecEncode(t *testing.T) {
	codec := NewCodec("board-42")
	codec.now = func() time.Time { return time.Unix(1700000000, 0) }

	req := codec.Encode(CmdStartPrint, map[string]any{"Filename": "/local/a.gcode"})

	assert.Equal(t, CmdStartPrint, req.Data.Cmd)
	assert.Equal(t, "board-42", req.Data.MainboardID)
	assert.Equal(t, "sdcp/request/board-42", req.Topic)
	assert.Equal(t, int64(1700000000), req.Data.TimeStamp)
	assert.Equal(t, 0, req.Data.From)
	assert.NotEmpty(t, req.ID)
	assert.NotEmpty(t, req.Data.RequestID)
	assert.NotEqual(t, req.ID, req.Data.RequestID)

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	data := wire["Data"].(map[string]any)
	assert.Equal(t, float64(128), data["Cmd"])
	assert.Equal(t, "board-42", data["MainboardID"])
	assert.Contains(t, wire, "Id")
}

func TestCodecEncodeNilPayload(t *testing.T) {
	req := NewCodec("x").Encode(CmdPausePrint, nil)

	require.NotNil(t, req.Data.Data)
	assert.Empty(t, req.Data.Data)
}

func TestDecodeHeartbeat(t *testing.T) {
	for _, raw := range []string{"pong", `"pong"`, " pong\n"} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, Heartbeat{}, msg)
	}
}

func TestDecodeAck(t *testing.T) {
	msg, err := Decode([]byte(`{"Data":{"Cmd":129,"Data":{"Ack":0}}}`))
	require.NoError(t, err)
	assert.Equal(t, Ack{Cmd: CmdPausePrint, Code: 0}, msg)

	msg, err = Decode([]byte(`{"Data":{"Cmd":403,"Data":{"Ack":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, Ack{Cmd: CmdControlDevice, Code: 1}, msg)
}

func TestDecodeFileListAck(t *testing.T) {
	raw := `{"Data":{"Cmd":258,"Data":{"Ack":0,"FileList":[{"name":"/local/a.gcode","CreateTime":10},{"name":"/local/b.gcode","CreateTime":20}]}}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	ack, ok := msg.(Ack)
	require.True(t, ok)
	assert.Equal(t, CmdFileList, ack.Cmd)
	require.Len(t, ack.FileList, 2)
	assert.Equal(t, "/local/b.gcode", ack.FileList[1]["name"])
	assert.Equal(t, float64(20), ack.FileList[1].CreateTime())
}

func TestDecodeStatus(t *testing.T) {
	raw := `{"Status":{
		"TempOfNozzle":[220,219.6],
		"TempOfHotbed":59.8,"TempTargetHotbed":60,
		"TempOfBox":30.2,
		"CurrentFanSpeed":{"ModelFan":100,"AuxiliaryFan":50,"BoxFan":20},
		"LightStatus":{"SecondLight":1},
		"PrintInfo":{"Status":3,"Filename":"cube.gcode","Progress":42,"CurrentLayer":7,"TotalLayer":100}
	},"MainboardID":"board-42"}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	status, ok := msg.(Status)
	require.True(t, ok)

	snap := status.Snapshot
	assert.Equal(t, Temperature{Current: 219.6, Target: 220}, snap.Nozzle)
	assert.Equal(t, Temperature{Current: 59.8, Target: 60}, snap.Bed)
	assert.Equal(t, Temperature{Current: 30.2, Target: 0}, snap.Chamber)
	assert.Equal(t, PrintInfo{Filename: "cube.gcode", Progress: 42, CurrentLayer: 7, TotalLayer: 100, Status: 3}, snap.Job)
	assert.Equal(t, FanSpeeds{Model: 100, Auxiliary: 50, Box: 20}, snap.Fans)
	assert.Equal(t, 1, snap.Light)
	assert.True(t, snap.Active())
	assert.Equal(t, "printing", snap.StatusName())
}

func TestDecodeTemperatureEncodings(t *testing.T) {
	msg, err := Decode([]byte(`{"Status":{"TempOfNozzle":[20.0,19.8]}}`))
	require.NoError(t, err)
	assert.Equal(t, Temperature{Current: 19.8, Target: 20.0}, msg.(Status).Snapshot.Nozzle)

	msg, err = Decode([]byte(`{"Status":{"TempOfNozzle":19.8,"TempTargetNozzle":200}}`))
	require.NoError(t, err)
	assert.Equal(t, Temperature{Current: 19.8, Target: 200}, msg.(Status).Snapshot.Nozzle)

	msg, err = Decode([]byte(`{"Status":{"TempOfNozzle":19.8}}`))
	require.NoError(t, err)
	assert.Equal(t, Temperature{Current: 19.8, Target: 0}, msg.(Status).Snapshot.Nozzle)

	msg, err = Decode([]byte(`{"Status":{}}`))
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, msg.(Status).Snapshot)
}

func TestDecodeLightScalar(t *testing.T) {
	msg, err := Decode([]byte(`{"Status":{"LightStatus":true}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, msg.(Status).Snapshot.Light)

	msg, err = Decode([]byte(`{"Status":{"LightStatus":0}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, msg.(Status).Snapshot.Light)
}

func TestDecodeDropsUnrecognized(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"Topic":"sdcp/attributes/x","Attributes":{}}`,
		`{"Data":{"Cmd":0,"Data":{"Ack":0}}}`,
		`{"Data":{"Cmd":129,"Data":{}}}`,
		`{"Status":null}`,
	} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Nil(t, msg, raw)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{`{not json`, `[1,2]`, `{"Status":"busy"}`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestCommandAckKind(t *testing.T) {
	for _, cmd := range []Command{CmdStartPrint, CmdPausePrint, CmdStopPrint, CmdResumePrint, CmdControlDevice} {
		assert.Equal(t, AckTerminal, cmd.AckKind(), cmd.String())
	}
	assert.Equal(t, AckListing, CmdFileList.AckKind())
	assert.Equal(t, AckIgnored, CmdStatus.AckKind())
	assert.Equal(t, AckIgnored, CmdRemotePrint.AckKind())
}

func TestParsePrintOptionsPlateSide(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{name: "upper A", value: "A", want: 0},
		{name: "lower a", value: "a", want: 0},
		{name: "B", value: "B", want: 1},
		{name: "other string", value: "left", want: 1},
		{name: "number", value: float64(2), want: 2},
		{name: "zero", value: float64(0), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParsePrintOptions(map[string]any{"Filename": "a.gcode", "PlateSide": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.PlatformType)
		})
	}
}

func TestParsePrintOptionsAlternateNames(t *testing.T) {
	opts, err := ParsePrintOptions(map[string]any{
		"Filename":          "a.gcode",
		"PrintPlatformType": "A",
		"Timelapse":         true,
		"BedLeveling":       float64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, PrintOptions{Filename: "a.gcode", PlatformType: 0, Timelapse: 1, Calibration: 1}, opts)

	opts, err = ParsePrintOptions(map[string]any{
		"Filename":           "b.gcode",
		"PlateSide":          "B",
		"PrintPlatformType":  float64(0),
		"Tlp_Switch":         float64(0),
		"Timelapse":          float64(1),
		"Calibration_switch": "1",
	})
	require.NoError(t, err)
	assert.Equal(t, PrintOptions{Filename: "b.gcode", PlatformType: 1, Timelapse: 0, Calibration: 1}, opts)
}

func TestParsePrintOptionsInvalid(t *testing.T) {
	_, err := ParsePrintOptions(map[string]any{"Filename": "a.gcode", "Tlp_Switch": "yes"})
	assert.ErrorIs(t, err, ErrInvalidPrintOptions)

	_, err = ParsePrintOptions(map[string]any{"Filename": "a.gcode", "PlateSide": []any{1}})
	assert.ErrorIs(t, err, ErrInvalidPrintOptions)
}

func TestPrintOptionsPayload(t *testing.T) {
	opts := PrintOptions{Filename: "a.gcode", PlatformType: 1, Timelapse: 1}

	assert.Equal(t, map[string]any{
		"Filename":           "/local/a.gcode",
		"StartLayer":         0,
		"PrintPlatformType":  1,
		"Tlp_Switch":         1,
		"Calibration_switch": 0,
	}, opts.Payload(LocalRoot+opts.Filename))
}
