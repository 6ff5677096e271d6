package sdcp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Snapshot is the device's full status structure as of its last status frame.
type Snapshot struct {
	Nozzle  Temperature
	Bed     Temperature
	Chamber Temperature
	Job     PrintInfo
	Fans    FanSpeeds
	Light   int
}

type Temperature struct {
	Current float64
	Target  float64
}

type PrintInfo struct {
	Filename     string
	Progress     float64
	CurrentLayer int
	TotalLayer   int
	Status       int
}

type FanSpeeds struct {
	Model     float64
	Auxiliary float64
	Box       float64
}

// Active reports whether the job is in any non-idle phase.
func (s Snapshot) Active() bool {
	return s.Job.Status != 0
}

func (s Snapshot) StatusName() string {
	return StatusName(s.Job.Status)
}

type rawStatus struct {
	TempOfNozzle     reading         `json:"TempOfNozzle"`
	TempTargetNozzle number          `json:"TempTargetNozzle"`
	TempOfHotbed     reading         `json:"TempOfHotbed"`
	TempTargetHotbed number          `json:"TempTargetHotbed"`
	TempOfBox        reading         `json:"TempOfBox"`
	TempTargetBox    number          `json:"TempTargetBox"`
	CurrentFanSpeed  json.RawMessage `json:"CurrentFanSpeed"`
	LightStatus      json.RawMessage `json:"LightStatus"`
	PrintInfo        struct {
		Filename     string `json:"Filename"`
		Progress     number `json:"Progress"`
		CurrentLayer number `json:"CurrentLayer"`
		TotalLayer   number `json:"TotalLayer"`
		Status       number `json:"Status"`
	} `json:"PrintInfo"`
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw rawStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Snapshot{
		Nozzle:  raw.TempOfNozzle.resolve(raw.TempTargetNozzle),
		Bed:     raw.TempOfHotbed.resolve(raw.TempTargetHotbed),
		Chamber: raw.TempOfBox.resolve(raw.TempTargetBox),
		Job: PrintInfo{
			Filename:     raw.PrintInfo.Filename,
			Progress:     float64(raw.PrintInfo.Progress),
			CurrentLayer: int(raw.PrintInfo.CurrentLayer),
			TotalLayer:   int(raw.PrintInfo.TotalLayer),
			Status:       int(raw.PrintInfo.Status),
		},
		Fans:  decodeFans(raw.CurrentFanSpeed),
		Light: decodeLight(raw.LightStatus),
	}

	return nil
}

// reading is a temperature sent either as a bare current value or as a
// [target, current] pair.
type reading struct {
	current float64
	target  float64
	paired  bool
}

func (r *reading) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*r = reading{}
	if pair, ok := v.([]any); ok {
		if len(pair) >= 2 {
			r.target = toFloat(pair[0])
			r.current = toFloat(pair[1])
			r.paired = true
		}
		return nil
	}

	r.current = toFloat(v)
	return nil
}

func (r reading) resolve(target number) Temperature {
	if r.paired {
		return Temperature{Current: r.current, Target: r.target}
	}

	return Temperature{Current: r.current, Target: float64(target)}
}

// number accepts JSON numbers, numeric strings, booleans and null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*n = number(toFloat(v))
	return nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func decodeFans(raw json.RawMessage) FanSpeeds {
	var fans struct {
		ModelFan     number `json:"ModelFan"`
		AuxiliaryFan number `json:"AuxiliaryFan"`
		BoxFan       number `json:"BoxFan"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &fans) != nil {
		return FanSpeeds{}
	}

	return FanSpeeds{
		Model:     float64(fans.ModelFan),
		Auxiliary: float64(fans.AuxiliaryFan),
		Box:       float64(fans.BoxFan),
	}
}

// decodeLight reads SecondLight from an object, or the truthiness of any
// other value.
func decodeLight(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}

	switch t := v.(type) {
	case map[string]any:
		return int(toFloat(t["SecondLight"]))
	case nil:
		return 0
	case string:
		if t == "" {
			return 0
		}
		return 1
	case []any:
		if len(t) == 0 {
			return 0
		}
		return 1
	default:
		if toFloat(t) != 0 {
			return 1
		}
		return 0
	}
}
