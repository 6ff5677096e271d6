package bridge

import (
	"math"
	"time"

	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

// PeriodicTelemetry is published while the printer is idle.
type PeriodicTelemetry struct {
	DeviceID          string  `json:"device_id"`
	DeviceStatus      string  `json:"device_status"`
	Timestamp         int64   `json:"timestamp"`
	NozzleTempCurrent float64 `json:"nozzle_temp_current"`
	NozzleTempTarget  float64 `json:"nozzle_temp_target"`
	BedTempCurrent    float64 `json:"bed_temp_current"`
	BedTempTarget     float64 `json:"bed_temp_target"`
}

// FullTelemetry is published on the first tick of a run and whenever a job
// is active.
type FullTelemetry struct {
	PeriodicTelemetry
	ChamberTempCurrent float64 `json:"chamber_temp_current"`
	ChamberTempTarget  float64 `json:"chamber_temp_target"`
	Filename           string  `json:"filename"`
	Progress           float64 `json:"progress"`
	CurrentLayer       int     `json:"current_layer"`
	TotalLayer         int     `json:"total_layer"`
	ModelFanSpeed      float64 `json:"model_fan_speed"`
	AuxiliaryFanSpeed  float64 `json:"auxiliary_fan_speed"`
	BoxFanEnabled      int     `json:"box_fan_enabled"`
	LightingEnabled    int     `json:"lighting_enabled"`
	FirstConnect       bool    `json:"first_connect"`
}

// BuildTelemetry derives the payload for one tick. full reports which shape
// was chosen: the first tick of a run and any tick with a non-zero job
// status get the full record.
func BuildTelemetry(deviceID string, snap sdcp.Snapshot, first bool, now time.Time) (payload any, full bool) {
	periodic := PeriodicTelemetry{
		DeviceID:          deviceID,
		DeviceStatus:      snap.StatusName(),
		Timestamp:         now.Unix(),
		NozzleTempCurrent: round1(snap.Nozzle.Current),
		NozzleTempTarget:  snap.Nozzle.Target,
		BedTempCurrent:    round1(snap.Bed.Current),
		BedTempTarget:     snap.Bed.Target,
	}

	if !first && !snap.Active() {
		return periodic, false
	}

	boxFan := 0
	if snap.Fans.Box > 0 {
		boxFan = 1
	}

	return FullTelemetry{
		PeriodicTelemetry:  periodic,
		ChamberTempCurrent: round1(snap.Chamber.Current),
		ChamberTempTarget:  snap.Chamber.Target,
		Filename:           snap.Job.Filename,
		Progress:           snap.Job.Progress,
		CurrentLayer:       snap.Job.CurrentLayer,
		TotalLayer:         snap.Job.TotalLayer,
		ModelFanSpeed:      snap.Fans.Model,
		AuxiliaryFanSpeed:  snap.Fans.Auxiliary,
		BoxFanEnabled:      boxFan,
		LightingEnabled:    snap.Light,
		FirstConnect:       first,
	}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
