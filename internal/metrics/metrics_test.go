package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Frame("status")
	m.Frame("status")
	m.Command("pause", nil)
	m.Command("pause", errors.New("not connected"))
	m.Publish("response", nil)
	m.RemotePrint("print_started")
	m.Link("device", true)
	m.Telemetry("full")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("pause", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("pause", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Publications.WithLabelValues("response", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemotePrintJobs.WithLabelValues("print_started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkConnected.WithLabelValues("device")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TelemetryPayload.WithLabelValues("full")))

	m.Link("device", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LinkConnected.WithLabelValues("device")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Frame("ack")
		m.Command("stop", nil)
		m.Publish("stream", nil)
		m.RemotePrint("upload_failed")
		m.Link("cloud", true)
		m.Telemetry("periodic")
	})
}

func TestNewRegistryGathers(t *testing.T) {
	reg, m := NewRegistry()
	m.Frame("ack")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "printer_bridge_device_frames_received_total")
	assert.Contains(t, names, "go_goroutines")
}
