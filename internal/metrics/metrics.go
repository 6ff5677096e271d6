// Package metrics exposes bridge counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "printer_bridge"

// Metrics holds the bridge collectors. A nil *Metrics records nothing.
type Metrics struct {
	FramesReceived   *prometheus.CounterVec
	CommandsSent     *prometheus.CounterVec
	Publications     *prometheus.CounterVec
	RemotePrintJobs  *prometheus.CounterVec
	LinkConnected    *prometheus.GaugeVec
	TelemetryPayload *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_frames_received_total",
			Help:      "Inbound device frames by decoded kind",
		}, []string{"kind"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_commands_total",
			Help:      "Outbound device commands by command and result",
		}, []string{"command", "result"}),
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_publications_total",
			Help:      "Cloud publications by topic kind and result",
		}, []string{"topic", "result"}),
		RemotePrintJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_print_jobs_total",
			Help:      "Finished remote print jobs by final step",
		}, []string{"step"}),
		LinkConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_connected",
			Help:      "1 when the link is connected",
		}, []string{"link"}),
		TelemetryPayload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_payloads_total",
			Help:      "Telemetry payloads built by shape",
		}, []string{"shape"}),
	}

	reg.MustRegister(
		m.FramesReceived,
		m.CommandsSent,
		m.Publications,
		m.RemotePrintJobs,
		m.LinkConnected,
		m.TelemetryPayload,
	)

	return m
}

// NewRegistry returns a registry with the bridge collectors plus Go runtime
// and process collectors.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg, New(reg)
}

func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) Command(command string, err error) {
	if m == nil {
		return
	}
	m.CommandsSent.WithLabelValues(command, result(err)).Inc()
}

func (m *Metrics) Publish(topic string, err error) {
	if m == nil {
		return
	}
	m.Publications.WithLabelValues(topic, result(err)).Inc()
}

func (m *Metrics) RemotePrint(step string) {
	if m == nil {
		return
	}
	m.RemotePrintJobs.WithLabelValues(step).Inc()
}

func (m *Metrics) Link(name string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.LinkConnected.WithLabelValues(name).Set(v)
}

func (m *Metrics) Telemetry(shape string) {
	if m == nil {
		return
	}
	m.TelemetryPayload.WithLabelValues(shape).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
