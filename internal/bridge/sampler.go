package bridge

import (
	"context"
	"time"

	"github.com/NowakAdmin/PrinterBridge/internal/link"
	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

func (b *Bridge) runSampler(ctx context.Context) {
	interval := b.cfg.PollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick polls the device, waits for the status answer to land and publishes
// the derived telemetry. Ticks are skipped while the device is offline or
// before any status has arrived.
func (b *Bridge) tick(ctx context.Context) {
	b.mu.Lock()
	connected := b.deviceState == link.Connected
	b.mu.Unlock()
	if !connected {
		return
	}

	_ = b.SendCommand(sdcp.CmdStatus, nil)

	timer := time.NewTimer(b.settle)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	b.mu.Lock()
	snap, ok, first := b.snapshot, b.hasSnapshot, b.firstTick
	b.mu.Unlock()
	if !ok {
		return
	}

	payload, full := BuildTelemetry(b.codec.MainboardID(), snap, first, b.now())

	topic, shape := b.topics.Periodic(), "periodic"
	if full {
		topic, shape = b.topics.Stream(), "full"
	}
	b.metrics.Telemetry(shape)

	if !b.publish(topic, payload) {
		return
	}

	if first {
		b.mu.Lock()
		b.firstTick = false
		b.mu.Unlock()
		b.logger.Info().Msg("initial full telemetry published")
	}
}
