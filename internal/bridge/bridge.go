// Package bridge routes traffic between the printer link and the cloud link:
// cloud commands become device commands, device acknowledgements become
// cloud responses, and status snapshots become telemetry.
package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PrinterBridge/internal/cloud"
	"github.com/NowakAdmin/PrinterBridge/internal/config"
	"github.com/NowakAdmin/PrinterBridge/internal/device"
	"github.com/NowakAdmin/PrinterBridge/internal/link"
	"github.com/NowakAdmin/PrinterBridge/internal/logger"
	"github.com/NowakAdmin/PrinterBridge/internal/metrics"
	"github.com/NowakAdmin/PrinterBridge/internal/printjob"
	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

const (
	defaultCloudDelay   = 1500 * time.Millisecond
	defaultSettle       = 2 * time.Second
	defaultPollInterval = 5 * time.Second

	responseTimeLayout = "2006-01-02 15:04:05"
)

type Phase int

const (
	Stopped Phase = iota
	Starting
	Running
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

type DeviceLink interface {
	Run(ctx context.Context, h device.Handler) error
	Send(req sdcp.Request) error
	Close() error
}

type CloudLink interface {
	Connect(ctx context.Context, h cloud.Handler) error
	Publish(topic string, payload any) error
	Close()
}

type JobRunner interface {
	Run(ctx context.Context, job printjob.Job) error
}

// Response is the record published on the response topic.
type Response struct {
	Cmd     sdcp.Command `json:"Cmd"`
	Ack     int          `json:"Ack"`
	Content any          `json:"Content"`
	Time    string       `json:"Time"`
}

type Bridge struct {
	cfg     *config.Config
	codec   *sdcp.Codec
	topics  cloud.Topics
	device  DeviceLink
	cloud   CloudLink
	jobs    JobRunner
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	cloudDelay time.Duration
	settle     time.Duration

	lifecycle sync.Mutex
	wg        sync.WaitGroup

	mu              sync.Mutex
	phase           Phase
	runCtx          context.Context
	cancel          context.CancelFunc
	deviceState     link.State
	cloudState      link.State
	deviceAttempted bool
	cloudAttempted  bool
	snapshot        sdcp.Snapshot
	hasSnapshot     bool
	firstTick       bool
}

func New(cfg *config.Config, dev DeviceLink, cl CloudLink, uploader printjob.Uploader, log zerolog.Logger, m *metrics.Metrics) *Bridge {
	b := &Bridge{
		cfg:        cfg,
		codec:      sdcp.NewCodec(cfg.MainboardID),
		topics:     cloud.Topics{APIKey: cfg.APIKey, DeviceID: cfg.MainboardID},
		device:     dev,
		cloud:      cl,
		logger:     log,
		metrics:    m,
		now:        time.Now,
		cloudDelay: defaultCloudDelay,
		settle:     defaultSettle,
		firstTick:  true,
	}
	b.jobs = printjob.NewRunner(cfg.WorkDir, uploader, b, progressPublisher{b}, logger.WithComponent(log, "printjob"), m)

	return b
}

// Start launches the device link at once and the cloud link after a short
// delay. It returns immediately; link failures only degrade the bridge.
func (b *Bridge) Start(parent context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if b.phase != Stopped {
		b.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	b.phase = Starting
	b.runCtx = ctx
	b.cancel = cancel
	b.firstTick = true
	b.mu.Unlock()

	b.logger.Info().
		Str("printer", b.cfg.PrinterAddr()).
		Str("mainboard_id", b.cfg.MainboardID).
		Msg("bridge starting")

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		if err := b.device.Run(ctx, b); err != nil {
			b.logger.Error().Err(err).Msg("device link ended")
		}
	}()
	go func() {
		defer b.wg.Done()
		b.runCloud(ctx)
	}()

	return nil
}

// Stop tears both links down and clears all run state. It is safe to call
// more than once.
func (b *Bridge) Stop() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if b.phase == Stopped {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	if err := b.device.Close(); err != nil {
		b.logger.Debug().Err(err).Msg("device link close")
	}
	b.cloud.Close()
	b.wg.Wait()

	b.mu.Lock()
	b.phase = Stopped
	b.runCtx = nil
	b.cancel = nil
	b.deviceState = link.Disconnected
	b.cloudState = link.Disconnected
	b.deviceAttempted = false
	b.cloudAttempted = false
	b.snapshot = sdcp.Snapshot{}
	b.hasSnapshot = false
	b.firstTick = false
	b.mu.Unlock()

	b.metrics.Link("device", false)
	b.metrics.Link("cloud", false)

	b.logger.Info().Msg("bridge stopped")
}

func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.phase
}

// Links returns the device and cloud connectivity.
func (b *Bridge) Links() (dev, cl link.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.deviceState, b.cloudState
}

// Snapshot returns the last status received from the device.
func (b *Bridge) Snapshot() (sdcp.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.snapshot, b.hasSnapshot
}

func (b *Bridge) runCloud(ctx context.Context) {
	timer := time.NewTimer(b.cloudDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	err := b.cloud.Connect(ctx, b)

	b.mu.Lock()
	b.cloudAttempted = true
	b.promoteLocked()
	b.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logger.Error().Err(err).Msg("cloud link connect failed, telemetry disabled")
		}
		return
	}

	b.runSampler(ctx)
}

// promoteLocked enters Running once both links have tried to connect.
func (b *Bridge) promoteLocked() {
	if b.phase == Starting && b.deviceAttempted && b.cloudAttempted {
		b.phase = Running
		b.logger.Info().
			Str("device", b.deviceState.String()).
			Str("cloud", b.cloudState.String()).
			Msg("bridge running")
	}
}

func (b *Bridge) HandleDeviceState(state link.State) {
	b.mu.Lock()
	b.deviceState = state
	if state != link.Connecting {
		b.deviceAttempted = true
		b.promoteLocked()
	}
	b.mu.Unlock()

	b.metrics.Link("device", state == link.Connected)
	b.logger.Info().Str("state", state.String()).Msg("device link")
}

func (b *Bridge) HandleCloudState(state link.State) {
	b.mu.Lock()
	b.cloudState = state
	b.mu.Unlock()

	b.metrics.Link("cloud", state == link.Connected)
	b.logger.Info().Str("state", state.String()).Msg("cloud link")
}

func (b *Bridge) HandleDeviceMessage(msg sdcp.Message) {
	switch m := msg.(type) {
	case sdcp.Status:
		b.mu.Lock()
		b.snapshot = m.Snapshot
		b.hasSnapshot = true
		b.mu.Unlock()
	case sdcp.Ack:
		b.handleAck(m)
	}
}

func (b *Bridge) handleAck(ack sdcp.Ack) {
	switch ack.Cmd.AckKind() {
	case sdcp.AckTerminal:
		content := "OK"
		if ack.Code != 0 {
			content = "FAIL"
		}
		b.logger.Info().Str("command", ack.Cmd.String()).Int("ack", ack.Code).Msg("device ack")
		b.respond(ack.Cmd, ack.Code, content)
	case sdcp.AckListing:
		files := newestFiles(ack.FileList, b.cfg.MaxFiles)
		b.logger.Info().Int("files", len(ack.FileList)).Int("published", len(files)).Msg("file list received")
		b.respond(ack.Cmd, ack.Code, files)
	}
}

// newestFiles sorts by creation time, newest first, and keeps at most limit
// entries. A non-positive limit keeps everything.
func newestFiles(list []sdcp.FileEntry, limit int) []sdcp.FileEntry {
	files := make([]sdcp.FileEntry, len(list))
	copy(files, list)

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreateTime() > files[j].CreateTime()
	})

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	return files
}

func (b *Bridge) respond(cmd sdcp.Command, ack int, content any) {
	b.publish(b.topics.Response(), Response{
		Cmd:     cmd,
		Ack:     ack,
		Content: content,
		Time:    b.now().Format(responseTimeLayout),
	})
}

func (b *Bridge) publish(topic string, payload any) bool {
	if err := b.cloud.Publish(topic, payload); err != nil {
		b.logger.Warn().Err(err).Str("topic", b.topics.Kind(topic)).Msg("publish dropped")
		return false
	}

	return true
}

func (b *Bridge) HandleCloudCommand(raw []byte) {
	cmd, err := DecodeCommand(raw)
	if err != nil {
		b.logger.Warn().Err(err).Msg("cloud command dropped")
		return
	}

	switch c := cmd.(type) {
	case NamedCommand:
		b.logger.Info().Str("command", c.Name).Msg("cloud command")
		b.handleNamed(c)
	case ControlField:
		b.logger.Info().Str("field", c.Key).Msg("cloud control command")
		payload, err := controlPayload(c)
		if err != nil {
			b.logger.Warn().Err(err).Msg("cloud command dropped")
			return
		}
		_ = b.SendCommand(sdcp.CmdControlDevice, payload)
	case Unmatched:
		b.logger.Debug().Int("fields", len(c.Fields)).Msg("cloud payload matched no command")
	}
}

func (b *Bridge) handleNamed(c NamedCommand) {
	if code, ok := simpleCommands[c.Name]; ok {
		_ = b.SendCommand(code, nil)
		return
	}

	switch c.Name {
	case CommandGetFiles:
		_ = b.SendCommand(sdcp.CmdFileList, map[string]any{"Url": sdcp.LocalRoot})
	case CommandPrint:
		opts, err := printOptions(c.Fields)
		if err != nil {
			b.logger.Warn().Err(err).Msg("print command dropped")
			return
		}
		_ = b.SendCommand(sdcp.CmdStartPrint, opts.Payload(opts.Filename))
	case CommandPrintCloud:
		b.startJob(c.Fields)
	default:
		b.logger.Warn().Str("command", c.Name).Msg("unknown cloud command")
	}
}

func (b *Bridge) startJob(fields map[string]any) {
	opts, err := printOptions(fields)
	if err != nil {
		b.logger.Warn().Err(err).Msg("print_cloud command dropped")
		return
	}

	url, _ := fields["FileUrl"].(string)
	if url == "" {
		b.logger.Warn().Err(ErrInvalidCommand).Msg("print_cloud command dropped: FileUrl is required")
		return
	}

	b.mu.Lock()
	ctx := b.runCtx
	b.mu.Unlock()
	if ctx == nil {
		b.logger.Warn().Msg("print_cloud command dropped: bridge stopped")
		return
	}

	go func() {
		if err := b.jobs.Run(ctx, printjob.Job{URL: url, Options: opts}); err != nil {
			b.logger.Debug().Err(err).Str("file", opts.Filename).Msg("remote print job ended")
		}
	}()
}

// SendCommand encodes and sends one device command. Commands issued while
// the device link is down are dropped.
func (b *Bridge) SendCommand(cmd sdcp.Command, payload map[string]any) error {
	err := b.device.Send(b.codec.Encode(cmd, payload))
	b.metrics.Command(cmd.String(), err)

	if err != nil {
		b.logger.Warn().Err(err).Str("command", cmd.String()).Msg("device command dropped")
		return err
	}

	b.logger.Debug().Str("command", cmd.String()).Msg("device command sent")

	return nil
}

// progressPublisher publishes remote print progress on the response topic.
type progressPublisher struct {
	b *Bridge
}

func (p progressPublisher) Report(ack int, progress printjob.Progress) {
	p.b.respond(sdcp.CmdRemotePrint, ack, progress)
}
