// Package printjob runs remote print jobs: fetch a file from a URL, upload it
// to the printer and start printing it.
package printjob

//go:generate mockgen -destination=mock_printjob.go -package=printjob github.com/NowakAdmin/PrinterBridge/internal/printjob Reporter,Commander,Uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PrinterBridge/internal/metrics"
	"github.com/NowakAdmin/PrinterBridge/internal/sdcp"
)

// Steps published with every progress record.
const (
	StepDownloading    = "downloading"
	StepDownloadFailed = "download_failed"
	StepUploading      = "uploading"
	StepUploadFailed   = "upload_failed"
	StepUploadComplete = "upload_complete"
	StepPrintStarted   = "print_started"
	StepTriggerFailed  = "trigger_failed"
)

const (
	defaultDownloadTimeout = 300 * time.Second
	defaultSettle          = time.Second
	progressStep           = 25
)

var ErrInvalidFilename = errors.New("invalid file name")

// Progress is the content of a remote print status publication.
type Progress struct {
	Step     string `json:"step"`
	Filename string `json:"filename,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Reporter publishes progress records. ack is 0 for progress, negative for
// a terminal failure.
type Reporter interface {
	Report(ack int, p Progress)
}

// Commander sends a command to the device.
type Commander interface {
	SendCommand(cmd sdcp.Command, payload map[string]any) error
}

// Uploader transfers a local file to the device storage under name.
type Uploader interface {
	Upload(ctx context.Context, path, name string) error
}

type Job struct {
	URL     string
	Options sdcp.PrintOptions
}

type Runner struct {
	workDir         string
	client          *http.Client
	downloadTimeout time.Duration
	settle          time.Duration

	uploader  Uploader
	commander Commander
	reporter  Reporter

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewRunner(workDir string, uploader Uploader, commander Commander, reporter Reporter, logger zerolog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		workDir:         workDir,
		client:          &http.Client{},
		downloadTimeout: defaultDownloadTimeout,
		settle:          defaultSettle,
		uploader:        uploader,
		commander:       commander,
		reporter:        reporter,
		logger:          logger,
		metrics:         m,
	}
}

// Run executes job to completion. Every stage publishes a progress record;
// the first failing stage publishes its failure and ends the job.
func (r *Runner) Run(ctx context.Context, job Job) error {
	name := filepath.Base(job.Options.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, job.Options.Filename)
	}

	log := r.logger.With().Str("file", name).Logger()

	log.Info().Str("url", job.URL).Msg("remote print download started")
	r.reporter.Report(0, Progress{Step: StepDownloading, Filename: name})

	path := filepath.Join(r.workDir, name)
	if err := r.download(ctx, job.URL, path, name); err != nil {
		return r.fail(log, &StageError{Stage: StageDownload, Err: err}, path)
	}

	log.Info().Msg("remote print upload started")
	r.reporter.Report(0, Progress{Step: StepUploading, Filename: name})

	if err := r.uploader.Upload(ctx, path, name); err != nil {
		return r.fail(log, &StageError{Stage: StageUpload, Err: err}, path)
	}
	r.removeTemp(log, path)

	r.reporter.Report(0, Progress{Step: StepUploadComplete, Filename: name})

	timer := time.NewTimer(r.settle)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}

	remote := sdcp.LocalRoot + name
	// A dropped trigger is only logged; the job still ends with print_started.
	triggerErr := r.commander.SendCommand(sdcp.CmdStartPrint, job.Options.Payload(remote))
	if triggerErr != nil {
		log.Error().Err(triggerErr).Msg("print trigger not delivered")
		r.metrics.RemotePrint(StepTriggerFailed)
	}

	r.reporter.Report(0, Progress{Step: StepPrintStarted, Filename: remote})
	r.metrics.RemotePrint(StepPrintStarted)

	if triggerErr != nil {
		return fmt.Errorf("start print %s: %w", remote, triggerErr)
	}

	log.Info().Str("path", remote).Msg("remote print started")

	return nil
}

func (r *Runner) fail(log zerolog.Logger, err *StageError, path string) error {
	log.Error().Err(err.Err).Str("stage", string(err.Stage)).Msg("remote print failed")
	r.removeTemp(log, path)
	r.reporter.Report(err.Ack(), Progress{Step: err.Step(), Error: err.Err.Error()})
	r.metrics.RemotePrint(err.Step())

	return err
}

func (r *Runner) removeTemp(log zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("temp file not removed")
	}
}

func (r *Runner) download(ctx context.Context, url, path, name string) error {
	ctx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	response, err := r.client.Do(request)
	if err != nil {
		return err
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %s", name, response.Status)
	}

	if err = os.MkdirAll(r.workDir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	counter := &progressWriter{
		total: response.ContentLength,
		next:  progressStep,
		report: func(pct int) {
			r.reporter.Report(0, Progress{Step: StepDownloading, Filename: name, Progress: pct})
		},
	}

	if _, err = io.Copy(io.MultiWriter(f, counter), response.Body); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// progressWriter reports every crossed 25% threshold exactly once. It stays
// silent when the total size is unknown.
type progressWriter struct {
	total   int64
	written int64
	next    int
	report  func(pct int)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.total <= 0 {
		return len(p), nil
	}

	pct := int(w.written * 100 / w.total)
	for w.next <= 100 && pct >= w.next {
		w.report(w.next)
		w.next += progressStep
	}

	return len(p), nil
}
