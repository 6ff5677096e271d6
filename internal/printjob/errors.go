package printjob

import "fmt"

type Stage string

const (
	StageDownload Stage = "download"
	StageUpload   Stage = "upload"
)

// StageError is a terminal failure of one pipeline stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Ack is the acknowledgement code published for the failure.
func (e *StageError) Ack() int {
	if e.Stage == StageDownload {
		return -1
	}

	return -2
}

func (e *StageError) Step() string {
	if e.Stage == StageDownload {
		return StepDownloadFailed
	}

	return StepUploadFailed
}
