package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStagingFailure halts the controller: the staging filesystem is full or unwritable.
	ErrStagingFailure = errors.New("staging failure")

	// ErrRuntimeUnreachable halts the controller: the container runtime daemon cannot be reached.
	ErrRuntimeUnreachable = errors.New("container runtime unreachable")
)

type Stage string

const (
	StageQueued  Stage = "queued"
	StageStop    Stage = "stop"
	StagePreExec Stage = "pre_exec"
	StageCapture Stage = "capture"
	StageStage   Stage = "stage"
	StageRestart Stage = "restart"
	StageUpload  Stage = "upload"
	StageDone    Stage = "done"
)

// ConfigurationError rejects a single target (or a single label when Type is empty);
// the container's other targets are unaffected.
type ConfigurationError struct {
	Container string
	Type      string
	Instance  string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("container %s: %s", e.Container, e.Reason)
	}
	return fmt.Sprintf("container %s, target %s.%s: %s", e.Container, e.Type, e.Instance, e.Reason)
}

// StageError records the pipeline stage a job failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or StageDone when there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageDone
}

// IsFatal reports whether err must halt the whole controller run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStagingFailure) || errors.Is(err, ErrRuntimeUnreachable)
}
