package fxstream

import (
	"errors"
	"fmt"

	"github.com/gogpu/fxstream/internal/gpu"
)

// ExitCode identifies the site of a fatal pipeline failure. Values are
// stable and used as process exit status.
type ExitCode int

// Exit codes.
const (
	ExitOK            ExitCode = 0
	ExitFailure       ExitCode = 1
	ExitHostInit      ExitCode = 3
	ExitDevice        ExitCode = 4
	ExitVertexBuffer  ExitCode = 41
	ExitShader        ExitCode = 43
	ExitBindLayout    ExitCode = 44
	ExitPipeline      ExitCode = 45
	ExitUniformBuffer ExitCode = 46
	ExitInterop       ExitCode = 5
	ExitQueue         ExitCode = 51
	ExitEffect        ExitCode = 52
	ExitSetSchema     ExitCode = 6
	ExitSaveSchema    ExitCode = 61
	ExitRenderTarget  ExitCode = 7
	ExitSendFrame     ExitCode = 8
	ExitInputBuffer   ExitCode = 81
	ExitOutputBuffer  ExitCode = 82
	ExitOutputFormat  ExitCode = 84
	ExitAwait         ExitCode = 9
	ExitShutdown      ExitCode = 99
)

// Pipeline errors.
var (
	// ErrClosed is returned when stepping a closed pipeline.
	ErrClosed = errors.New("fxstream: pipeline closed")

	// ErrInputFormat is returned when the host reports an input image in a
	// format other than the input texture's. The frame is skipped.
	ErrInputFormat = errors.New("fxstream: unsupported input image format")
)

// FatalError is a failure the pipeline cannot continue from.
type FatalError struct {
	Code ExitCode
	Op   string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fxstream: %s (exit %d): %v", e.Op, e.Code, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(code ExitCode, op string, err error) *FatalError {
	return &FatalError{Code: code, Op: op, Err: err}
}

// CodeOf returns the exit code for err: ExitOK for nil, the code of a
// wrapped FatalError, or ExitFailure.
func CodeOf(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ExitFailure
}

// setupCode maps a compositor setup failure to its exit code.
func setupCode(err error) ExitCode {
	var se *gpu.SetupError
	if !errors.As(err, &se) {
		return ExitPipeline
	}
	switch se.Stage {
	case gpu.StageVertexBuffer:
		return ExitVertexBuffer
	case gpu.StageShader:
		return ExitShader
	case gpu.StageBindLayout:
		return ExitBindLayout
	case gpu.StageUniformBuffer:
		return ExitUniformBuffer
	default:
		return ExitPipeline
	}
}
