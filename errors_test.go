package fxstream

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/fxstream/internal/gpu"
)

func TestCodeOf(t *testing.T) {
	cause := errors.New("device lost")
	tests := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitOK},
		{"plain", cause, ExitFailure},
		{"fatal", fatal(ExitSendFrame, "send", cause), ExitSendFrame},
		{"wrapped fatal", fmt.Errorf("run: %w", fatal(ExitAwait, "await", cause)), ExitAwait},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("%s: CodeOf() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestFatalError(t *testing.T) {
	cause := errors.New("out of memory")
	err := fatal(ExitInputBuffer, "allocate input texture", cause)
	if !errors.Is(err, cause) {
		t.Error("FatalError does not unwrap to its cause")
	}
	msg := err.Error()
	for _, want := range []string{"allocate input texture", "exit 81", "out of memory"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestSetupCode(t *testing.T) {
	tests := []struct {
		err  error
		want ExitCode
	}{
		{&gpu.SetupError{Stage: gpu.StageVertexBuffer}, ExitVertexBuffer},
		{&gpu.SetupError{Stage: gpu.StageShader}, ExitShader},
		{&gpu.SetupError{Stage: gpu.StageBindLayout}, ExitBindLayout},
		{&gpu.SetupError{Stage: gpu.StagePipeline}, ExitPipeline},
		{&gpu.SetupError{Stage: gpu.StageUniformBuffer}, ExitUniformBuffer},
		{errors.New("other"), ExitPipeline},
	}
	for _, tt := range tests {
		if got := setupCode(tt.err); got != tt.want {
			t.Errorf("setupCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	want := map[Outcome]string{
		Processed:   "processed",
		Rebuilt:     "rebuilt",
		Timeout:     "timeout",
		Skipped:     "skipped",
		Fatal:       "fatal",
		Shutdown:    "shutdown",
		Outcome(42): "Outcome(42)",
	}
	for o, s := range want {
		if got := o.String(); got != s {
			t.Errorf("Outcome(%d).String() = %q, want %q", uint8(o), got, s)
		}
	}
}
