package notebook

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// Executor runs a notebook in place. path is relative to dir; the notebook file on disk is replaced by the executed
// version, outputs included, also when execution fails part way.
type Executor interface {
	Execute(ctx context.Context, dir, path string) error
}

// ExecutionError carries whatever the kernel printed, which includes the traceback of the failing cell.
type ExecutionError struct {
	Output string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("notebook execution failed: %v\n%s", e.Err, e.Output)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// JupyterExecutor shells out to nbconvert.
type JupyterExecutor struct {
	Binary      string
	CellTimeout time.Duration
}

func (j JupyterExecutor) Execute(ctx context.Context, dir, path string) error {
	binary := j.Binary
	if binary == "" {
		binary = "jupyter"
	}
	timeout := j.CellTimeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	abs := filepath.Join(dir, filepath.FromSlash(path))
	cmd := exec.CommandContext(ctx, binary, "nbconvert",
		"--to", "notebook",
		"--execute",
		"--inplace",
		fmt.Sprintf("--ExecutePreprocessor.timeout=%d", int(timeout.Seconds())),
		filepath.Base(abs),
	)
	// Relative paths inside the notebook resolve against its own directory
	cmd.Dir = filepath.Dir(abs)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return &ExecutionError{Output: out.String(), Err: err}
	}
	return nil
}
