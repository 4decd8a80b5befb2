package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Runner executes the scraper command and returns what it wrote to stdout and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Dir is the working directory for the child; empty means the current one.
	Dir string
	// MaxOutput caps the bytes kept from each of stdout and stderr.
	MaxOutput int64
}

// ErrOutputTruncated reports stdout larger than the configured cap.
var ErrOutputTruncated = errors.New("scraper output exceeded limit")

// Run starts the command and waits for it. A cancelled or expired ctx kills the
// child; the returned error then wraps ctx.Err().
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	stdout := &cappedBuffer{limit: r.MaxOutput}
	stderr := &cappedBuffer{limit: r.MaxOutput}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: %w", ctxErr, err)
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("run %s: %w", name, err)
	}
	if stdout.truncated {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w (%d bytes)", ErrOutputTruncated, r.MaxOutput)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// cappedBuffer keeps the first limit bytes and silently drops the rest so the
// child never blocks on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
