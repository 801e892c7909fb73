package split

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner abstracts the pdftotext/pdftoppm/tesseract invocations so tests can
// script them instead of shelling out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execRunner shells out for real. A failed command comes back as an error
// carrying the command name and a stderr snippet, so callers get the poppler
// or tesseract diagnostics without digging through logs.
type execRunner struct {
	log *slog.Logger
}

func newExecRunner(log *slog.Logger) execRunner {
	if log == nil {
		log = slog.Default()
	}
	return execRunner{log: log}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		r.log.Error("command failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err)
		detail := truncate(strings.TrimSpace(stderr.String()), 512)
		if detail == "" {
			return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %w (%s)", name, err, detail)
	}

	r.log.Debug("command finished",
		"cmd", name,
		"args", strings.Join(args, " "),
		"elapsed_ms", elapsed.Milliseconds(),
		"stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
