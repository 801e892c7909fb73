package split

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesStdout(t *testing.T) {
	r := newExecRunner(nil)
	out, _, err := r.Run(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestExecRunnerSurfacesStderrInError(t *testing.T) {
	r := newExecRunner(nil)
	_, stderr, err := r.Run(context.Background(), "sh", "-c", "echo 'Syntax Error: broken PDF' >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh")
	assert.Contains(t, err.Error(), "Syntax Error: broken PDF")
	assert.Contains(t, string(stderr), "Syntax Error: broken PDF")
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := truncate(long, 512)
	assert.Len(t, got, 512+len("...(truncated)"))
	assert.Equal(t, "short", truncate("short", 512))
}
