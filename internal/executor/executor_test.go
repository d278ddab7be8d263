package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeanpaul/autopilot/internal/logging"
)

func newTestExecutor(enabled bool) *Executor {
	return New(enabled, 5*time.Second, logging.Discard())
}

func TestDryRunSucceedsWithoutRunning(t *testing.T) {
	e := newTestExecutor(true)

	res := e.Execute(context.Background(), `exit 1`, "sh", true)
	assert.True(t, res.Success)
	assert.True(t, res.DryRun)
	assert.Empty(t, res.Output)
}

func TestDisabledExecutorActsAsDryRun(t *testing.T) {
	e := newTestExecutor(false)

	res := e.Execute(context.Background(), `exit 1`, "sh", false)
	assert.True(t, res.Success)
	assert.True(t, res.DryRun)
}

func TestExecuteCapturesOutput(t *testing.T) {
	e := newTestExecutor(true)

	res := e.Execute(context.Background(), `echo hello`, "sh", false)
	assert.True(t, res.Success)
	assert.Equal(t, "hello\n", res.Output)
	assert.Equal(t, 0, res.ReturnCode)
}

func TestExecuteReportsFailure(t *testing.T) {
	e := newTestExecutor(true)

	res := e.Execute(context.Background(), "echo oops >&2\nexit 3", "sh", false)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ReturnCode)
	assert.Contains(t, res.Stderr, "oops")
}

func TestExecuteTimesOut(t *testing.T) {
	e := New(true, 100*time.Millisecond, logging.Discard())

	res := e.Execute(context.Background(), `sleep 5`, "sh", false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestUnsupportedLanguage(t *testing.T) {
	e := newTestExecutor(true)

	res := e.Execute(context.Background(), "whatever", "cobol", false)
	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "unsupported language")
}

func TestHistoryAndStats(t *testing.T) {
	e := newTestExecutor(true)
	e.Execute(context.Background(), `echo ok`, "sh", false)
	e.Execute(context.Background(), `exit 1`, "sh", false)

	assert.Len(t, e.History(), 2)
	st := e.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Successful)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, "50.0%", st.SuccessRate)
}
