package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/autopilot/internal/logging"
)

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a cron spec", logging.Discard())
	assert.Error(t, err)
}

func TestNewAcceptsDescriptors(t *testing.T) {
	for _, spec := range []string{"@every 1h", "*/5 * * * *", "@daily"} {
		_, err := New(spec, logging.Discard())
		assert.NoError(t, err, spec)
	}
}

func TestFireCoalescesPendingSignals(t *testing.T) {
	tr, err := New("@every 1h", logging.Discard())
	require.NoError(t, err)

	tr.fire()
	tr.fire()
	tr.fire()

	// Only one signal is pending
	select {
	case <-tr.C():
	default:
		t.Fatal("expected a pending run signal")
	}
	select {
	case <-tr.C():
		t.Fatal("expected ticks to coalesce into a single signal")
	default:
	}
}
