package agent

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/coder"
	"github.com/jeanpaul/autopilot/internal/executor"
	"github.com/jeanpaul/autopilot/internal/goals"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/metrics"
	"github.com/jeanpaul/autopilot/internal/reflect"
	"github.com/jeanpaul/autopilot/internal/research"
	"github.com/jeanpaul/autopilot/internal/safety"
)

// Report is the end-of-run artifact: one snapshot of every component's
// counters.
type Report struct {
	RunID           string           `json:"run_id"`
	Timestamp       string           `json:"timestamp"`
	TotalIterations int              `json:"total_iterations"`
	Goals           goals.Stats      `json:"goals"`
	Memory          memory.Stats     `json:"memory"`
	Coder           coder.Stats      `json:"coder"`
	Executor        executor.Stats   `json:"executor"`
	Research        research.Stats   `json:"research"`
	Reflection      reflect.Stats    `json:"reflection"`
	Safety          safety.Stats     `json:"safety"`
	Cache           cache.Stats      `json:"cache"`
	Metrics         metrics.Snapshot `json:"metrics"`
}

func (a *Agent) buildReport(iterations int) Report {
	return Report{
		RunID:           uuid.NewString(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		TotalIterations: iterations,
		Goals:           a.goals.Stats(),
		Memory:          a.mem.Stats(),
		Coder:           a.coder.Stats(),
		Executor:        a.executor.Stats(),
		Research:        a.researcher.Stats(),
		Reflection:      a.reflector.Stats(),
		Safety:          a.filter.Stats(),
		Cache:           a.cache.Stats(),
		Metrics:         a.met.Snapshot(),
	}
}

// writeReport persists the artifact. Failure here never fails the run.
func (a *Agent) writeReport(r Report) {
	if a.reportPath == "" {
		return
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		a.log.WithError(err).Error("failed to encode report")
		return
	}
	if err := os.WriteFile(a.reportPath, data, 0644); err != nil {
		a.log.WithError(err).Error("failed to write report")
	}
}
