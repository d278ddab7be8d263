package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/coder"
	"github.com/jeanpaul/autopilot/internal/decision"
	"github.com/jeanpaul/autopilot/internal/events"
	"github.com/jeanpaul/autopilot/internal/executor"
	"github.com/jeanpaul/autopilot/internal/goals"
	"github.com/jeanpaul/autopilot/internal/logging"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/metrics"
	"github.com/jeanpaul/autopilot/internal/reflect"
	"github.com/jeanpaul/autopilot/internal/research"
	"github.com/jeanpaul/autopilot/internal/safety"
)

type fakeDecider struct {
	script []decision.Decision
	calls  int
}

func (f *fakeDecider) Decide(ctx context.Context, contextStr string, recentMemory, activeGoals []string, metadata map[string]any) decision.Decision {
	d := f.script[f.calls%len(f.script)]
	f.calls++
	return d
}

type fakeCoder struct {
	code      string
	generated int
}

func (f *fakeCoder) Generate(ctx context.Context, spec, language string) (string, error) {
	f.generated++
	return f.code, nil
}

func (f *fakeCoder) Refactor(ctx context.Context, code, instruction string) (coder.RefactorResult, error) {
	return coder.RefactorResult{Code: code + " // refactored", Diff: "+refactored"}, nil
}

func (f *fakeCoder) Stats() coder.Stats { return coder.Stats{Generated: f.generated} }

type fakeExecutor struct {
	executions []bool // dryRun flag per call
}

func (f *fakeExecutor) Execute(ctx context.Context, code, language string, dryRun bool) executor.Result {
	f.executions = append(f.executions, dryRun)
	return executor.Result{Success: true, DryRun: dryRun}
}

func (f *fakeExecutor) Stats() executor.Stats { return executor.Stats{Total: len(f.executions)} }

type fakeResearcher struct {
	panicOn int
	calls   int
}

func (f *fakeResearcher) Search(ctx context.Context, query string) (string, error) {
	f.calls++
	if f.calls == f.panicOn {
		panic("researcher exploded")
	}
	return "findings for " + query, nil
}

func (f *fakeResearcher) Stats() research.Stats { return research.Stats{Searches: f.calls} }

type fakeReflector struct{}

func (f *fakeReflector) Analyze(ctx context.Context, focus string) (string, error) {
	return "reflection on " + focus, nil
}

func (f *fakeReflector) Stats() reflect.Stats { return reflect.Stats{} }

type testHarness struct {
	agent      *Agent
	goals      *goals.Store
	mem        *memory.Log
	bus        *events.Bus
	coder      *fakeCoder
	executor   *fakeExecutor
	researcher *fakeResearcher
	reportPath string
}

func newHarness(t *testing.T, decider Decider) *testHarness {
	t.Helper()
	dir := t.TempDir()
	log := logging.Discard()
	h := &testHarness{
		goals:      goals.NewStore(filepath.Join(dir, "goals.json"), nil, log),
		mem:        memory.NewLog(filepath.Join(dir, "memory.json"), 1000, nil, log),
		bus:        events.NewBus(log),
		coder:      &fakeCoder{code: "print('hello')"},
		executor:   &fakeExecutor{},
		researcher: &fakeResearcher{},
		reportPath: filepath.Join(dir, "report.json"),
	}
	h.agent = New(Options{
		Decider:    decider,
		Coder:      h.coder,
		Executor:   h.executor,
		Researcher: h.researcher,
		Reflector:  &fakeReflector{},
		Goals:      h.goals,
		Memory:     h.mem,
		Filter:     safety.New(true, true, nil, log),
		Bus:        h.bus,
		Cache:      cache.New(true, 100, time.Hour, log),
		Metrics:    metrics.NewCollector(),
		ReportPath: h.reportPath,
		Logger:     log,
	})
	return h
}

func codeDecision(actions ...string) decision.Decision {
	return decision.Decision{
		Analysis:    "generate something",
		ActionType:  decision.ActionCodeGeneration,
		Actions:     actions,
		GoalsUpdate: []string{},
		Confidence:  0.8,
	}
}

func TestRunDispatchesCodeGeneration(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{codeDecision("a fizzbuzz")}})

	report := h.agent.Run(context.Background(), 1, false)

	assert.Equal(t, 1, h.coder.generated)
	// Not in auto mode, so execution is a dry run
	require.Len(t, h.executor.executions, 1)
	assert.True(t, h.executor.executions[0])

	generated := h.mem.ByType("code_generated")
	require.Len(t, generated, 1)
	assert.Equal(t, "print('hello')", generated[0].Content)
	assert.Equal(t, 1, report.Coder.Generated)
}

func TestAutoModeExecutesForReal(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{codeDecision("a fizzbuzz")}})

	h.agent.Run(context.Background(), 1, true)
	require.Len(t, h.executor.executions, 1)
	assert.False(t, h.executor.executions[0])
}

func TestUnsafeGeneratedCodeIsNotExecuted(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{codeDecision("cleanup script")}})
	h.coder.code = "os.system('rm -rf /')"

	h.agent.Run(context.Background(), 1, true)

	assert.Empty(t, h.executor.executions)
	generated := h.mem.ByType("code_generated")
	require.Len(t, generated, 1)
	assert.Equal(t, true, generated[0].Metadata["blocked"])
}

func TestGoalsUpdateAddsGoals(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{{
		Analysis:    "new priorities",
		ActionType:  decision.ActionReflection,
		Actions:     []string{},
		GoalsUpdate: []string{"learn from mistakes", "ship faster"},
		Confidence:  0.7,
	}}})

	h.agent.Run(context.Background(), 1, false)
	assert.Equal(t, []string{"learn from mistakes", "ship faster"}, h.goals.Active())
}

func TestGoalUpdateActionsBecomeGoals(t *testing.T) {
	// A goal_update decision adds through both its actions and its
	// goals_update list.
	h := newHarness(t, &fakeDecider{script: []decision.Decision{{
		Analysis:    "reprioritize",
		ActionType:  decision.ActionGoalUpdate,
		Actions:     []string{"write docs"},
		GoalsUpdate: []string{"write docs"},
		Confidence:  0.6,
	}}})

	h.agent.Run(context.Background(), 1, false)
	assert.Equal(t, []string{"write docs", "write docs"}, h.goals.Active())
}

func TestErrorAndUnknownDecisionsDispatchNothing(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{
		decision.ErrorDecision("oracle unreachable"),
		{ActionType: decision.ActionUnknown, Actions: []string{"mystery"}, GoalsUpdate: []string{}, Confidence: 0.5},
	}})

	h.agent.Run(context.Background(), 2, false)
	assert.Equal(t, 0, h.coder.generated)
	assert.Equal(t, 0, h.researcher.calls)
	assert.Empty(t, h.executor.executions)
}

func TestPerActionFailureIsIsolated(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{{
		Analysis:    "research two things",
		ActionType:  decision.ActionResearch,
		Actions:     []string{"first", "second", "third"},
		GoalsUpdate: []string{},
		Confidence:  0.8,
	}}})
	h.researcher.panicOn = 2

	h.agent.Run(context.Background(), 1, false)

	// All three actions attempted, the middle one recorded as an error
	assert.Equal(t, 3, h.researcher.calls)
	assert.Len(t, h.mem.ByType("research"), 2)
	errs := h.mem.ByType("error")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Content, "researcher exploded")
}

type panickingDecider struct {
	panicOn int
	calls   int
}

func (p *panickingDecider) Decide(ctx context.Context, contextStr string, recentMemory, activeGoals []string, metadata map[string]any) decision.Decision {
	p.calls++
	if p.calls == p.panicOn {
		panic("decider exploded")
	}
	return decision.Decision{
		Analysis: "ok", ActionType: decision.ActionReflection,
		Actions: []string{}, GoalsUpdate: []string{}, Confidence: 0.5,
	}
}

func TestFailedIterationDoesNotTerminateRun(t *testing.T) {
	h := newHarness(t, &panickingDecider{panicOn: 2})

	var errorEvents []events.Event
	h.bus.Subscribe(events.ErrorOccurred, func(ev events.Event) { errorEvents = append(errorEvents, ev) })

	report := h.agent.Run(context.Background(), 3, false)

	assert.Equal(t, 3, report.TotalIterations)
	errs := h.mem.ByType("error")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Content, "iteration 2")
	require.Len(t, errorEvents, 1)
	assert.Equal(t, 2, errorEvents[0].Data["iteration"])
}

func TestRefactorFallsBackToGenerationWithoutPriorCode(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{{
		Analysis:    "improve it",
		ActionType:  decision.ActionCodeRefactor,
		Actions:     []string{"make it faster"},
		GoalsUpdate: []string{},
		Confidence:  0.8,
	}}})

	h.agent.Run(context.Background(), 1, false)
	assert.Equal(t, 1, h.coder.generated)
	assert.Empty(t, h.mem.ByType("code_refactored"))
	assert.Len(t, h.mem.ByType("code_generated"), 1)
}

func TestRefactorUsesLatestGeneratedCode(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{
		codeDecision("a fizzbuzz"),
		{
			Analysis:   "improve it",
			ActionType: decision.ActionCodeRefactor,
			Actions:    []string{"make it faster"}, GoalsUpdate: []string{}, Confidence: 0.8,
		},
	}})

	h.agent.Run(context.Background(), 2, false)

	refactored := h.mem.ByType("code_refactored")
	require.Len(t, refactored, 1)
	assert.Equal(t, "print('hello') // refactored", refactored[0].Content)
	assert.Equal(t, "+refactored", refactored[0].Metadata["diff"])
}

func TestReportArtifactWritten(t *testing.T) {
	h := newHarness(t, &fakeDecider{script: []decision.Decision{codeDecision("a fizzbuzz")}})

	report := h.agent.Run(context.Background(), 2, false)

	data, err := os.ReadFile(h.reportPath)
	require.NoError(t, err)
	var onDisk Report
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, report.RunID, onDisk.RunID)
	assert.Equal(t, 2, onDisk.TotalIterations)
	assert.NotEmpty(t, onDisk.RunID)
	assert.Equal(t, 2, onDisk.Coder.Generated)
}
