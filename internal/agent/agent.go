// Package agent runs the orchestration loop: decide, dispatch, record,
// repeat. Iterations are strictly sequential on the calling goroutine. No
// failure below construction ever escapes Run; per-action and per-iteration
// failures are isolated, logged, and recorded to memory.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/coder"
	"github.com/jeanpaul/autopilot/internal/decision"
	"github.com/jeanpaul/autopilot/internal/events"
	"github.com/jeanpaul/autopilot/internal/executor"
	"github.com/jeanpaul/autopilot/internal/goals"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/metrics"
	"github.com/jeanpaul/autopilot/internal/reflect"
	"github.com/jeanpaul/autopilot/internal/research"
	"github.com/jeanpaul/autopilot/internal/safety"
)

// Collaborator seams. The loop depends on behavior, not on the concrete
// packages, so tests substitute fakes per-test.
type Decider interface {
	Decide(ctx context.Context, contextStr string, recentMemory, activeGoals []string, metadata map[string]any) decision.Decision
}

type Coder interface {
	Generate(ctx context.Context, spec, language string) (string, error)
	Refactor(ctx context.Context, code, instruction string) (coder.RefactorResult, error)
	Stats() coder.Stats
}

type Executor interface {
	Execute(ctx context.Context, code, language string, dryRun bool) executor.Result
	Stats() executor.Stats
}

type Researcher interface {
	Search(ctx context.Context, query string) (string, error)
	Stats() research.Stats
}

type Reflector interface {
	Analyze(ctx context.Context, focus string) (string, error)
	Stats() reflect.Stats
}

type Agent struct {
	decider    Decider
	coder      Coder
	executor   Executor
	researcher Researcher
	reflector  Reflector

	goals  *goals.Store
	mem    *memory.Log
	filter *safety.Filter
	bus    *events.Bus
	cache  *cache.Cache
	met    *metrics.Collector

	language   string
	reportPath string
	log        *logrus.Entry
}

type Options struct {
	Decider    Decider
	Coder      Coder
	Executor   Executor
	Researcher Researcher
	Reflector  Reflector
	Goals      *goals.Store
	Memory     *memory.Log
	Filter     *safety.Filter
	Bus        *events.Bus
	Cache      *cache.Cache
	Metrics    *metrics.Collector
	Language   string
	ReportPath string
	Logger     *logrus.Logger
}

func New(opts Options) *Agent {
	language := opts.Language
	if language == "" {
		language = "python"
	}
	return &Agent{
		decider:    opts.Decider,
		coder:      opts.Coder,
		executor:   opts.Executor,
		researcher: opts.Researcher,
		reflector:  opts.Reflector,
		goals:      opts.Goals,
		mem:        opts.Memory,
		filter:     opts.Filter,
		bus:        opts.Bus,
		cache:      opts.Cache,
		met:        opts.Metrics,
		language:   language,
		reportPath: opts.ReportPath,
		log:        opts.Logger.WithField("component", "agent"),
	}
}

// Run executes iterations sequentially and finishes by writing the report
// artifact. autoMode enables real code execution; otherwise generated code
// is only dry-run. A failed iteration never terminates the run.
func (a *Agent) Run(ctx context.Context, iterations int, autoMode bool) Report {
	a.log.WithFields(logrus.Fields{"iterations": iterations, "auto": autoMode}).Info("run started")

	for i := 1; i <= iterations; i++ {
		if err := a.safeIteration(ctx, i, iterations, autoMode); err != nil {
			a.log.WithError(err).WithField("iteration", i).Error("iteration failed")
			a.mem.Add("error", fmt.Sprintf("iteration %d: %v", i, err), map[string]any{"iteration": i})
			a.bus.Publish(events.NewEvent(events.ErrorOccurred, map[string]any{
				"iteration": i,
				"error":     err.Error(),
			}))
		}
		a.met.Inc("iterations")
	}

	report := a.buildReport(iterations)
	a.writeReport(report)
	a.log.WithField("run_id", report.RunID).Info("run finished")
	return report
}

// safeIteration converts a panicking iteration into an error so the loop
// can move on.
func (a *Agent) safeIteration(ctx context.Context, i, total int, autoMode bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	a.runIteration(ctx, i, total, autoMode)
	return nil
}

func (a *Agent) runIteration(ctx context.Context, i, total int, autoMode bool) {
	a.bus.Publish(events.NewEvent(events.IterationStarted, map[string]any{"iteration": i}))
	started := time.Now()

	active := a.goals.Active()
	contextStr := fmt.Sprintf("Iteration %d of %d\nActive goals: %d\nTimestamp: %s",
		i, total, len(active), time.Now().UTC().Format(time.RFC3339))

	d := a.decider.Decide(ctx, contextStr, a.mem.Recent(10), active, map[string]any{"iteration": i})
	a.mem.Add("decision", d.Analysis, map[string]any{
		"iteration":   i,
		"action_type": string(d.ActionType),
		"confidence":  d.Confidence,
	})

	a.dispatch(ctx, d, autoMode)

	for _, text := range d.GoalsUpdate {
		a.goals.Add(text, goals.PriorityMedium)
	}

	a.met.Record("iteration_seconds", time.Since(started).Seconds())
	a.bus.Publish(events.NewEvent(events.IterationCompleted, map[string]any{
		"iteration":   i,
		"action_type": string(d.ActionType),
	}))
}

// dispatch routes the decision to exactly one handler category. Error and
// unknown decisions dispatch nothing.
func (a *Agent) dispatch(ctx context.Context, d decision.Decision, autoMode bool) {
	var handler func(ctx context.Context, action string, autoMode bool) error
	switch d.ActionType {
	case decision.ActionCodeGeneration:
		handler = a.handleCodeGeneration
	case decision.ActionCodeRefactor:
		handler = a.handleCodeRefactor
	case decision.ActionResearch:
		handler = a.handleResearch
	case decision.ActionReflection:
		handler = a.handleReflection
	case decision.ActionGoalUpdate:
		handler = a.handleGoalUpdate
	default:
		a.log.WithField("action_type", string(d.ActionType)).Debug("no dispatch")
		return
	}

	for _, action := range d.Actions {
		if err := a.safeAction(ctx, handler, action, autoMode); err != nil {
			a.log.WithError(err).WithField("action", action).Warn("action failed")
			a.mem.Add("error", fmt.Sprintf("action %q: %v", action, err), nil)
			a.met.Inc("action_failures")
		}
	}
}

func (a *Agent) safeAction(ctx context.Context, handler func(context.Context, string, bool) error, action string, autoMode bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, action, autoMode)
}

func (a *Agent) handleCodeGeneration(ctx context.Context, action string, autoMode bool) error {
	code, err := a.coder.Generate(ctx, action, a.language)
	if err != nil {
		return err
	}

	if !a.filter.CheckCodeSafety(code) {
		a.mem.Add("code_generated", code, map[string]any{"spec": action, "blocked": true})
		a.log.Warn("generated code blocked by safety filter")
		return nil
	}

	result := a.executor.Execute(ctx, code, a.language, !autoMode)
	a.mem.Add("code_generated", code, map[string]any{
		"spec":    action,
		"success": result.Success,
		"dry_run": result.DryRun,
	})
	a.bus.Publish(events.NewEvent(events.CodeGenerated, map[string]any{"spec": action}))
	return nil
}

func (a *Agent) handleCodeRefactor(ctx context.Context, action string, autoMode bool) error {
	base := a.latestGeneratedCode()
	if base == "" {
		// Nothing to refactor yet; treat the instruction as a fresh spec
		return a.handleCodeGeneration(ctx, action, autoMode)
	}

	res, err := a.coder.Refactor(ctx, base, action)
	if err != nil {
		return err
	}
	a.mem.Add("code_refactored", res.Code, map[string]any{
		"instruction": action,
		"diff":        res.Diff,
	})
	a.bus.Publish(events.NewEvent(events.CodeRefactored, map[string]any{"instruction": action}))
	return nil
}

func (a *Agent) handleResearch(ctx context.Context, action string, _ bool) error {
	findings, err := a.researcher.Search(ctx, action)
	if err != nil {
		return err
	}
	a.mem.Add("research", findings, map[string]any{"query": action})
	a.bus.Publish(events.NewEvent(events.ResearchDone, map[string]any{"query": action}))
	return nil
}

func (a *Agent) handleReflection(ctx context.Context, action string, _ bool) error {
	analysis, err := a.reflector.Analyze(ctx, action)
	if err != nil {
		return err
	}
	a.mem.Add("reflection", analysis, map[string]any{"focus": action})
	a.bus.Publish(events.NewEvent(events.ReflectionDone, map[string]any{"focus": action}))
	return nil
}

func (a *Agent) handleGoalUpdate(_ context.Context, action string, _ bool) error {
	a.goals.Add(action, goals.PriorityMedium)
	return nil
}

func (a *Agent) latestGeneratedCode() string {
	generated := a.mem.ByType("code_generated")
	if len(generated) == 0 {
		return ""
	}
	return generated[len(generated)-1].Content
}
