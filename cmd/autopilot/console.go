package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeanpaul/autopilot/internal/agent"
	"github.com/jeanpaul/autopilot/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func printBanner(cfg *config.Config, iterations int, auto bool, spec string) {
	mode := "dry-run"
	if auto {
		mode = "auto"
	}
	lines := fmt.Sprintf("%s %s\n%s %s\n%s %d\n%s %s",
		labelStyle.Render("model:"), valueStyle.Render(cfg.Oracle.Model),
		labelStyle.Render("mode:"), valueStyle.Render(mode),
		labelStyle.Render("iterations:"), iterations,
		labelStyle.Render("schedule:"), valueStyle.Render(orDash(spec)),
	)
	fmt.Println(titleStyle.Render("autopilot " + version))
	fmt.Println(boxStyle.Render(lines))
}

func printSummary(r agent.Report) {
	md := fmt.Sprintf(`# Run %s

| | |
|---|---|
| Iterations | %d |
| Goals | %d active, %d completed, %d failed |
| Memory events | %d |
| Code generated | %d |
| Executions | %d (%s success) |
| Research | %d searches, %d cache hits |
| Reflections | %d |
| Safety | %d blocked, %d allowed |
`,
		r.RunID,
		r.TotalIterations,
		r.Goals.Active, r.Goals.Completed, r.Goals.Failed,
		r.Memory.TotalEvents,
		r.Coder.Generated,
		r.Executor.Total, r.Executor.SuccessRate,
		r.Research.Searches, r.Research.CacheHits,
		r.Reflection.Reflections,
		r.Safety.Blocked, r.Safety.Allowed,
	)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		fmt.Println(md)
		return
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Println(md)
		return
	}
	fmt.Print(out)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
