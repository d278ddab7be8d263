// Package safety implements the advisory permission filter that gates
// generated artifacts before the loop acts on them. It classifies text, it
// does not sandbox anything.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// dangerousPatterns is scanned in order; the first match short-circuits.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)__import__`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)exec\(`),
	regexp.MustCompile(`(?i)compile\(`),
	regexp.MustCompile(`(?i)os\.system`),
	regexp.MustCompile(`(?i)subprocess\.call`),
	regexp.MustCompile(`(?i)open\(["']`),
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)del\s+`),
}

var restrictedPrefixes = []string{
	"/etc", "/sys", "/proc", "/root",
	`C:\Windows\System32`, `C:\Windows\drivers`,
}

// deniedModules are import names the generated (Python) code may not load.
var deniedModules = []string{"os", "subprocess", "ctypes", "__main__"}

type Filter struct {
	mu              sync.Mutex
	enabled         bool
	blockDangerous  bool
	restrictedGlobs []string
	blocked         int
	allowed         int
	warnings        []string
	log             *logrus.Entry
}

// Stats reports the filter's decision counts for the run report.
type Stats struct {
	Blocked        int      `json:"blocked"`
	Allowed        int      `json:"allowed"`
	Total          int      `json:"total"`
	BlockRate      string   `json:"block_rate"`
	RecentWarnings []string `json:"recent_warnings"`
}

// New creates a filter. enabled=false bypasses all code scanning;
// blockDangerous controls whether a pattern match is actually refused.
// restrictedGlobs extend the built-in restricted path prefixes with
// doublestar patterns (e.g. "**/.ssh/**").
func New(enabled, blockDangerous bool, restrictedGlobs []string, log *logrus.Logger) *Filter {
	return &Filter{
		enabled:         enabled,
		blockDangerous:  blockDangerous,
		restrictedGlobs: restrictedGlobs,
		log:             log.WithField("component", "safety"),
	}
}

// CheckCodeSafety reports whether code may be acted on. With safety mode off
// it always returns true without scanning. On a pattern match it logs a
// warning, counts the hit as blocked, and returns !blockDangerous — so with
// blockDangerous=false a match is counted as blocked yet still permitted.
// That asymmetry is inherited behavior; keep it until the contract changes.
func (f *Filter) CheckCodeSafety(code string) bool {
	if !f.enabled {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(code) {
			warning := "dangerous pattern detected: " + pattern.String()
			f.log.Warn(warning)
			f.warnings = append(f.warnings, warning)
			f.blocked++
			return !f.blockDangerous
		}
	}

	f.allowed++
	return true
}

// CheckFileAccess reports whether path may be touched. Paths under a
// restricted prefix or matching a restricted glob are refused.
func (f *Filter) CheckFileAccess(path string) bool {
	for _, prefix := range restrictedPrefixes {
		if strings.HasPrefix(path, prefix) {
			f.warn("restricted path: " + path)
			return false
		}
	}
	for _, glob := range f.restrictedGlobs {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			f.warn("path matches restricted pattern " + glob + ": " + path)
			return false
		}
	}
	return true
}

// CheckImportSafety reports whether the named module may be imported by
// generated code.
func (f *Filter) CheckImportSafety(module string) bool {
	for _, denied := range deniedModules {
		if module == denied {
			f.warn("dangerous module import: " + module)
			return false
		}
	}
	return true
}

func (f *Filter) warn(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log.Warn(msg)
	f.warnings = append(f.warnings, msg)
}

func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := f.blocked + f.allowed
	rate := "0%"
	if total > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(f.blocked)/float64(total)*100)
	}

	recent := f.warnings
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	out := make([]string, len(recent))
	copy(out, recent)

	return Stats{
		Blocked:        f.blocked,
		Allowed:        f.allowed,
		Total:          total,
		BlockRate:      rate,
		RecentWarnings: out,
	}
}
