package internalerr

import (
	"fmt"
	"sort"
)

// Severity is one of FATAL, ERROR, WARNING.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue is a per-record problem recorded for the manifest.
type Issue struct {
	Severity Severity          `json:"severity"`
	Phase    string            `json:"phase"`
	Type     string            `json:"type"`
	LineUID  string            `json:"line_uid,omitempty"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
}

// With returns a copy of the issue with one context key set.
func (i Issue) With(key, value string) Issue {
	ctx := make(map[string]string, len(i.Context)+1)
	for k, v := range i.Context {
		ctx[k] = v
	}
	ctx[key] = value
	i.Context = ctx
	return i
}

// Issues is the worker-local issue list. Workers never share one.
type Issues []Issue

// Warn appends a WARNING.
func (is *Issues) Warn(phase, errType, lineUID, format string, args ...any) {
	*is = append(*is, Issue{
		Severity: SeverityWarning,
		Phase:    phase,
		Type:     errType,
		LineUID:  lineUID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Error appends an ERROR.
func (is *Issues) Error(phase, errType, lineUID, format string, args ...any) {
	*is = append(*is, Issue{
		Severity: SeverityError,
		Phase:    phase,
		Type:     errType,
		LineUID:  lineUID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Add appends prepared issues.
func (is *Issues) Add(issues ...Issue) {
	*is = append(*is, issues...)
}

// Count returns the number of issues with the given severity.
func (is Issues) Count(sev Severity) int {
	n := 0
	for _, i := range is {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// Config controls error escalation.
type Config struct {
	// MaxRecordErrors aborts the phase once the ERROR count exceeds it.
	// Negative disables the threshold.
	MaxRecordErrors int  `json:"max_record_errors" yaml:"max_record_errors" toml:"max_record_errors"`
	StrictMode      bool `json:"strict_mode" yaml:"strict_mode" toml:"strict_mode"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{MaxRecordErrors: 100}
}

// Summary is the per-phase error digest written to the manifest.
type Summary struct {
	Errors       int            `json:"errors"`
	Warnings     int            `json:"warnings"`
	ErrorTypes   map[string]int `json:"error_types,omitempty"`
	WarningTypes map[string]int `json:"warning_types,omitempty"`
}

// Collector accumulates issues for one phase. It is owned by the
// orchestrator goroutine; workers hand it their Issues after they finish.
type Collector struct {
	phase  string
	cfg    Config
	issues []Issue
	sum    Summary
}

// NewCollector creates a collector for a phase.
func NewCollector(phase string, cfg Config) *Collector {
	return &Collector{
		phase: phase,
		cfg:   cfg,
		sum: Summary{
			ErrorTypes:   make(map[string]int),
			WarningTypes: make(map[string]int),
		},
	}
}

// Add records issues. It returns a *FatalError when an issue is FATAL or
// when the ERROR threshold is exceeded.
func (c *Collector) Add(issues ...Issue) error {
	for _, iss := range issues {
		if iss.Phase == "" {
			iss.Phase = c.phase
		}
		if iss.Severity == SeverityWarning && c.cfg.StrictMode {
			iss.Severity = SeverityError
			iss = iss.With("escalated", "strict_mode")
		}
		c.issues = append(c.issues, iss)

		switch iss.Severity {
		case SeverityFatal:
			return &FatalError{Phase: iss.Phase, Type: iss.Type, LineUID: iss.LineUID, Message: iss.Message}
		case SeverityError:
			c.sum.Errors++
			c.sum.ErrorTypes[iss.Type]++
			if c.cfg.MaxRecordErrors >= 0 && c.sum.Errors > c.cfg.MaxRecordErrors {
				return NewFatal(c.phase, "ERROR_THRESHOLD_EXCEEDED",
					fmt.Sprintf("%d record errors exceed max_record_errors=%d", c.sum.Errors, c.cfg.MaxRecordErrors))
			}
		case SeverityWarning:
			c.sum.Warnings++
			c.sum.WarningTypes[iss.Type]++
		}
	}
	return nil
}

// Issues returns recorded issues sorted by line, type and message.
func (c *Collector) Issues() []Issue {
	out := append([]Issue(nil), c.issues...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LineUID != out[j].LineUID {
			return out[i].LineUID < out[j].LineUID
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Summary returns the counts collected so far.
func (c *Collector) Summary() Summary {
	s := Summary{Errors: c.sum.Errors, Warnings: c.sum.Warnings}
	if len(c.sum.ErrorTypes) > 0 {
		s.ErrorTypes = make(map[string]int, len(c.sum.ErrorTypes))
		for k, v := range c.sum.ErrorTypes {
			s.ErrorTypes[k] = v
		}
	}
	if len(c.sum.WarningTypes) > 0 {
		s.WarningTypes = make(map[string]int, len(c.sum.WarningTypes))
		for k, v := range c.sum.WarningTypes {
			s.WarningTypes[k] = v
		}
	}
	return s
}
