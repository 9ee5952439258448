package errors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrorSeverity represents the severity of a problem
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TemplateProblem is one problem found while checking a template
type TemplateProblem struct {
	Template  string
	File      string
	Message   string
	Severity  ErrorSeverity
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (p *TemplateProblem) Error() string {
	if p.File != "" {
		return fmt.Sprintf("%s (%s): %s: %s", p.Template, p.File, p.Severity, p.Message)
	}
	return fmt.Sprintf("%s: %s: %s", p.Template, p.Severity, p.Message)
}

// Unwrap returns the error the problem was built from
func (p *TemplateProblem) Unwrap() error {
	return p.Err
}

// ProblemFromError builds a problem for template id from a render error
func ProblemFromError(id, file string, err error) TemplateProblem {
	severity := ErrorSeverityError
	if IsSecurityError(err) {
		severity = ErrorSeverityFatal
	}
	return TemplateProblem{
		Template: id,
		File:     file,
		Message:  err.Error(),
		Severity: severity,
		Err:      err,
	}
}

// ErrorCollector collects template problems and general errors
type ErrorCollector struct {
	problems []TemplateProblem
	errors   []error
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		problems: make([]TemplateProblem, 0),
		errors:   make([]error, 0),
	}
}

// Add adds a template problem to the collector
func (ec *ErrorCollector) Add(p TemplateProblem) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	p.Timestamp = time.Now()
	ec.problems = append(ec.problems, p)
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// GetProblems returns all collected template problems
func (ec *ErrorCollector) GetProblems() []TemplateProblem {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]TemplateProblem, len(ec.problems))
	copy(result, ec.problems)
	return result
}

// GetAllErrors returns all collected errors, problems first
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	allErrors := make([]error, 0, len(ec.problems)+len(ec.errors))
	for i := range ec.problems {
		p := ec.problems[i]
		allErrors = append(allErrors, &p)
	}
	allErrors = append(allErrors, ec.errors...)

	return allErrors
}

// HasErrors returns true if there are any problems of at least error
// severity or any general errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.errors) > 0 {
		return true
	}
	for _, p := range ec.problems {
		if p.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of collected problems and errors
func (ec *ErrorCollector) Count() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.problems) + len(ec.errors)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.problems = ec.problems[:0]
	ec.errors = ec.errors[:0]
}

// GetProblemsByTemplate returns problems for a specific template
func (ec *ErrorCollector) GetProblemsByTemplate(id string) []TemplateProblem {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []TemplateProblem
	for _, p := range ec.problems {
		if p.Template == id {
			out = append(out, p)
		}
	}
	return out
}

// CountByType groups collected problems by the FillError type in their
// chain. Problems without one are counted under "other".
func (ec *ErrorCollector) CountByType() map[string]int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	counts := make(map[string]int)
	for _, p := range ec.problems {
		t := string(TypeOf(p.Err))
		if t == "" {
			t = "other"
		}
		counts[t]++
	}
	return counts
}

// Templates returns the sorted ids of templates that have problems
func (ec *ErrorCollector) Templates() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range ec.problems {
		seen[p.Template] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
