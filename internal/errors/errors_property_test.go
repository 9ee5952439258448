//go:build property

package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestErrorCollectorProperties validates problem collection properties
func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent problem addition is thread-safe", prop.ForAll(
		func(goroutineCount int, problemsPerGoroutine int) bool {
			collector := NewErrorCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutineCount; g++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for p := 0; p < problemsPerGoroutine; p++ {
						collector.Add(ProblemFromError(
							fmt.Sprintf("tmpl_%d_%d", id, p),
							"",
							NewReferenceError(ErrCodeUndefinedVariable, "undefined"),
						))
					}
				}(g)
			}
			wg.Wait()

			return collector.Count() == goroutineCount*problemsPerGoroutine &&
				collector.CountByType()["reference"] == goroutineCount*problemsPerGoroutine
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 50),
	))

	properties.Property("problems keep insertion order", prop.ForAll(
		func(ids []string) bool {
			collector := NewErrorCollector()
			for _, id := range ids {
				collector.Add(TemplateProblem{Template: id, Severity: ErrorSeverityError})
			}

			problems := collector.GetProblems()
			if len(problems) != len(ids) {
				return false
			}
			for i := range ids {
				if problems[i].Template != ids[i] {
					return false
				}
				if i > 0 && problems[i].Timestamp.Before(problems[i-1].Timestamp) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("fill error message always carries code and message", prop.ForAll(
		func(code, message, tmpl string) bool {
			err := NewStructuralError(code, message).WithTemplate(tmpl)
			s := err.Error()
			return strings.Contains(s, "["+code+"]") && strings.Contains(s, message) && strings.Contains(s, "template:"+tmpl)
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

