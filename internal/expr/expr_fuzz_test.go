package expr

import (
	"strings"
	"testing"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/value"
)

// FuzzEvaluate checks that arbitrary conditions either evaluate or fail with
// one of the engine's error kinds, and that banned characters always fail.
func FuzzEvaluate(f *testing.F) {
	f.Add("{{a}} == 1 && {{b}} == 2")
	f.Add("'x' === {{s}}")
	f.Add("{{n}}+1 > 3")
	f.Add("{{a}} > 1 == 2 || {{s}}")
	f.Add("&&||&&")
	f.Add("{{")
	f.Add("}} == {{")
	f.Add("'")
	f.Add("")

	ctx := value.Context{"a": 1, "b": 2, "s": "x", "n": 5}

	f.Fuzz(func(t *testing.T, cond string) {
		_, err := Evaluate(cond, ctx)
		if strings.ContainsAny(cond, BannedCharacters) {
			if !errors.IsGrammarError(err) {
				t.Fatalf("condition %q with banned character evaluated without grammar error: %v", cond, err)
			}
			return
		}
		if err != nil && !errors.IsGrammarError(err) && !errors.IsReferenceError(err) {
			t.Fatalf("unexpected error kind for %q: %v", cond, err)
		}
	})
}
