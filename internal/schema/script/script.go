// Package script implements the scripting hook of spec.md §4.3.1 step 4
// ("a script may replace the object"), grounded on the teacher's
// query_understanding/expression/evaluator.go use of expr-lang/expr to
// evaluate a user-supplied expression against a data map.
package script

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/puer99miss/Xapiand/internal/value"
)

// Run evaluates expression against obj (decoded to a plain Go map so
// expr-lang can walk it) and, if the expression yields a map, returns
// it re-encoded as a Value. A non-map result is treated as "the script
// left the document unchanged" per spec.md's "if it does" qualifier on
// step 4: only a replacement object triggers a rebuild of the field
// vector.
func Run(expression string, obj value.Value) (value.Value, bool, error) {
	env, err := toGoMap(obj)
	if err != nil {
		return obj, false, fmt.Errorf("script: converting document for evaluation: %w", err)
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return obj, false, fmt.Errorf("script: compiling %q: %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return obj, false, fmt.Errorf("script: evaluating %q: %w", expression, err)
	}
	m, ok := out.(map[string]interface{})
	if !ok {
		return obj, false, nil
	}
	replaced, err := fromGoMap(m)
	if err != nil {
		return obj, false, fmt.Errorf("script: converting script result: %w", err)
	}
	return replaced, true, nil
}

func toGoMap(v value.Value) (map[string]interface{}, error) {
	b, err := value.ToJSON(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromGoMap(m map[string]interface{}) (value.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return value.Nil(), err
	}
	return value.FromJSON(b)
}
