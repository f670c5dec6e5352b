package builder

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEvaluator evaluates script operands as CEL expressions. Compiled
// programs are cached by expression text.
//
// The environment exposes:
//   - fields: map of form field values by field id
//   - login, recordId: int
//   - languageCode, globalSearch: string
//   - roles: list of role ids
//   - formChanged: bool
type CELEvaluator struct {
	env      *cel.Env
	prgCache sync.Map
}

// NewCELEvaluator creates an evaluator with the script environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("login", cel.IntType),
		cel.Variable("recordId", cel.IntType),
		cel.Variable("languageCode", cel.StringType),
		cel.Variable("globalSearch", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("formChanged", cel.BoolType),
	)
	if err != nil {
		return nil, err
	}
	return &CELEvaluator{env: env}, nil
}

// Evaluate implements Evaluator.
func (e *CELEvaluator) Evaluate(text string, vars map[string]any) (any, error) {
	var prg cel.Program
	if val, ok := e.prgCache.Load(text); ok {
		prg = val.(cel.Program)
	} else {
		ast, issues := e.env.Compile(text)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile error: %w", issues.Err())
		}

		p, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program construction error: %w", err)
		}
		prg = p
		e.prgCache.Store(text, prg)
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("eval error: %w", err)
	}

	return out.Value(), nil
}
