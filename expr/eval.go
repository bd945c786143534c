package expr

import "fmt"

// Context is the evaluation-time data source for a parsed expression. The
// engine package supplies the concrete implementation over a
// WorkflowContext; expr stays ignorant of engine's run-state types.
type Context interface {
	// Input returns a declared workflow input's value.
	Input(name string) (any, bool)
	// StepOutput returns a completed step's output value.
	StepOutput(name string) (any, bool)
	// Item returns the current loop iteration's item, if any.
	Item() (any, bool)
	// Index returns the current loop iteration's index, if any.
	Index() (any, bool)
}

// eval walks n against ctx, returning a raw Go value (string, int64, float64,
// bool, nil, []any, or map[string]any).
func eval(n Node, ctx Context) (any, error) {
	switch v := n.(type) {
	case Literal:
		return v.Value, nil
	case Ref:
		return evalRef(v, ctx)
	case Not:
		x, err := eval(v.X, ctx)
		if err != nil {
			return nil, err
		}
		return !truthy(x), nil
	case BinOp:
		return evalBinOp(v, ctx)
	case Ternary:
		cond, err := eval(v.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return eval(v.Then, ctx)
		}
		return eval(v.Else, ctx)
	case ListLit:
		out := make([]any, 0, len(v.Items))
		for _, item := range v.Items {
			val, err := eval(item, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case MapLit:
		out := make(map[string]any, len(v.Pairs))
		for _, kv := range v.Pairs {
			val, err := eval(kv.Value, ctx)
			if err != nil {
				return nil, err
			}
			out[kv.Key] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expr: unhandled node type %T", n)
	}
}

func evalBinOp(b BinOp, ctx Context) (any, error) {
	switch b.Op {
	case "and":
		l, err := eval(b.L, ctx)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return l, nil
		}
		return eval(b.R, ctx)
	case "or":
		l, err := eval(b.L, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return l, nil
		}
		return eval(b.R, ctx)
	case "==", "!=":
		l, err := eval(b.L, ctx)
		if err != nil {
			return nil, err
		}
		r, err := eval(b.R, ctx)
		if err != nil {
			return nil, err
		}
		eq := equalValues(l, r)
		if b.Op == "!=" {
			return !eq, nil
		}
		return eq, nil
	default:
		return nil, fmt.Errorf("expr: unknown operator %q", b.Op)
	}
}

func evalRef(r Ref, ctx Context) (any, error) {
	var cur any
	switch r.Root {
	case "inputs":
		// the first accessor names the input; without one, inputs itself
		// has no meaning as a bare reference.
		if len(r.Accessors) == 0 {
			return nil, &ParseError{Expected: "inputs.<name>"}
		}
		name := r.Accessors[0].Key
		v, ok := ctx.Input(name)
		if !ok {
			return nil, &MissingInput{Name: name}
		}
		cur = v
		r.Accessors = r.Accessors[1:]
	case "steps":
		v, ok := ctx.StepOutput(r.StepName)
		if !ok {
			return nil, nil
		}
		cur = v
	case "item":
		v, ok := ctx.Item()
		if !ok {
			return nil, &IterationScopeError{}
		}
		cur = v
	case "index":
		v, ok := ctx.Index()
		if !ok {
			return nil, &IterationScopeError{}
		}
		cur = v
	default:
		return nil, fmt.Errorf("expr: unknown reference root %q", r.Root)
	}

	for _, acc := range r.Accessors {
		var err error
		cur, err = applyAccessor(cur, acc)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func applyAccessor(cur any, acc Accessor) (any, error) {
	if cur == nil {
		return nil, nil
	}
	if acc.ByIndex {
		list, ok := cur.([]any)
		if !ok {
			return nil, &TypeMismatch{Op: "index", Actual: cur}
		}
		if acc.Index < 0 || acc.Index >= len(list) {
			return nil, nil
		}
		return list[acc.Index], nil
	}
	switch m := cur.(type) {
	case map[string]any:
		v, ok := m[acc.Key]
		if !ok {
			return nil, nil
		}
		return v, nil
	default:
		return nil, &TypeMismatch{Op: "field access ." + acc.Key, Actual: cur}
	}
}

// Truthy implements the spec's truthiness rule: null, false, 0, 0.0, "", and
// empty lists/maps are false; everything else is true. Exported so callers
// evaluating a predicate string can coerce its raw result without
// duplicating the rule.
func Truthy(v any) bool { return truthy(v) }

// truthy implements the spec's truthiness rule: null, false, 0, 0.0, "", and
// empty lists/maps are false; everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) != 0
	case map[string]any:
		return len(x) != 0
	default:
		return true
	}
}

func equalValues(a, b any) bool {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		return an == bn
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
