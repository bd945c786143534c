package engine

import (
	"fmt"
	"strconv"

	"github.com/maverickhq/maverick/schema"
)

// coerceInput converts a raw input value (as supplied by a CLI flag or
// decoded from JSON) to decl's declared type, one-way, per the workflow's
// declared input schema. Values that already hold the declared Go type pass
// through unchanged; everything else attempts the usual string/number/bool
// conversions a human-supplied value needs (e.g. `"42"` -> int64,
// JSON-decoded `float64` -> int64 for a whole number).
func coerceInput(decl schema.InputDecl, v any) (any, error) {
	switch decl.Type {
	case schema.InputString:
		return coerceString(v)
	case schema.InputInteger:
		return coerceInteger(v)
	case schema.InputFloat:
		return coerceFloat(v)
	case schema.InputBoolean:
		return coerceBoolean(v)
	case schema.InputObject:
		if _, ok := v.(map[string]any); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected an object, got %T", v)
	case schema.InputArray:
		if _, ok := v.([]any); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected an array, got %T", v)
	default:
		return v, nil
	}
}

func coerceString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}

func coerceInteger(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("expected an integer, got non-integral float %v", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected an integer, got %T", v)
	}
}

func coerceFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a float, got %q", x)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected a float, got %T", v)
	}
}

func coerceBoolean(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", x)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	}
}
