package expr

import "fmt"

// ParseError reports a malformed `${{ ... }}` expression, found while
// splitting a template into literal text and expression segments, or while
// recursive-descent parsing the tokens of one expression body.
type ParseError struct {
	Offset   int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expr: parse error at offset %d: expected %s", e.Offset, e.Expected)
}

// MissingInput reports that an `inputs.X` reference named an input that does
// not exist in the evaluation context.
type MissingInput struct {
	Name string
}

func (e *MissingInput) Error() string {
	return fmt.Sprintf("expr: missing input %q", e.Name)
}

// IterationScopeError reports that `item` or `index` was referenced outside
// a loop body's iteration frame.
type IterationScopeError struct{}

func (e *IterationScopeError) Error() string {
	return "expr: item/index referenced outside a loop iteration"
}

// TypeMismatch reports an operator applied to a value of the wrong type in a
// strict-typed position (e.g. `not` is not itself strict per spec.md §4.2,
// but callers in strict-boolean positions such as `when`/branch predicates
// use this to report a non-boolean result).
type TypeMismatch struct {
	Op     string
	Actual any
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("expr: %s: unexpected type %T", e.Op, e.Actual)
}
