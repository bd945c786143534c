package schema

import "fmt"

// SchemaError reports a structurally invalid workflow document: a bad shape,
// wrong type, or an unknown field the strict decoder rejected.
type SchemaError struct {
	Path   string // dotted path within the document, e.g. "steps[2].action"
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

// DuplicateNameError reports a step name reused within a scope where names
// must be unique (the flat workflow scope, or a single loop/branch child set).
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("schema: duplicate step name %q", e.Name)
}

// StageProfileMissingError reports a validate step's stage config-key that
// does not resolve against the ValidationConfig known at load time.
type StageProfileMissingError struct {
	Key string
}

func (e *StageProfileMissingError) Error() string {
	return fmt.Sprintf("schema: stage profile %q is not defined in the validation config", e.Key)
}

// DiscoveryError reports that a named workflow could not be found in any of
// the discovery roots.
type DiscoveryError struct {
	Name          string
	SearchedPaths []string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("schema: workflow %q not found (searched %v)", e.Name, e.SearchedPaths)
}

// InvalidInputDeclError reports an InputDecl whose required/default
// combination violates the §3.1 invariant.
type InvalidInputDeclError struct {
	Input  string
	Reason string
}

func (e *InvalidInputDeclError) Error() string {
	return fmt.Sprintf("schema: input %q: %s", e.Input, e.Reason)
}
