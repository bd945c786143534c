package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOptions customizes validation performed at load time.
type LoadOptions struct {
	// KnownStageProfiles, if non-nil, is consulted to validate every
	// validate-step config-key stage reference against the caller's
	// ValidationConfig (§4.1 validation rule c). A nil map skips this check;
	// an unresolved key then surfaces at runtime as a step failure instead
	// (spec.md §7, StageProfileMissing).
	KnownStageProfiles map[string]bool
}

// Load reads and validates a workflow YAML document from disk.
func Load(path string, opts LoadOptions) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}
	wf, err := LoadFromBytes(data, opts)
	if err != nil {
		return nil, err
	}
	wf.Path = path
	return wf, nil
}

// LoadFromBytes parses and validates a workflow YAML document already in
// memory (e.g. fetched from a remote store, or embedded in a test).
func LoadFromBytes(data []byte, opts LoadOptions) (*WorkflowFile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if len(doc.Content) == 0 {
		return nil, &SchemaError{Reason: "empty document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &SchemaError{Path: "$", Reason: "document must be a mapping"}
	}

	wf := &WorkflowFile{}
	allowed := map[string]bool{
		"version": true, "name": true, "description": true,
		"inputs": true, "steps": true, "outputs": true,
	}

	pairs, err := mappingPairs(root)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		key := p.key.Value
		if !allowed[key] {
			return nil, &SchemaError{Path: key, Reason: "unknown field"}
		}
		switch key {
		case "version":
			if err := p.val.Decode(&wf.Version); err != nil {
				return nil, &SchemaError{Path: "version", Reason: err.Error()}
			}
		case "name":
			if err := p.val.Decode(&wf.Name); err != nil {
				return nil, &SchemaError{Path: "name", Reason: err.Error()}
			}
		case "description":
			if err := p.val.Decode(&wf.Description); err != nil {
				return nil, &SchemaError{Path: "description", Reason: err.Error()}
			}
		case "inputs":
			inputs, err := decodeInputs(p.val)
			if err != nil {
				return nil, err
			}
			wf.Inputs = inputs
		case "steps":
			steps, err := decodeSteps(p.val, "steps")
			if err != nil {
				return nil, err
			}
			wf.Steps = steps
		case "outputs":
			outputs, err := decodeOutputs(p.val)
			if err != nil {
				return nil, err
			}
			wf.Outputs = outputs
		}
	}

	if err := validateWorkflowFile(wf, opts); err != nil {
		return nil, err
	}
	return wf, nil
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

func validateWorkflowFile(wf *WorkflowFile, opts LoadOptions) error {
	if wf.Version != "1.0" {
		return &SchemaError{Path: "version", Reason: fmt.Sprintf("must be \"1.0\", got %q", wf.Version)}
	}
	if wf.Name == "" {
		return &SchemaError{Path: "name", Reason: "is required"}
	}

	for _, in := range wf.Inputs {
		if in.Required && in.Default != nil {
			return &InvalidInputDeclError{Input: in.Name, Reason: "required=true and a default are mutually exclusive"}
		}
	}

	seen := make(map[string]bool)
	if err := checkUniqueNames(wf.Steps, seen); err != nil {
		return err
	}
	if err := checkStageProfiles(wf.Steps, opts.KnownStageProfiles); err != nil {
		return err
	}
	return nil
}

// checkUniqueNames enforces §4.1(a): unique step names across the flat
// workflow scope (recursing into loop bodies, branch options, validate's
// on_failure and checkpoint's inner step, all of which share that flat
// namespace), and §4.1(b): no duplicate names within a single loop/branch
// child set.
func checkUniqueNames(steps []StepRecord, seen map[string]bool) error {
	local := make(map[string]bool)
	for _, s := range steps {
		if s.Name == "" {
			return &SchemaError{Path: "steps[].name", Reason: "step name is required"}
		}
		if local[s.Name] {
			return &DuplicateNameError{Name: s.Name}
		}
		local[s.Name] = true

		if seen[s.Name] {
			return &DuplicateNameError{Name: s.Name}
		}
		seen[s.Name] = true

		switch s.Type {
		case StepLoop:
			if err := checkUniqueNames(s.Steps, seen); err != nil {
				return err
			}
		case StepBranch:
			for _, opt := range s.Options {
				if err := checkUniqueNames([]StepRecord{opt.Step}, seen); err != nil {
					return err
				}
			}
		case StepValidate:
			if s.OnFailure != nil {
				if err := checkUniqueNames([]StepRecord{*s.OnFailure}, seen); err != nil {
					return err
				}
			}
		case StepCheckpoint:
			if s.Inner != nil {
				if err := checkUniqueNames([]StepRecord{*s.Inner}, seen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkStageProfiles(steps []StepRecord, known map[string]bool) error {
	if known == nil {
		return nil
	}
	for _, s := range steps {
		if s.Type == StepValidate && s.Stages.ConfigKey != "" {
			if !known[s.Stages.ConfigKey] {
				return &StageProfileMissingError{Key: s.Stages.ConfigKey}
			}
		}
		switch s.Type {
		case StepLoop:
			if err := checkStageProfiles(s.Steps, known); err != nil {
				return err
			}
		case StepBranch:
			for _, opt := range s.Options {
				if err := checkStageProfiles([]StepRecord{opt.Step}, known); err != nil {
					return err
				}
			}
		case StepValidate:
			if s.OnFailure != nil {
				if err := checkStageProfiles([]StepRecord{*s.OnFailure}, known); err != nil {
					return err
				}
			}
		case StepCheckpoint:
			if s.Inner != nil {
				if err := checkStageProfiles([]StepRecord{*s.Inner}, known); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
