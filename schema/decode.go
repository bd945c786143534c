package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type nodePair struct {
	key *yaml.Node
	val *yaml.Node
}

// mappingPairs returns a mapping node's key/value pairs in document order.
// Order matters for §3.1's "ordered mapping of InputDecl" and for the
// "outputs: mapping name -> expression" block, where result key order should
// be stable for reproducible diagnostics (spec.md §8.1 invariant 6).
func mappingPairs(n *yaml.Node) ([]nodePair, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &SchemaError{Reason: "expected a mapping"}
	}
	if len(n.Content)%2 != 0 {
		return nil, &SchemaError{Reason: "malformed mapping"}
	}
	pairs := make([]nodePair, 0, len(n.Content)/2)
	for i := 0; i < len(n.Content); i += 2 {
		pairs = append(pairs, nodePair{key: n.Content[i], val: n.Content[i+1]})
	}
	return pairs, nil
}

func decodeAny(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeInputs(n *yaml.Node) ([]InputDecl, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, &SchemaError{Path: "inputs", Reason: err.Error()}
	}

	allowed := map[string]bool{"type": true, "required": true, "default": true, "description": true}
	out := make([]InputDecl, 0, len(pairs))
	for _, p := range pairs {
		name := p.key.Value
		decl := InputDecl{Name: name}
		fieldPairs, err := mappingPairs(p.val)
		if err != nil {
			return nil, &SchemaError{Path: "inputs." + name, Reason: err.Error()}
		}
		for _, fp := range fieldPairs {
			key := fp.key.Value
			if !allowed[key] {
				return nil, &SchemaError{Path: "inputs." + name + "." + key, Reason: "unknown field"}
			}
			switch key {
			case "type":
				var t string
				if err := fp.val.Decode(&t); err != nil {
					return nil, &SchemaError{Path: "inputs." + name + ".type", Reason: err.Error()}
				}
				decl.Type = InputType(t)
			case "required":
				if err := fp.val.Decode(&decl.Required); err != nil {
					return nil, &SchemaError{Path: "inputs." + name + ".required", Reason: err.Error()}
				}
			case "default":
				v, err := decodeAny(fp.val)
				if err != nil {
					return nil, &SchemaError{Path: "inputs." + name + ".default", Reason: err.Error()}
				}
				decl.Default = v
			case "description":
				if err := fp.val.Decode(&decl.Description); err != nil {
					return nil, &SchemaError{Path: "inputs." + name + ".description", Reason: err.Error()}
				}
			}
		}
		switch decl.Type {
		case InputString, InputInteger, InputBoolean, InputFloat, InputObject, InputArray:
		default:
			return nil, &SchemaError{Path: "inputs." + name + ".type", Reason: fmt.Sprintf("unsupported type %q", decl.Type)}
		}
		out = append(out, decl)
	}
	return out, nil
}

func decodeOutputs(n *yaml.Node) ([]OutputDecl, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, &SchemaError{Path: "outputs", Reason: err.Error()}
	}
	out := make([]OutputDecl, 0, len(pairs))
	for _, p := range pairs {
		var expr string
		if err := p.val.Decode(&expr); err != nil {
			return nil, &SchemaError{Path: "outputs." + p.key.Value, Reason: "must be an expression string"}
		}
		out = append(out, OutputDecl{Name: p.key.Value, Expr: expr})
	}
	return out, nil
}

func decodeSteps(n *yaml.Node, path string) ([]StepRecord, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, &SchemaError{Path: path, Reason: "must be a sequence"}
	}
	out := make([]StepRecord, 0, len(n.Content))
	for i, item := range n.Content {
		step, err := decodeStepRecord(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

var commonStepFields = map[string]bool{
	"name": true, "type": true, "when": true, "metadata": true,
}

// variantFields lists the additional fields each StepType accepts, on top of
// commonStepFields. "rollback" is listed explicitly per variant because only
// python/agent/generate steps may register one (spec.md §3.1).
var variantFields = map[StepType]map[string]bool{
	StepPython:      {"action": true, "args": true, "kwargs": true, "rollback": true},
	StepAgent:       {"agent": true, "context": true, "context_builder": true, "rollback": true},
	StepGenerate:    {"generator": true, "context": true, "context_builder": true, "rollback": true},
	StepValidate:    {"stages": true, "retry": true, "on_failure": true},
	StepLoop:        {"steps": true, "for_each": true, "max_concurrency": true},
	StepBranch:      {"options": true},
	StepCheckpoint:  {"checkpoint_id": true, "step": true},
	StepSubWorkflow: {"workflow": true, "inputs": true},
}

func decodeStepRecord(n *yaml.Node, path string) (StepRecord, error) {
	if n.Kind != yaml.MappingNode {
		return StepRecord{}, &SchemaError{Path: path, Reason: "step must be a mapping"}
	}
	pairs, err := mappingPairs(n)
	if err != nil {
		return StepRecord{}, &SchemaError{Path: path, Reason: err.Error()}
	}

	// First pass: find the type so we know which fields are legal.
	var typeStr string
	for _, p := range pairs {
		if p.key.Value == "type" {
			if err := p.val.Decode(&typeStr); err != nil {
				return StepRecord{}, &SchemaError{Path: path + ".type", Reason: err.Error()}
			}
		}
	}
	stepType := StepType(typeStr)
	allowed, ok := variantFields[stepType]
	if !ok {
		return StepRecord{}, &SchemaError{Path: path + ".type", Reason: fmt.Sprintf("unknown step type %q", typeStr)}
	}

	step := StepRecord{Type: stepType, MaxConcurrency: 1, Retry: 3}

	for _, p := range pairs {
		key := p.key.Value
		if commonStepFields[key] {
			switch key {
			case "name":
				if err := p.val.Decode(&step.Name); err != nil {
					return StepRecord{}, &SchemaError{Path: path + ".name", Reason: err.Error()}
				}
			case "type":
				// already handled
			case "when":
				if err := p.val.Decode(&step.When); err != nil {
					return StepRecord{}, &SchemaError{Path: path + ".when", Reason: err.Error()}
				}
			case "metadata":
				m, err := decodeAny(p.val)
				if err != nil {
					return StepRecord{}, &SchemaError{Path: path + ".metadata", Reason: err.Error()}
				}
				mm, ok := m.(map[string]any)
				if !ok {
					return StepRecord{}, &SchemaError{Path: path + ".metadata", Reason: "must be a mapping"}
				}
				step.Metadata = mm
			}
			continue
		}
		if !allowed[key] {
			return StepRecord{}, &SchemaError{Path: path + "." + key, Reason: fmt.Sprintf("field not valid for step type %q", stepType)}
		}
		if err := decodeVariantField(&step, key, p.val, path); err != nil {
			return StepRecord{}, err
		}
	}

	if step.Name == "" {
		return StepRecord{}, &SchemaError{Path: path + ".name", Reason: "is required"}
	}

	if err := requireVariantFields(&step, path); err != nil {
		return StepRecord{}, err
	}
	return step, nil
}

func decodeVariantField(step *StepRecord, key string, n *yaml.Node, path string) error {
	switch key {
	case "action":
		return n.Decode(&step.Action)
	case "args":
		v, err := decodeAny(n)
		if err != nil {
			return err
		}
		list, ok := v.([]any)
		if !ok {
			return &SchemaError{Path: path + ".args", Reason: "must be a list"}
		}
		step.Args = list
	case "kwargs":
		v, err := decodeAny(n)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return &SchemaError{Path: path + ".kwargs", Reason: "must be a mapping"}
		}
		step.Kwargs = m
	case "rollback":
		return n.Decode(&step.Rollback)
	case "agent":
		return n.Decode(&step.Agent)
	case "generator":
		return n.Decode(&step.Generator)
	case "context":
		v, err := decodeAny(n)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return &SchemaError{Path: path + ".context", Reason: "must be a mapping"}
		}
		step.Context = m
	case "context_builder":
		return n.Decode(&step.ContextBuilder)
	case "stages":
		sel, err := decodeStageSelector(n, path)
		if err != nil {
			return err
		}
		step.Stages = sel
	case "retry":
		var r int
		if err := n.Decode(&r); err != nil {
			return &SchemaError{Path: path + ".retry", Reason: err.Error()}
		}
		if r < 0 {
			return &SchemaError{Path: path + ".retry", Reason: "must be >= 0"}
		}
		step.Retry = r
	case "on_failure":
		s, err := decodeStepRecord(n, path+".on_failure")
		if err != nil {
			return err
		}
		step.OnFailure = &s
	case "steps":
		steps, err := decodeSteps(n, path+".steps")
		if err != nil {
			return err
		}
		step.Steps = steps
	case "for_each":
		return n.Decode(&step.ForEach)
	case "max_concurrency":
		var c int
		if err := n.Decode(&c); err != nil {
			return &SchemaError{Path: path + ".max_concurrency", Reason: err.Error()}
		}
		if c < 0 {
			return &SchemaError{Path: path + ".max_concurrency", Reason: "must be >= 0"}
		}
		step.MaxConcurrency = c
	case "options":
		opts, err := decodeBranchOptions(n, path+".options")
		if err != nil {
			return err
		}
		step.Options = opts
	case "checkpoint_id":
		return n.Decode(&step.CheckpointID)
	case "step":
		s, err := decodeStepRecord(n, path+".step")
		if err != nil {
			return err
		}
		step.Inner = &s
	case "workflow":
		return n.Decode(&step.Workflow)
	case "inputs":
		v, err := decodeAny(n)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return &SchemaError{Path: path + ".inputs", Reason: "must be a mapping"}
		}
		step.Inputs = m
	}
	return nil
}

func decodeStageSelector(n *yaml.Node, path string) (StageSelector, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		var key string
		if err := n.Decode(&key); err != nil {
			return StageSelector{}, &SchemaError{Path: path + ".stages", Reason: err.Error()}
		}
		return StageSelector{ConfigKey: key}, nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return StageSelector{}, &SchemaError{Path: path + ".stages", Reason: "must be a list of strings"}
		}
		return StageSelector{Explicit: list}, nil
	default:
		return StageSelector{}, &SchemaError{Path: path + ".stages", Reason: "must be a string or a list of strings"}
	}
}

func decodeBranchOptions(n *yaml.Node, path string) ([]BranchOption, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &SchemaError{Path: path, Reason: "must be a sequence"}
	}
	out := make([]BranchOption, 0, len(n.Content))
	allowed := map[string]bool{"when": true, "step": true}
	for i, item := range n.Content {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		pairs, err := mappingPairs(item)
		if err != nil {
			return nil, &SchemaError{Path: itemPath, Reason: err.Error()}
		}
		opt := BranchOption{}
		var haveStep bool
		for _, p := range pairs {
			if !allowed[p.key.Value] {
				return nil, &SchemaError{Path: itemPath + "." + p.key.Value, Reason: "unknown field"}
			}
			switch p.key.Value {
			case "when":
				if err := p.val.Decode(&opt.When); err != nil {
					return nil, &SchemaError{Path: itemPath + ".when", Reason: err.Error()}
				}
			case "step":
				s, err := decodeStepRecord(p.val, itemPath+".step")
				if err != nil {
					return nil, err
				}
				opt.Step = s
				haveStep = true
			}
		}
		if opt.When == "" {
			return nil, &SchemaError{Path: itemPath + ".when", Reason: "is required"}
		}
		if !haveStep {
			return nil, &SchemaError{Path: itemPath + ".step", Reason: "is required"}
		}
		out = append(out, opt)
	}
	return out, nil
}

func requireVariantFields(step *StepRecord, path string) error {
	switch step.Type {
	case StepPython:
		if step.Action == "" {
			return &SchemaError{Path: path + ".action", Reason: "is required"}
		}
	case StepAgent:
		if step.Agent == "" {
			return &SchemaError{Path: path + ".agent", Reason: "is required"}
		}
	case StepGenerate:
		if step.Generator == "" {
			return &SchemaError{Path: path + ".generator", Reason: "is required"}
		}
	case StepLoop:
		if step.ForEach == "" {
			return &SchemaError{Path: path + ".for_each", Reason: "is required"}
		}
		if len(step.Steps) == 0 {
			return &SchemaError{Path: path + ".steps", Reason: "must declare at least one step"}
		}
	case StepBranch:
		if len(step.Options) == 0 {
			return &SchemaError{Path: path + ".options", Reason: "must declare at least one option"}
		}
	case StepSubWorkflow:
		if step.Workflow == "" {
			return &SchemaError{Path: path + ".workflow", Reason: "is required"}
		}
	}
	return nil
}
