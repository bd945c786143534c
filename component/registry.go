// Package component wires the four collaborator registries a workflow step
// can name by string: actions (python steps), agents, generators, and
// context builders. Callers register concrete implementations at startup;
// the step executor looks them up by name at run time. There is no
// reflection or tag-based discovery anywhere in this package.
package component

import (
	"context"

	"github.com/maverickhq/maverick/registry"
)

// Action is a callable registered under a python step's `action` name. args
// and kwargs come straight from the decoded step record (post expression
// evaluation); the return value becomes the step's output.
type Action func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Agent is the external interface a workflow `agent` step drives. Run must
// stream incremental chunks to onChunk (which may be nil) and return the
// agent's final output once it settles. This package never imports an LLM
// SDK; the concrete Agent implementation lives outside this module's scope
// and is supplied by the host application at registration time.
type Agent interface {
	Run(ctx context.Context, stepContext map[string]any, onChunk func(chunk string)) (any, error)
}

// Generator is the external interface a workflow `generate` step drives. It
// is a narrower collaborator than Agent: a single-shot call with no
// streaming callback, suited to template-style content generation.
type Generator interface {
	Generate(ctx context.Context, stepContext map[string]any) (any, error)
}

// ContextBuilder expands a step's declared `context` map (or resolves
// `context_builder` by name) into the final map handed to an Agent or
// Generator.
type ContextBuilder func(ctx context.Context, declared map[string]any) (map[string]any, error)

// Registry composes the four collaborator registries behind a single
// construction point, mirroring the teacher's pattern of one manager type
// owning every component registry the runtime needs.
type Registry struct {
	Actions         *registry.BaseRegistry[Action]
	Agents          *registry.BaseRegistry[Agent]
	Generators      *registry.BaseRegistry[Generator]
	ContextBuilders *registry.BaseRegistry[ContextBuilder]
}

// New creates an empty Registry. Callers populate it via RegisterAction,
// RegisterAgent, RegisterGenerator, and RegisterContextBuilder before
// handing it to the step executor.
func New() *Registry {
	return &Registry{
		Actions:         registry.New[Action](),
		Agents:          registry.New[Agent](),
		Generators:      registry.New[Generator](),
		ContextBuilders: registry.New[ContextBuilder](),
	}
}

func (r *Registry) RegisterAction(name string, a Action) error {
	return r.Actions.Register(name, a)
}

func (r *Registry) RegisterAgent(name string, a Agent) error {
	return r.Agents.Register(name, a)
}

func (r *Registry) RegisterGenerator(name string, g Generator) error {
	return r.Generators.Register(name, g)
}

func (r *Registry) RegisterContextBuilder(name string, b ContextBuilder) error {
	return r.ContextBuilders.Register(name, b)
}
