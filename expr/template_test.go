package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	inputs  map[string]any
	outputs map[string]any
	item    any
	hasItem bool
	index   any
	hasIdx  bool
}

func (f *fakeContext) Input(name string) (any, bool) {
	v, ok := f.inputs[name]
	return v, ok
}

func (f *fakeContext) StepOutput(name string) (any, bool) {
	v, ok := f.outputs[name]
	return v, ok
}

func (f *fakeContext) Item() (any, bool)  { return f.item, f.hasItem }
func (f *fakeContext) Index() (any, bool) { return f.index, f.hasIdx }

func TestTemplate_PureExpressionReturnsRawValue(t *testing.T) {
	tpl, err := Parse("${{ inputs.count }}")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"count": int64(3)}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestTemplate_MixedTemplateStringifies(t *testing.T) {
	tpl, err := Parse("Hello, ${{ inputs.name }}!")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"name": "world"}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", v)
}

func TestTemplate_LiteralOnly(t *testing.T) {
	tpl, err := Parse("no expressions here")
	require.NoError(t, err)
	v, err := tpl.Eval(&fakeContext{})
	require.NoError(t, err)
	assert.Equal(t, "no expressions here", v)
}

func TestTemplate_StepOutputReference(t *testing.T) {
	tpl, err := Parse("${{ steps.greet.output }}")
	require.NoError(t, err)
	ctx := &fakeContext{outputs: map[string]any{"greet": "hi"}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestTemplate_MissingStepOutputIsNull(t *testing.T) {
	tpl, err := Parse("${{ steps.missing.output }}")
	require.NoError(t, err)
	v, err := tpl.Eval(&fakeContext{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTemplate_MissingInputErrors(t *testing.T) {
	tpl, err := Parse("${{ inputs.nope }}")
	require.NoError(t, err)
	_, err = tpl.Eval(&fakeContext{})
	require.Error(t, err)
	var me *MissingInput
	require.ErrorAs(t, err, &me)
}

func TestTemplate_AndOrShortCircuitReturnValue(t *testing.T) {
	tpl, err := Parse("${{ inputs.a or inputs.b }}")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"a": "", "b": "fallback"}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	tpl2, err := Parse("${{ inputs.a and inputs.b }}")
	require.NoError(t, err)
	ctx2 := &fakeContext{inputs: map[string]any{"a": "x", "b": "y"}}
	v2, err := tpl2.Eval(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "y", v2)
}

func TestTemplate_NotReturnsBoolean(t *testing.T) {
	tpl, err := Parse("${{ not inputs.flag }}")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"flag": false}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestTemplate_Ternary(t *testing.T) {
	tpl, err := Parse("${{ 'yes' if inputs.ok else 'no' }}")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"ok": true}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "yes", v)

	ctx2 := &fakeContext{inputs: map[string]any{"ok": false}}
	v2, err := tpl.Eval(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "no", v2)
}

func TestTemplate_Equality(t *testing.T) {
	tpl, err := Parse("${{ inputs.env == 'prod' }}")
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"env": "prod"}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestTemplate_ItemAndIndexInLoopFrame(t *testing.T) {
	tpl, err := Parse("${{ item.name }}-${{ index }}")
	require.NoError(t, err)
	ctx := &fakeContext{item: map[string]any{"name": "x"}, hasItem: true, index: int64(2), hasIdx: true}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x-2", v)
}

func TestTemplate_ItemOutsideLoopErrors(t *testing.T) {
	tpl, err := Parse("${{ item }}")
	require.NoError(t, err)
	_, err = tpl.Eval(&fakeContext{})
	require.Error(t, err)
	var ie *IterationScopeError
	require.ErrorAs(t, err, &ie)
}

func TestTemplate_ListAndMapLiterals(t *testing.T) {
	tpl, err := Parse(`${{ [1, 2, inputs.x] }}`)
	require.NoError(t, err)
	ctx := &fakeContext{inputs: map[string]any{"x": int64(3)}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, v)

	tpl2, err := Parse(`${{ {"a": 1} }}`)
	require.NoError(t, err)
	v2, err := tpl2.Eval(&fakeContext{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, v2)
}

func TestTemplate_NestedAccessors(t *testing.T) {
	tpl, err := Parse("${{ steps.build.output.artifacts[0].path }}")
	require.NoError(t, err)
	ctx := &fakeContext{outputs: map[string]any{
		"build": map[string]any{
			"artifacts": []any{
				map[string]any{"path": "dist/out.bin"},
			},
		},
	}}
	v, err := tpl.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dist/out.bin", v)
}

func TestTemplate_RejectsUnterminatedExpression(t *testing.T) {
	_, err := Parse("${{ inputs.x")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestTemplate_RejectsMalformedSyntax(t *testing.T) {
	_, err := Parse("${{ inputs. }}")
	require.Error(t, err)
}
