package env

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand_BracedWithValue(t *testing.T) {
	os.Setenv("MAVERICK_TEST_VAR", "hello")
	defer os.Unsetenv("MAVERICK_TEST_VAR")
	assert.Equal(t, "hello world", Expand("${MAVERICK_TEST_VAR} world"))
}

func TestExpand_DefaultFallback(t *testing.T) {
	os.Unsetenv("MAVERICK_TEST_MISSING")
	assert.Equal(t, "fallback", Expand("${MAVERICK_TEST_MISSING:-fallback}"))
}

func TestExpand_SimpleForm(t *testing.T) {
	os.Setenv("MAVERICK_TEST_VAR2", "x")
	defer os.Unsetenv("MAVERICK_TEST_VAR2")
	assert.Equal(t, "prefix-x", Expand("prefix-$MAVERICK_TEST_VAR2"))
}

func TestExpand_LeavesDoubleBraceExpressionsAlone(t *testing.T) {
	assert.Equal(t, "${{ inputs.name }}", Expand("${{ inputs.name }}"))
}

func TestExpandInData_CoercesTypedDefaults(t *testing.T) {
	os.Setenv("MAVERICK_TEST_PORT", "8080")
	defer os.Unsetenv("MAVERICK_TEST_PORT")
	out := ExpandInData(map[string]any{"port": "${MAVERICK_TEST_PORT}"})
	m := out.(map[string]any)
	assert.Equal(t, 8080, m["port"])
}
