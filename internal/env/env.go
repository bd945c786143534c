// Package env expands host-environment variable references (`${VAR}`,
// `${VAR:-default}`, `$VAR`) in strings, using the process environment, and
// loads `.env` files into it. Expansion is not applied automatically when a
// workflow file is loaded: in this module it is reached through the CLI's
// `expand_env` action, and it leaves `${{ ... }}` expressions untouched.
package env

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	withDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	braced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	simple      = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
)

// Expand substitutes `${VAR}`, `${VAR:-default}`, and `$VAR` references in s
// with values from the process environment. It leaves `${{ ... }}` blocks
// alone since those use a distinct, two-brace delimiter this pass never
// matches.
func Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := withDefault.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := braced.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	s = simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := simple.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	return s
}

// parseValue converts an expanded string to bool/int/float64 when it looks
// like one, otherwise returns it unchanged.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// ExpandInData recursively expands env references inside a decoded
// map/slice/string value tree, type-coercing any string whose expansion
// changed it (so `${PORT}` resolving to "8080" round-trips as an int).
func ExpandInData(data any) any {
	switch v := data.(type) {
	case string:
		expanded := Expand(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = ExpandInData(vv)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = ExpandInData(vv)
		}
		return out
	default:
		return v
	}
}

// LoadDotEnv loads `.env.local` then `.env` into the process environment,
// first file wins on conflicting keys (godotenv.Load does not override
// already-set variables).
func LoadDotEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("env: loading %s: %w", file, err)
		}
	}
	return nil
}
