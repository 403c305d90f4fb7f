package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/forge/internal/ir"
)

// parseVars turns repeated --var key=value flags into a variable object.
// Dotted keys nest: "stats.str=14" sets {stats: {str: 14}}. Values are read
// as YAML scalars, so 14 is a number, true a boolean and anything that does
// not parse as a scalar is text.
func parseVars(pairs []string) (ir.Object, error) {
	vars := ir.Object{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", pair)
		}
		if err := setPath(vars, strings.Split(key, "."), parseScalar(raw)); err != nil {
			return nil, fmt.Errorf("invalid --var %q: %w", pair, err)
		}
	}
	return vars, nil
}

func parseScalar(raw string) ir.Value {
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return ir.Text(raw)
	}
	switch decoded.(type) {
	case nil:
		if strings.TrimSpace(raw) == "" {
			return ir.Text("")
		}
		return ir.Null{}
	case map[string]any, []any:
		return ir.Text(raw)
	}
	v, err := ir.FromAny(decoded)
	if err != nil {
		return ir.Text(raw)
	}
	return v
}

func setPath(obj ir.Object, path []string, v ir.Value) error {
	for i, part := range path {
		if part == "" {
			return fmt.Errorf("empty path segment")
		}
		if i == len(path)-1 {
			obj[part] = v
			return nil
		}
		next, ok := obj[part].(ir.Object)
		if !ok {
			if _, taken := obj[part]; taken {
				return fmt.Errorf("%s is already a value", strings.Join(path[:i+1], "."))
			}
			next = ir.Object{}
			obj[part] = next
		}
		obj = next
	}
	return nil
}
