// internal/notification/render/render.go
package render

import (
	"fmt"
	"strconv"
	"strings"

	"booking-notifications/internal/common/errors"
)

// EscapeMode selects output escaping. Email HTML bodies escape interpolated
// values; plain-text email and SMS bodies must not, or recipients see entity
// soup in their inbox or phone.
type EscapeMode int

const (
	EscapeNone EscapeMode = iota
	EscapeHTML
)

// Safe marks a context value as pre-escaped markup that bypasses HTML
// escaping. Only trusted producers (our own formatting code) should mint
// these; recipient-provided data never is.
type Safe string

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Render evaluates the program against vars. It performs no I/O, never
// mutates vars and is deterministic: the same program, vars and mode always
// produce the same output or the same MISSING_VARIABLE error. The first
// absent variable encountered in document order aborts the render.
func (p *Program) Render(vars map[string]interface{}, mode EscapeMode) (string, error) {
	var sb strings.Builder
	env := &scope{vars: vars}
	if err := renderNodes(&sb, p.nodes, env, mode); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// scope is a linked frame stack. The base frame holds the caller's context;
// each for iteration pushes a frame binding the loop variable.
type scope struct {
	vars   map[string]interface{}
	parent *scope
}

func (s *scope) lookup(path []string) (interface{}, bool) {
	var val interface{}
	found := false
	for frame := s; frame != nil; frame = frame.parent {
		if v, ok := frame.vars[path[0]]; ok {
			val = v
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	for _, field := range path[1:] {
		m, ok := val.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok = m[field]
		if !ok {
			return nil, false
		}
	}
	return val, true
}

func renderNodes(sb *strings.Builder, nodes []*node, env *scope, mode EscapeMode) error {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.text)
		case nodeInterp:
			if err := renderInterp(sb, n, env, mode); err != nil {
				return err
			}
		case nodeIf:
			// An absent condition variable is falsy rather than an error,
			// so templates can guard optional context with the conditional
			// itself.
			val, ok := env.lookup(n.path)
			branch := n.elseBody
			if ok && truthy(val) {
				branch = n.body
			}
			if err := renderNodes(sb, branch, env, mode); err != nil {
				return err
			}
		case nodeFor:
			val, ok := env.lookup(n.path)
			if !ok {
				return errors.NewMissingVariableError(strings.Join(n.path, "."))
			}
			items, err := toList(val)
			if err != nil {
				return fmt.Errorf("cannot iterate %q: %w", strings.Join(n.path, "."), err)
			}
			for _, item := range items {
				frame := &scope{vars: map[string]interface{}{n.loopVar: item}, parent: env}
				if err := renderNodes(sb, n.body, frame, mode); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func renderInterp(sb *strings.Builder, n *node, env *scope, mode EscapeMode) error {
	val, ok := env.lookup(n.path)
	if !ok {
		return errors.NewMissingVariableError(strings.Join(n.path, "."))
	}
	preEscaped := false
	if s, isSafe := val.(Safe); isSafe {
		val = string(s)
		preEscaped = true
	}
	out, err := applyFilters(val, n.filters)
	if err != nil {
		return fmt.Errorf("%s: %w", strings.Join(n.path, "."), err)
	}
	if mode == EscapeHTML && !preEscaped {
		out = htmlEscaper.Replace(out)
	}
	sb.WriteString(out)
	return nil
}

func applyFilters(val interface{}, filters []filterCall) (string, error) {
	// format consumes the raw value; everything after works on the string.
	out := ""
	stringified := false
	for _, fc := range filters {
		switch fc.name {
		case "format":
			src := val
			if stringified {
				src = out
			}
			formatted := fmt.Sprintf(fc.arg, src)
			// fmt reports a verb/value mismatch with a %! marker inside
			// the output instead of an error. That marker must never reach
			// recipient-facing copy, so treat it as a render failure.
			if strings.Contains(formatted, "%!") {
				return "", fmt.Errorf("format %q does not apply to value of type %T", fc.arg, src)
			}
			out = formatted
			stringified = true
		case "upper", "lower", "trim":
			if !stringified {
				out = stringify(val)
				stringified = true
			}
			switch fc.name {
			case "upper":
				out = strings.ToUpper(out)
			case "lower":
				out = strings.ToLower(out)
			case "trim":
				out = strings.TrimSpace(out)
			}
		}
	}
	if !stringified {
		out = stringify(val)
	}
	return out, nil
}

func stringify(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// JSON numbers decode as float64; keep integral values clean.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truthy(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return true
	}
}

func toList(val interface{}) ([]interface{}, error) {
	switch v := val.(type) {
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value of type %T is not a list", val)
	}
}
