// Package render implements the restricted template grammar used for
// notification bodies: `{{ name }}` interpolation with allow-listed filters,
// `{% if %}` / `{% else %}` / `{% endif %}` conditionals and
// `{% for item in list %}` iteration with `item.field` access. The grammar is
// declarative on purpose; template bodies come from configuration files that
// non-engineers edit, so nothing in here evaluates arbitrary expressions.
package render

import (
	"fmt"
	"sort"
	"strings"
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeInterp
	nodeIf
	nodeFor
)

type filterCall struct {
	name string
	arg  string
}

type node struct {
	kind     nodeKind
	text     string       // nodeText
	path     []string     // nodeInterp value, nodeIf condition, nodeFor list
	filters  []filterCall // nodeInterp
	loopVar  string       // nodeFor
	body     []*node      // nodeIf then-branch, nodeFor body
	elseBody []*node      // nodeIf else-branch
}

// Program is a parsed template body, safe for concurrent Render calls.
type Program struct {
	nodes []*node
}

// allowedFilters is the fixed filter allow-list. `format` takes a printf verb
// argument and is applied to the raw value; the rest operate on the
// stringified value.
var allowedFilters = map[string]bool{
	"upper":  true,
	"lower":  true,
	"trim":   true,
	"format": true,
}

// token stream

type tokenKind int

const (
	tokText tokenKind = iota
	tokInterp
	tokTag
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func tokenize(body string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(body) {
		next := -1
		isTag := false
		for j := i; j < len(body)-1; j++ {
			if body[j] == '{' && (body[j+1] == '{' || body[j+1] == '%') {
				next = j
				isTag = body[j+1] == '%'
				break
			}
		}
		if next == -1 {
			toks = append(toks, token{kind: tokText, value: body[i:], pos: i})
			break
		}
		if next > i {
			toks = append(toks, token{kind: tokText, value: body[i:next], pos: i})
		}
		var closer string
		if isTag {
			closer = "%}"
		} else {
			closer = "}}"
		}
		end := strings.Index(body[next+2:], closer)
		if end == -1 {
			return nil, fmt.Errorf("unterminated %q at offset %d", body[next:next+2], next)
		}
		inner := strings.TrimSpace(body[next+2 : next+2+end])
		if isTag {
			toks = append(toks, token{kind: tokTag, value: inner, pos: next})
		} else {
			toks = append(toks, token{kind: tokInterp, value: inner, pos: next})
		}
		i = next + 2 + end + 2
	}
	return toks, nil
}

// Parse compiles a template body into a Program. Parse errors are plain
// errors; callers registering templates wrap them into TEMPLATE_INVALID.
func Parse(body string) (*Program, error) {
	toks, err := tokenize(body)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	nodes, err := p.parseNodes("")
	if err != nil {
		return nil, err
	}
	if p.i < len(p.toks) {
		return nil, fmt.Errorf("unexpected tag %q at offset %d", p.toks[p.i].value, p.toks[p.i].pos)
	}
	return &Program{nodes: nodes}, nil
}

type parser struct {
	toks []token
	i    int
}

// parseNodes consumes tokens until the matching terminator tag for the
// enclosing block ("endif"/"else" or "endfor") is reached. The terminator
// token is left for the caller.
func (p *parser) parseNodes(enclosing string) ([]*node, error) {
	var nodes []*node
	for p.i < len(p.toks) {
		t := p.toks[p.i]
		switch t.kind {
		case tokText:
			nodes = append(nodes, &node{kind: nodeText, text: t.value})
			p.i++
		case tokInterp:
			n, err := parseInterp(t)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
			p.i++
		case tokTag:
			fields := strings.Fields(t.value)
			if len(fields) == 0 {
				return nil, fmt.Errorf("empty tag at offset %d", t.pos)
			}
			switch fields[0] {
			case "if":
				n, err := p.parseIf(t, fields)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "for":
				n, err := p.parseFor(t, fields)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "else", "endif":
				if enclosing != "if" {
					return nil, fmt.Errorf("%q outside of if block at offset %d", fields[0], t.pos)
				}
				return nodes, nil
			case "endfor":
				if enclosing != "for" {
					return nil, fmt.Errorf("endfor outside of for block at offset %d", t.pos)
				}
				return nodes, nil
			default:
				return nil, fmt.Errorf("unknown tag %q at offset %d", fields[0], t.pos)
			}
		}
	}
	if enclosing != "" {
		return nil, fmt.Errorf("unterminated %s block", enclosing)
	}
	return nodes, nil
}

func (p *parser) parseIf(t token, fields []string) (*node, error) {
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed if tag %q at offset %d", t.value, t.pos)
	}
	path, err := parsePath(fields[1])
	if err != nil {
		return nil, fmt.Errorf("if condition at offset %d: %w", t.pos, err)
	}
	p.i++
	body, err := p.parseNodes("if")
	if err != nil {
		return nil, err
	}
	n := &node{kind: nodeIf, path: path, body: body}
	if p.i >= len(p.toks) {
		return nil, fmt.Errorf("unterminated if block at offset %d", t.pos)
	}
	term := strings.Fields(p.toks[p.i].value)[0]
	if term == "else" {
		p.i++
		elseBody, err := p.parseNodes("if")
		if err != nil {
			return nil, err
		}
		n.elseBody = elseBody
		if p.i >= len(p.toks) || strings.Fields(p.toks[p.i].value)[0] != "endif" {
			return nil, fmt.Errorf("unterminated else block at offset %d", t.pos)
		}
	}
	p.i++ // consume endif
	return n, nil
}

func (p *parser) parseFor(t token, fields []string) (*node, error) {
	if len(fields) != 4 || fields[2] != "in" {
		return nil, fmt.Errorf("malformed for tag %q at offset %d", t.value, t.pos)
	}
	if !validIdent(fields[1]) {
		return nil, fmt.Errorf("invalid loop variable %q at offset %d", fields[1], t.pos)
	}
	path, err := parsePath(fields[3])
	if err != nil {
		return nil, fmt.Errorf("for list at offset %d: %w", t.pos, err)
	}
	p.i++
	body, err := p.parseNodes("for")
	if err != nil {
		return nil, err
	}
	if p.i >= len(p.toks) {
		return nil, fmt.Errorf("unterminated for block at offset %d", t.pos)
	}
	p.i++ // consume endfor
	return &node{kind: nodeFor, loopVar: fields[1], path: path, body: body}, nil
}

func parseInterp(t token) (*node, error) {
	parts := strings.Split(t.value, "|")
	path, err := parsePath(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("interpolation at offset %d: %w", t.pos, err)
	}
	n := &node{kind: nodeInterp, path: path}
	for _, raw := range parts[1:] {
		fc, err := parseFilter(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("interpolation at offset %d: %w", t.pos, err)
		}
		n.filters = append(n.filters, fc)
	}
	return n, nil
}

func parseFilter(raw string) (filterCall, error) {
	name := raw
	arg := ""
	if idx := strings.Index(raw, ":"); idx != -1 {
		name = strings.TrimSpace(raw[:idx])
		arg = strings.TrimSpace(raw[idx+1:])
		if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
			return filterCall{}, fmt.Errorf("filter argument must be a quoted string: %q", raw)
		}
		arg = arg[1 : len(arg)-1]
	}
	if !allowedFilters[name] {
		return filterCall{}, fmt.Errorf("filter %q is not in the allow-list", name)
	}
	if name == "format" && arg == "" {
		return filterCall{}, fmt.Errorf("format filter requires an argument")
	}
	if name != "format" && arg != "" {
		return filterCall{}, fmt.Errorf("filter %q takes no argument", name)
	}
	return filterCall{name: name, arg: arg}, nil
}

func parsePath(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty variable reference")
	}
	parts := strings.Split(raw, ".")
	for _, part := range parts {
		if !validIdent(part) {
			return nil, fmt.Errorf("invalid variable reference %q", raw)
		}
	}
	return parts, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Vars returns the sorted set of root context variables the program
// references. Loop variables are scoped to their for block and excluded.
// This is the static extraction backing a template's required-variables set.
func (p *Program) Vars() []string {
	set := map[string]bool{}
	collectVars(p.nodes, map[string]bool{}, set)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectVars(nodes []*node, scoped map[string]bool, out map[string]bool) {
	for _, n := range nodes {
		switch n.kind {
		case nodeInterp, nodeIf:
			if !scoped[n.path[0]] {
				out[n.path[0]] = true
			}
			if n.kind == nodeIf {
				collectVars(n.body, scoped, out)
				collectVars(n.elseBody, scoped, out)
			}
		case nodeFor:
			if !scoped[n.path[0]] {
				out[n.path[0]] = true
			}
			inner := map[string]bool{n.loopVar: true}
			for k := range scoped {
				inner[k] = true
			}
			collectVars(n.body, inner, out)
		}
	}
}
