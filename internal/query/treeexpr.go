package query

import (
	"fmt"
	"strings"

	"tracedb/pkg/types"
)

// treeExpr is a compiled tree-expression query: an ordered list of
// path steps evaluated against the virtual node tree rooted at the
// database (spec.md §4.8 "Tree-expression path"). The grammar is a
// small XPath-like subset since no ecosystem package models a query
// language over an arbitrary domain-specific tree capability (see
// DESIGN.md): a path is step ("/" or "//") step ...; a step is a name
// test (a node's name or its kind label such as "zone" or "scope", or
// "*" for any node) with zero or more "[@attr='value']" predicates.
type treeExpr struct {
	steps []step
	src   string
}

type step struct {
	descendant bool // true for "//", selecting any-depth descendants
	nameTest   string
	attrs      map[string]string
}

func (t *treeExpr) String() string { return t.src }

// Eval walks root through every step, threading the candidate node set
// from one step to the next.
func (t *treeExpr) Eval(root types.Node) []types.Node {
	current := []types.Node{root}
	for _, s := range t.steps {
		var next []types.Node
		for _, n := range current {
			if s.descendant {
				next = append(next, n.Descendants(s.nameTest, s.attrs)...)
			} else {
				for _, c := range n.Children() {
					if matches(c, s.nameTest, s.attrs) {
						next = append(next, c)
					}
				}
			}
		}
		current = next
	}
	return current
}

// parseTreeExpr parses a slash-separated path expression such as
// "/zone/scope[@name='A']" or "//event[@id='7']".
func parseTreeExpr(src string) (*treeExpr, error) {
	expr := &treeExpr{src: src}
	rest := src
	for len(rest) > 0 {
		descendant := false
		switch {
		case strings.HasPrefix(rest, "//"):
			descendant = true
			rest = rest[2:]
		case strings.HasPrefix(rest, "/"):
			rest = rest[1:]
		default:
			return nil, fmt.Errorf("tree expression: expected '/' at %q", rest)
		}

		end := strings.IndexByte(rest, '/')
		var raw string
		if end < 0 {
			raw = rest
			rest = ""
		} else {
			raw = rest[:end]
			rest = rest[end:]
		}
		if raw == "" {
			return nil, fmt.Errorf("tree expression: empty step in %q", src)
		}

		s, err := parseStep(raw)
		if err != nil {
			return nil, err
		}
		s.descendant = descendant
		expr.steps = append(expr.steps, s)
	}
	if len(expr.steps) == 0 {
		return nil, fmt.Errorf("tree expression: empty path %q", src)
	}
	return expr, nil
}

func parseStep(raw string) (step, error) {
	name := raw
	attrs := map[string]string{}
	if i := strings.IndexByte(raw, '['); i >= 0 {
		if !strings.HasSuffix(raw, "]") {
			return step{}, fmt.Errorf("tree expression: unterminated predicate in %q", raw)
		}
		name = raw[:i]
		pred := raw[i+1 : len(raw)-1]
		k, v, err := parsePredicate(pred)
		if err != nil {
			return step{}, err
		}
		attrs[k] = v
	}
	if name == "*" {
		name = ""
	}
	return step{nameTest: name, attrs: attrs}, nil
}

// parsePredicate parses "@attr='value'" or "@attr=\"value\"".
func parsePredicate(pred string) (string, string, error) {
	if !strings.HasPrefix(pred, "@") {
		return "", "", fmt.Errorf("tree expression: predicate must start with '@': %q", pred)
	}
	eq := strings.IndexByte(pred, '=')
	if eq < 0 {
		return "", "", fmt.Errorf("tree expression: predicate missing '=': %q", pred)
	}
	key := pred[1:eq]
	val := pred[eq+1:]
	if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	} else {
		return "", "", fmt.Errorf("tree expression: predicate value must be quoted: %q", pred)
	}
	return key, val, nil
}
