// Package vars implements the priority-ordered ${name}/${name|default}
// variable substitution engine (spec §4.3).
package vars

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// refPattern matches ${name} and ${name|default}; the default may be quoted
// with ' or ". An unquoted default containing whitespace is flagged by Scan
// (Reference.InvalidDefault) and rejected by the planner, not by this
// regexp, so the offending reference can be reported with its exact text.
var refPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(\|([^}]*))?\}`)

// Manager resolves ${...} references against four layers, highest priority
// first: CLI-provided variables, profile variables, SET-directive
// variables, process environment. An inline default in the reference itself
// is the last resort.
type Manager struct {
	cliVars     map[string]interface{}
	profileVars map[string]interface{}
	setVars     map[string]interface{}
	env         func(string) (string, bool)
}

// NewManager builds a Manager. setVars is typically populated incrementally
// as Set directives are encountered during conditional flattening.
func NewManager(cliVars, profileVars, setVars map[string]interface{}) *Manager {
	return &Manager{
		cliVars:     orEmpty(cliVars),
		profileVars: orEmpty(profileVars),
		setVars:     orEmpty(setVars),
		env:         os.LookupEnv,
	}
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// SetVariable records a SET-directive variable, coercing its literal value
// per spec §4.3 ("Type coercion on SET values").
func (m *Manager) SetVariable(name, literal string) {
	m.setVars[name] = CoerceLiteral(literal)
}

// CoerceLiteral converts a SET-directive's raw value text into bool, int,
// float, or string (one surrounding pair of quotes stripped if present).
func CoerceLiteral(literal string) interface{} {
	switch literal {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return f
	}
	if len(literal) >= 2 {
		if (literal[0] == '\'' && literal[len(literal)-1] == '\'') ||
			(literal[0] == '"' && literal[len(literal)-1] == '"') {
			return literal[1 : len(literal)-1]
		}
	}
	return literal
}

// Resolve looks up name across the four priority layers, for callers (like
// the condition evaluator) that need a bare identifier's value directly
// rather than substituting it into a string.
func (m *Manager) Resolve(name string) (interface{}, bool) {
	return m.resolveName(name)
}

// resolveName looks up name across the four layers, in priority order.
func (m *Manager) resolveName(name string) (interface{}, bool) {
	if v, ok := m.cliVars[name]; ok {
		return v, true
	}
	if v, ok := m.profileVars[name]; ok {
		return v, true
	}
	if v, ok := m.setVars[name]; ok {
		return v, true
	}
	if v, ok := m.env(name); ok {
		return v, true
	}
	return nil, false
}

// Reference describes one ${...} occurrence found by Scan.
type Reference struct {
	Name         string
	Default      string
	HasDefault   bool
	Raw          string
	InvalidDefault bool
}

// Scan finds every ${...} reference in s without resolving it, used by the
// planner's variable-validation pass (spec §4.7 step 1).
func Scan(s string) []Reference {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		ref := Reference{Name: m[1], Raw: m[0]}
		if m[2] != "" {
			ref.HasDefault = true
			def := m[3]
			if len(def) >= 2 && ((def[0] == '\'' && def[len(def)-1] == '\'') || (def[0] == '"' && def[len(def)-1] == '"')) {
				def = def[1 : len(def)-1]
			} else if strings.ContainsAny(def, " \t\n") {
				ref.InvalidDefault = true
			}
			ref.Default = def
		}
		refs = append(refs, ref)
	}
	return refs
}

// Substitute recursively walks value (string, map[string]interface{}, or
// []interface{}) and resolves every ${...} reference it finds in strings.
// A string with no references is returned unchanged; a fully-resolved
// reference returns the resolved value itself (preserving type); a
// partially-resolved string embeds the resolved text.
func (m *Manager) Substitute(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return m.substituteString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = m.Substitute(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = m.Substitute(val)
		}
		return out
	default:
		return value
	}
}

func (m *Manager) substituteString(s string) interface{} {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	// A string consisting of exactly one reference and nothing else
	// returns the resolved value with its native type preserved.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := parseMatch(s, matches[0])
		if resolved, ok := m.resolveName(ref.Name); ok {
			return resolved
		}
		if ref.HasDefault {
			return CoerceLiteral(ref.Default)
		}
		return s
	}

	var b strings.Builder
	last := 0
	for _, idx := range matches {
		b.WriteString(s[last:idx[0]])
		ref := parseMatch(s, idx)
		if resolved, ok := m.resolveName(ref.Name); ok {
			b.WriteString(fmt.Sprintf("%v", resolved))
		} else if ref.HasDefault {
			b.WriteString(ref.Default)
		} else {
			b.WriteString(ref.Raw)
		}
		last = idx[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// SubstituteForExpression replaces every ${...} reference in s with a
// literal suitable for the condition grammar (spec §4.4: "substitutes
// variables first, then evaluates"): resolved strings are quoted, other
// resolved values render as their Go literal form. Unlike Substitute, this
// never embeds a resolved string as bare unquoted text, since an unquoted
// value would otherwise parse as a condition identifier rather than a
// literal.
func (m *Manager) SubstituteForExpression(s string) string {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	last := 0
	for _, idx := range matches {
		b.WriteString(s[last:idx[0]])
		ref := parseMatch(s, idx)
		var resolved interface{}
		var ok bool
		if resolved, ok = m.resolveName(ref.Name); !ok && ref.HasDefault {
			resolved, ok = CoerceLiteral(ref.Default), true
		}
		if !ok {
			b.WriteString(ref.Raw)
		} else if text, isString := resolved.(string); isString {
			b.WriteString(strconv.Quote(text))
		} else {
			b.WriteString(fmt.Sprintf("%v", resolved))
		}
		last = idx[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func parseMatch(s string, idx []int) Reference {
	ref := Reference{
		Name: s[idx[2]:idx[3]],
		Raw:  s[idx[0]:idx[1]],
	}
	if idx[6] >= 0 {
		ref.HasDefault = true
		def := s[idx[6]:idx[7]]
		if len(def) >= 2 && ((def[0] == '\'' && def[len(def)-1] == '\'') || (def[0] == '"' && def[len(def)-1] == '"')) {
			def = def[1 : len(def)-1]
		}
		ref.Default = def
	}
	return ref
}

// MissingVariable names a variable referenced with no resolution and no
// default, reported by ValidateRequired.
type MissingVariable struct {
	Name  string
	Lines []int
}

// ValidateRequired scans every text in texts (paired with the source line it
// came from) for ${...} references with neither a resolved value nor an
// inline default. It does not raise; the Planner decides what to do with the
// result (spec §4.3: "the engine itself does not raise during substitution").
func (m *Manager) ValidateRequired(texts map[int]string) []MissingVariable {
	lineNumbers := make([]int, 0, len(texts))
	for line := range texts {
		lineNumbers = append(lineNumbers, line)
	}
	sort.Ints(lineNumbers)

	lines := map[string][]int{}
	order := []string{}
	for _, line := range lineNumbers {
		text := texts[line]
		for _, ref := range Scan(text) {
			if ref.HasDefault {
				continue
			}
			if _, ok := m.resolveName(ref.Name); ok {
				continue
			}
			if _, seen := lines[ref.Name]; !seen {
				order = append(order, ref.Name)
			}
			lines[ref.Name] = append(lines[ref.Name], line)
		}
	}
	missing := make([]MissingVariable, 0, len(order))
	for _, name := range order {
		missing = append(missing, MissingVariable{Name: name, Lines: lines[name]})
	}
	return missing
}
