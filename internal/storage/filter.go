package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"

	"taskdash/internal/task"
)

var attributeAliases = map[string]string{
	"pro":         "project",
	"proj":        "project",
	"project":     "project",
	"pri":         "priority",
	"priority":    "priority",
	"status":      "status",
	"uuid":        "uuid",
	"desc":        "description",
	"description": "description",
	"due":         "due",
	"due.before":  "due.before",
	"due.after":   "due.after",
}

func canonicalAttribute(name string) string {
	return attributeAliases[strings.ToLower(name)]
}

// compileFilter translates a taskwarrior-style filter into a SQL condition.
// Adjacent terms are conjunctive, "or" separates alternatives and
// parentheses group.
func compileFilter(filter string, now time.Time) (string, []any, error) {
	words, err := shlex.Split(filter)
	if err != nil {
		return "", nil, fmt.Errorf("filter: %w", err)
	}
	p := &filterParser{terms: splitParens(words), now: now}
	if len(p.terms) == 0 {
		return "", nil, nil
	}
	cond, err := p.expr()
	if err != nil {
		return "", nil, err
	}
	if p.pos < len(p.terms) {
		return "", nil, fmt.Errorf("filter: unexpected %q", p.terms[p.pos])
	}
	return cond, p.args, nil
}

// mentionsStatus reports whether filter has a status: term of its own.
func mentionsStatus(filter string) bool {
	words, err := shlex.Split(filter)
	if err != nil {
		return false
	}
	for _, term := range splitParens(words) {
		if name, _, ok := strings.Cut(term, ":"); ok && canonicalAttribute(name) == "status" {
			return true
		}
	}
	return false
}

// splitParens detaches leading "(" and trailing ")" so "(project:a" reads
// as two terms.
func splitParens(words []string) []string {
	var out []string
	for _, w := range words {
		for len(w) > 1 && w[0] == '(' {
			out = append(out, "(")
			w = w[1:]
		}
		closing := 0
		for len(w) > 1 && w[len(w)-1] == ')' {
			closing++
			w = w[:len(w)-1]
		}
		out = append(out, w)
		for ; closing > 0; closing-- {
			out = append(out, ")")
		}
	}
	return out
}

type filterParser struct {
	terms []string
	pos   int
	now   time.Time
	args  []any
}

func (p *filterParser) peek() string {
	if p.pos >= len(p.terms) {
		return ""
	}
	return strings.ToLower(p.terms[p.pos])
}

func (p *filterParser) expr() (string, error) {
	var groups []string
	for {
		g, err := p.group()
		if err != nil {
			return "", err
		}
		groups = append(groups, g)
		if p.peek() != "or" {
			break
		}
		p.pos++
	}
	if len(groups) == 1 {
		return groups[0], nil
	}
	return "(" + strings.Join(groups, " OR ") + ")", nil
}

func (p *filterParser) group() (string, error) {
	var conds []string
loop:
	for p.pos < len(p.terms) {
		switch p.peek() {
		case "or", ")":
			break loop
		case "and":
			p.pos++
			continue
		case "(":
			p.pos++
			cond, err := p.expr()
			if err != nil {
				return "", err
			}
			if p.peek() != ")" {
				return "", fmt.Errorf("filter: missing )")
			}
			p.pos++
			conds = append(conds, cond)
			continue
		}
		cond, args, err := compileTerm(p.terms[p.pos], p.now)
		if err != nil {
			return "", err
		}
		p.pos++
		conds = append(conds, cond)
		p.args = append(p.args, args...)
	}
	if len(conds) == 0 {
		return "", fmt.Errorf("filter: empty expression")
	}
	return "(" + strings.Join(conds, " AND ") + ")", nil
}

func compileTerm(term string, now time.Time) (string, []any, error) {
	switch {
	case strings.HasPrefix(term, "+") && len(term) > 1:
		return `(' ' || tags || ' ') LIKE ?`, []any{"% " + term[1:] + " %"}, nil
	case strings.HasPrefix(term, "-") && len(term) > 1:
		return `(' ' || tags || ' ') NOT LIKE ?`, []any{"% " + term[1:] + " %"}, nil
	}
	name, value, ok := strings.Cut(term, ":")
	if !ok {
		return `description LIKE ?`, []any{"%" + term + "%"}, nil
	}
	switch canonicalAttribute(name) {
	case "project":
		if value == "" {
			return `project = ''`, nil, nil
		}
		return `(project = ? OR project LIKE ?)`, []any{value, value + ".%"}, nil
	case "priority":
		p, err := task.ParsePriority(value)
		if err != nil {
			return "", nil, err
		}
		return `priority = ?`, []any{string(p)}, nil
	case "status":
		if !task.Status(value).Valid() {
			return "", nil, fmt.Errorf("filter: unknown status %q", value)
		}
		return `status = ?`, []any{value}, nil
	case "uuid":
		return `uuid LIKE ?`, []any{value + "%"}, nil
	case "description":
		return `description LIKE ?`, []any{"%" + value + "%"}, nil
	case "due":
		if value == "" {
			return `due IS NULL`, nil, nil
		}
		day, err := parseDate(value, now)
		if err != nil {
			return "", nil, fmt.Errorf("filter: due: %w", err)
		}
		return `substr(due, 1, 10) = substr(?, 1, 10)`, []any{day.String}, nil
	case "due.before", "due.after":
		bound, err := parseDate(value, now)
		if err != nil || !bound.Valid {
			return "", nil, fmt.Errorf("filter: %s needs a date", name)
		}
		op := "<"
		if canonicalAttribute(name) == "due.after" {
			op = ">"
		}
		return `(due IS NOT NULL AND due ` + op + ` ?)`, []any{bound.String}, nil
	default:
		return "", nil, fmt.Errorf("filter: unsupported attribute %q", name)
	}
}
