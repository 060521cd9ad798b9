// Package completion proposes candidates for the token under the cursor of a
// filter or command line. Results are recomputed from the buffer on every
// call; only Tab cycling keeps state.
package completion

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"taskdash/internal/task"
)

type Kind int

const (
	KindNone Kind = iota
	KindCommand
	KindAttribute
	KindProject
	KindTag
	KindPriority
	KindStatus
	KindDue
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindAttribute:
		return "attribute"
	case KindProject:
		return "project"
	case KindTag:
		return "tag"
	case KindPriority:
		return "priority"
	case KindStatus:
		return "status"
	case KindDue:
		return "due"
	case KindUUID:
		return "uuid"
	default:
		return "none"
	}
}

var Commands = []string{"add", "annotate", "delete", "done", "modify", "start", "stop", "sync", "undo"}

var attributeNames = []string{"description:", "due:", "priority:", "project:", "status:", "uuid:"}

var dueKeywords = []string{"today", "tomorrow", "eow", "eom", "eoy", "monday", "friday"}

// prefixes are matched longest first.
var prefixes = []struct {
	text string
	kind Kind
}{
	{"priority:", KindPriority},
	{"project:", KindProject},
	{"status:", KindStatus},
	{"proj:", KindProject},
	{"uuid:", KindUUID},
	{"pri:", KindPriority},
	{"pro:", KindProject},
	{"due:", KindDue},
	{"+", KindTag},
	{"-", KindTag},
}

// Token is the span of the buffer being completed. Prefix is the recognised
// leading part kept on replacement, Query what the user has typed after it.
type Token struct {
	Start  int
	End    int
	Prefix string
	Query  string
}

type Result struct {
	Kind       Kind
	Token      Token
	Candidates []string
}

// Request describes one completion. Cursor is a rune offset into Buffer.
type Request struct {
	Buffer   string
	Cursor   int
	Commands bool
	Fuzzy    bool
	Tasks    []task.Task
}

func Complete(req Request) Result {
	runes := []rune(req.Buffer)
	cursor := clamp(req.Cursor, 0, len(runes))
	start, end := tokenBounds(runes, cursor)
	typed := string(runes[start:cursor])

	res := Result{Token: Token{Start: start, End: end}}
	res.Kind, res.Token.Prefix = detect(runes[:start], typed, req.Commands)
	res.Token.Query = strings.TrimPrefix(typed, res.Token.Prefix)
	res.Token.Query = strings.Trim(res.Token.Query, `"`)
	res.Candidates = rank(res.Token.Query, candidates(res.Kind, req.Tasks), req.Fuzzy)
	return res
}

func detect(before []rune, typed string, commands bool) (Kind, string) {
	for _, p := range prefixes {
		if strings.HasPrefix(typed, p.text) {
			return p.kind, p.text
		}
	}
	if commands && commandPosition(string(before)) {
		return KindCommand, ""
	}
	return KindAttribute, ""
}

// commandPosition reports whether the next word is the command verb: the
// first word, or the second one after a leading "task".
func commandPosition(before string) bool {
	words := strings.Fields(before)
	switch len(words) {
	case 0:
		return true
	case 1:
		return words[0] == "task"
	default:
		return false
	}
}

func candidates(kind Kind, tasks []task.Task) []string {
	switch kind {
	case KindCommand:
		return Commands
	case KindAttribute:
		return attributeNames
	case KindProject:
		return task.Projects(tasks)
	case KindTag:
		return task.Tags(tasks)
	case KindPriority:
		return []string{string(task.PriorityHigh), string(task.PriorityMedium), string(task.PriorityLow)}
	case KindStatus:
		out := make([]string, 0, len(task.Statuses))
		for _, s := range task.Statuses {
			out = append(out, string(s))
		}
		return out
	case KindDue:
		return dueKeywords
	case KindUUID:
		out := make([]string, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, t.UUID.String())
		}
		return out
	}
	return nil
}

// rank deduplicates, puts prefix matches first in lexicographic order and,
// when fuzzy is set, appends the remaining fuzzy matches by score.
func rank(query string, pool []string, fuzzyMatch bool) []string {
	seen := make(map[string]struct{}, len(pool))
	var prefixed, rest []string
	for _, c := range pool {
		if _, dup := seen[c]; dup || c == "" {
			continue
		}
		seen[c] = struct{}{}
		if strings.HasPrefix(c, query) {
			prefixed = append(prefixed, c)
		} else {
			rest = append(rest, c)
		}
	}
	sort.Strings(prefixed)
	if !fuzzyMatch || query == "" || len(rest) == 0 {
		return prefixed
	}
	for _, m := range fuzzy.Find(query, rest) {
		prefixed = append(prefixed, m.Str)
	}
	return prefixed
}

// tokenBounds returns the whitespace-delimited word around cursor. A quoted
// section counts as part of the word.
func tokenBounds(runes []rune, cursor int) (int, int) {
	inQuote := false
	start := 0
	for i := 0; i < cursor; i++ {
		switch {
		case runes[i] == '"':
			inQuote = !inQuote
		case unicode.IsSpace(runes[i]) && !inQuote:
			start = i + 1
		}
	}
	end := cursor
	for end < len(runes) {
		if runes[end] == '"' {
			inQuote = !inQuote
		} else if unicode.IsSpace(runes[end]) && !inQuote {
			break
		}
		end++
	}
	return start, end
}

// Replacement is the text that replaces the token for candidate i.
func (r Result) Replacement(i int, quote bool) string {
	c := r.Candidates[i]
	if quote && strings.ContainsFunc(c, unicode.IsSpace) {
		c = `"` + c + `"`
	}
	return r.Token.Prefix + c
}

// Apply substitutes candidate i into buffer and returns the new buffer and
// cursor. The cursor keeps its distance from the end of the token.
func (r Result) Apply(buffer string, cursor, i int, quote bool) (string, int) {
	runes := []rune(buffer)
	repl := []rune(r.Replacement(i, quote))
	fromEnd := r.Token.End - clamp(cursor, r.Token.Start, r.Token.End)

	out := make([]rune, 0, len(runes)-(r.Token.End-r.Token.Start)+len(repl))
	out = append(out, runes[:r.Token.Start]...)
	out = append(out, repl...)
	out = append(out, runes[r.Token.End:]...)

	newCursor := r.Token.Start + len(repl) - fromEnd
	return string(out), clamp(newCursor, r.Token.Start, r.Token.Start+len(repl))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
