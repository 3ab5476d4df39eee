package assistant

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the closed set of actions a directive can request.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreateTask
	KindCreateList
	KindUpdateTask
	KindDeleteTask
	KindSearchTasks
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindCreateTask:  "create_task",
	KindCreateList:  "create_list",
	KindUpdateTask:  "update_task",
	KindDeleteTask:  "delete_task",
	KindSearchTasks: "search_tasks",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ParseKind maps a wire action name to its Kind.
func ParseKind(action string) Kind {
	for k, name := range kindNames {
		if Kind(k) != KindUnknown && name == action {
			return Kind(k)
		}
	}
	return KindUnknown
}

// Directive is one action request found in a model reply.
type Directive struct {
	Kind   Kind
	Action string // as written, kept for unknown kinds
	Data   gjson.Result
	Raw    string
}

// ParseDirective validates one JSON object as a directive. It must have a
// string "action" and an object "data".
func ParseDirective(raw string) (Directive, error) {
	if !gjson.Valid(raw) {
		return Directive{}, fmt.Errorf("invalid JSON")
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return Directive{}, fmt.Errorf("not an object")
	}
	action := doc.Get("action")
	if action.Type != gjson.String {
		return Directive{}, fmt.Errorf("missing string field %q", "action")
	}
	data := doc.Get("data")
	if !data.IsObject() {
		return Directive{}, fmt.Errorf("missing object field %q", "data")
	}
	return Directive{
		Kind:   ParseKind(action.String()),
		Action: action.String(),
		Data:   data,
		Raw:    raw,
	}, nil
}

// Nesting limits for the two scan passes. A directive is an object holding a
// flat data object, so the strict pass stops at two levels.
const (
	strictDepth = 2
	looseDepth  = 16
)

type span struct{ start, end int } // text[start:end]

// ScanDirectives returns the directives embedded in text in order of
// appearance. Malformed candidates are logged and skipped.
func ScanDirectives(text string, logger *slog.Logger) []Directive {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Directive
	for _, sp := range directiveSpans(text) {
		raw := text[sp.start:sp.end]
		d, err := ParseDirective(raw)
		if err != nil {
			logger.Debug("skip directive candidate", slog.String("candidate", raw), slog.Any("err", err))
			continue
		}
		out = append(out, d)
	}
	return out
}

// directiveSpans finds candidate objects: the strict pass first, and the
// loose pass only when the strict one finds nothing.
func directiveSpans(text string) []span {
	if spans := scanObjects(text, strictDepth); len(spans) > 0 {
		return spans
	}
	return scanObjects(text, looseDepth)
}

// scanObjects walks text for brace-balanced objects no deeper than maxDepth
// that mention "action". Braces inside JSON strings are ignored. An opening
// brace that never closes, or nests too deep, is skipped and scanning resumes
// at the next character.
func scanObjects(text string, maxDepth int) []span {
	var spans []span
	for i := 0; i < len(text); {
		if text[i] != '{' {
			i++
			continue
		}
		end, depth := matchBrace(text, i)
		if end < 0 || depth > maxDepth || !strings.Contains(text[i:end], `"action"`) {
			i++
			continue
		}
		spans = append(spans, span{i, end})
		i = end
	}
	return spans
}

// matchBrace returns the index just past the brace matching text[start] and
// the deepest nesting seen, or -1 when the object is never closed.
func matchBrace(text string, start int) (int, int) {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
			if depth > deepest {
				deepest = depth
			}
		case '}':
			depth--
			if depth == 0 {
				return i + 1, deepest
			}
		}
	}
	return -1, deepest
}
