package assistant

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emptyFence = regexp.MustCompile("```[a-zA-Z]*\\s*```")
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// Compose folds directive outcomes into the model's reply. With no outcomes
// the reply is returned unchanged. Otherwise directive text is removed and
// one line per outcome is appended, successes first.
func Compose(reply string, outcomes []Outcome) string {
	if len(outcomes) == 0 {
		return reply
	}

	var lines []string
	for _, o := range outcomes {
		if o.Success {
			lines = append(lines, successLine(o))
		}
	}
	for _, o := range outcomes {
		if !o.Success {
			lines = append(lines, "❌ Action failed: "+o.Error)
		}
	}
	summary := strings.Join(lines, "\n")

	clean := StripDirectives(reply)
	if clean == "" {
		return summary
	}
	return clean + "\n\n" + summary
}

func successLine(o Outcome) string {
	if o.Kind != KindSearchTasks {
		return "✅ " + o.Message
	}
	var b strings.Builder
	b.WriteString("🔍 " + o.Message)
	for _, t := range o.Results {
		fmt.Fprintf(&b, "\n  • %s (#%d)", t.Title, t.ID)
	}
	return b.String()
}

// StripDirectives removes every directive-shaped object from text, along
// with code fences left empty, and trims the result.
func StripDirectives(text string) string {
	spans := directiveSpans(text)
	if len(spans) == 0 {
		return strings.TrimSpace(text)
	}
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		prev = sp.end
	}
	b.WriteString(text[prev:])

	out := emptyFence.ReplaceAllString(b.String(), "")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
