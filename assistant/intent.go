package assistant

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/GoCodeAlone/taskpilot/task"
)

// ErrNoTitle is returned by Extract when no task title can be derived.
var ErrNoTitle = errors.New("no task title in message")

// Intent is the task described by a free-form message.
type Intent struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    task.Priority `json:"priority"`
	DueDate     string        `json:"due_date,omitempty"`
	StartTime   string        `json:"start_time,omitempty"`
	EndTime     string        `json:"end_time,omitempty"`
	IsImportant bool          `json:"is_important"`
	ListName    string        `json:"list_name,omitempty"`
}

// Title patterns, tried in order. The first capture group is the title.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)创建(?:一个)?任务[：:]\s*(.+)`),
	regexp.MustCompile(`(?i)新建(?:一个)?任务[：:]\s*(.+)`),
	regexp.MustCompile(`(?i)添加(?:一个)?任务[：:]\s*(.+)`),
	regexp.MustCompile(`(?i)(?:create|add|new)\s+(?:a\s+)?task\s*:\s*(.+)`),
	regexp.MustCompile(`(?i)任务[：:]\s*(.+)`),
	regexp.MustCompile(`(?i)提醒我?(.+)`),
	regexp.MustCompile(`(?i)\bremind\s+me\s+(?:to\s+)?(.+)`),
	regexp.MustCompile(`(?i)我需要?(.+)`),
	regexp.MustCompile(`(?i)\bI\s+need\s+(?:to\s+)?(.+)`),
	regexp.MustCompile(`(?i)帮我(.+)`),
	regexp.MustCompile(`(?i)\bhelp\s+me\s+(?:to\s+)?(.+)`),
	regexp.MustCompile(`(?i)(.+)任务`),
	regexp.MustCompile(`(?i)^(.+?)\s+task$`),
}

// Leading conversational filler stripped when no title pattern matched.
var fillerPattern = regexp.MustCompile(`(?i)^(?:你好|请问|帮我|可以|能否|我想|我要|需要|(?:hello|hi|hey|please|help me|i want to|i want|i need to|i need)\b)[\s,，。！!]*`)

// Messages that are conversation rather than a task once filler is removed.
var conversational = map[string]bool{
	"你好": true, "嗨": true, "早上好": true, "下午好": true, "晚上好": true, "谢谢": true,
	"帮助": true, "怎么用": true, "功能": true, "总结": true, "统计": true, "报告": true,
	"hello": true, "hi": true, "hey": true, "thanks": true, "thank you": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"help": true, "summary": true, "stats": true, "report": true,
}

// Requests about the assistant itself rather than a task: a bare create
// command, or anything opening with a search verb.
var (
	createRequests = map[string]bool{
		"创建": true, "新建": true, "添加": true, "任务": true,
		"创建任务": true, "新建任务": true, "添加任务": true, "创建一个任务": true, "添加一个任务": true,
		"create": true, "add": true, "task": true, "new task": true,
		"create task": true, "create a task": true, "add task": true, "add a task": true,
	}
	searchVerbs = []string{"查找", "搜索", "找", "find", "search", "look for", "look up"}
)

// Priority keyword sets. High is checked first. ASCII keywords match whole
// words only.
var (
	highPriorityWords = []string{"高优先", "优先级高", "重要", "紧急", "优先处理", "马上", "立即", "urgent", "important", "high priority", "asap"}
	lowPriorityWords  = []string{"低优先", "优先级低", "不急", "稍后", "有空", "low priority", "later", "someday"}
	importantWords    = []string{"重要", "关键", "核心", "必须", "一定", "star", "important", "critical", "must"}
)

// dateRule maps phrases to a day offset. offset < 0 means "the coming Sunday".
type dateRule struct {
	phrases []string
	offset  int
}

const untilSunday = -1

var dateRules = []dateRule{
	{[]string{"今天", "today"}, 0},
	{[]string{"day after tomorrow"}, 2},
	{[]string{"明天", "tomorrow"}, 1},
	{[]string{"后天"}, 2},
	{[]string{"本周", "这周", "this week"}, untilSunday},
	{[]string{"下周", "next week"}, 7},
}

// Clock patterns, tried in order. Group 1 is the hour, group 2 the minutes.
var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,2})[点时](半|\d{0,2})`),
	regexp.MustCompile(`(\d{1,2}):(\d{2})`),
	regexp.MustCompile(`上午(\d{1,2})[点时](半|\d{0,2})`),
	regexp.MustCompile(`下午(\d{1,2})[点时](半|\d{0,2})`),
	regexp.MustCompile(`(?i)\b(\d{1,2})()\s*[ap]\.?m\b`),
}

var meridiemPattern = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*([ap])\.?m\b`)

// List patterns, tried in order. Group 1 is the list name.
var listPatterns = []*regexp.Regexp{
	regexp.MustCompile(`在["“”]?([^"“”]+?)["“”]?列表`),
	regexp.MustCompile(`添加到["“”]?([^"“”，,。！!？?\s]+)`),
	regexp.MustCompile(`放到["“”]?([^"“”，,。！!？?\s]+)`),
	regexp.MustCompile(`(?i)\bin\s+(?:the\s+|my\s+)?["“]?([^"“”]+?)["”]?\s+list\b`),
	regexp.MustCompile(`(?i)\badd\s+(?:it\s+)?to\s+(?:the\s+|my\s+)?["“]?([^"“”,.!?]+?)["”]?(?:\s+list)?(?:[,.!?]|$)`),
	regexp.MustCompile(`(?i)\bput\s+(?:it\s+)?in(?:to)?\s+(?:the\s+|my\s+)?["“]?([^"“”,.!?]+?)["”]?(?:\s+list)?(?:[,.!?]|$)`),
}

// fold case-folds s. Casers carry state, so each call gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// Extract derives a task intent from one message. It is a pure function of
// its arguments. ErrNoTitle is returned when nothing but conversational
// filler remains.
func Extract(message string, now time.Time) (*Intent, error) {
	msg := strings.TrimSpace(width.Fold.String(message))
	folded := fold(msg)
	if isRequest(fold(trimPunct(stripFiller(msg)))) {
		return nil, ErrNoTitle
	}

	title, explicit := matchTitle(msg)
	if !explicit {
		title = stripFiller(msg)
		if conversational[fold(trimPunct(title))] {
			return nil, ErrNoTitle
		}
	}

	in := &Intent{
		Priority:    resolvePriority(folded),
		IsImportant: containsAny(folded, importantWords),
		ListName:    resolveList(msg),
	}
	var datePhrase, timeSpan string
	in.DueDate, datePhrase = resolveDate(folded, now)
	in.StartTime, in.EndTime, timeSpan = resolveTime(msg)

	title = stripSchedule(title, datePhrase, timeSpan)
	if trimPunct(title) == "" {
		return nil, ErrNoTitle
	}
	in.Title = title
	return in, nil
}

func matchTitle(msg string) (string, bool) {
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if t := strings.TrimSpace(m[1]); t != "" {
				return t, true
			}
		}
	}
	return "", false
}

func stripFiller(msg string) string {
	for {
		next := strings.TrimSpace(fillerPattern.ReplaceAllString(msg, ""))
		if next == msg {
			return msg
		}
		msg = next
	}
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
}

// isRequest reports whether a filler-free, folded message asks how to create
// or find tasks instead of describing one.
func isRequest(rest string) bool {
	if createRequests[rest] {
		return true
	}
	for _, v := range searchVerbs {
		if rest == v {
			return true
		}
		if isASCIILetter(v[0]) {
			if strings.HasPrefix(rest, v+" ") {
				return true
			}
		} else if v != "找" && strings.HasPrefix(rest, v) {
			return true
		}
	}
	return false
}

// containsAny reports whether s holds one of words. ASCII keywords must
// stand as whole words ("high" does not match "highway").
func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && isASCIILetter(w[0]) {
			if containsAnyWord(s, []string{w}) {
				return true
			}
		} else if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// containsAnyWord is containsAny for keywords that must not match inside
// longer English words ("hi" in "this").
func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		i := strings.Index(s, w)
		for i >= 0 {
			before := i == 0 || !isASCIILetter(s[i-1])
			after := i+len(w) >= len(s) || !isASCIILetter(s[i+len(w)])
			if before && after {
				return true
			}
			next := strings.Index(s[i+1:], w)
			if next < 0 {
				break
			}
			i += 1 + next
		}
	}
	return false
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func resolvePriority(folded string) task.Priority {
	switch {
	case containsAny(folded, highPriorityWords):
		return task.PriorityHigh
	case containsAny(folded, lowPriorityWords):
		return task.PriorityLow
	}
	return task.PriorityMedium
}

// resolveDate returns the due date and the phrase that produced it.
func resolveDate(folded string, now time.Time) (string, string) {
	for _, rule := range dateRules {
		for _, p := range rule.phrases {
			if !strings.Contains(folded, p) {
				continue
			}
			days := rule.offset
			if days == untilSunday {
				// Monday-based weekday: Monday 0 .. Sunday 6.
				days = 6 - (int(now.Weekday())+6)%7
			}
			return now.AddDate(0, 0, days).Format(task.DateLayout), p
		}
	}
	return "", ""
}

// resolveTime returns start and end clock times and the matched text.
func resolveTime(msg string) (string, string, string) {
	afternoon := strings.Contains(msg, "下午")
	morning := strings.Contains(msg, "上午")
	if m := meridiemPattern.FindStringSubmatch(msg); m != nil {
		afternoon = afternoon || strings.EqualFold(m[1], "p")
		morning = morning || strings.EqualFold(m[1], "a")
	}

	for _, re := range timePatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		minute := 0
		switch m[2] {
		case "":
		case "半":
			minute = 30
		default:
			if minute, err = strconv.Atoi(m[2]); err != nil {
				continue
			}
		}

		if afternoon && hour < 12 {
			hour += 12
		} else if morning && hour == 12 {
			hour = 0
		}
		if hour > 23 || minute > 59 {
			continue
		}
		start := fmt.Sprintf("%02d:%02d", hour, minute)
		end := fmt.Sprintf("%02d:%02d", (hour+1)%24, minute)
		return start, end, m[0]
	}
	return "", "", ""
}

func resolveList(msg string) string {
	for _, re := range listPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

var trailingPreposition = regexp.MustCompile(`(?i)\s+(?:at|on|by)$`)

// stripSchedule removes the date phrase and clock expression from a title,
// keeping the original when nothing would remain.
func stripSchedule(title, datePhrase, timeSpan string) string {
	out := title
	if timeSpan != "" {
		out = strings.Replace(out, timeSpan, "", 1)
	}
	for _, marker := range []string{"上午", "下午"} {
		out = strings.Replace(out, marker, "", 1)
	}
	if datePhrase != "" {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(datePhrase))
		if loc := re.FindStringIndex(out); loc != nil {
			out = out[:loc[0]] + out[loc[1]:]
		}
	}
	out = strings.Join(strings.Fields(out), " ")
	out = trailingPreposition.ReplaceAllString(out, "")
	if trimPunct(out) == "" {
		return strings.TrimSpace(title)
	}
	return out
}
