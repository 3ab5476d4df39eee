package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/GoCodeAlone/taskpilot/task"
	"github.com/GoCodeAlone/taskpilot/user"
)

// Canned replies used when no task could be derived from the message.
const (
	replyCreateHelp = "Sure, I can create tasks for you. Tell me the details, for example:\n\n" +
		"• \"create task: finish the project report\"\n" +
		"• \"明天下午3点开会\"\n" +
		"• \"remind me to call mom tomorrow at 5pm\"\n\n" +
		"I understand plain language and set dates, times and priority automatically. 📝"
	replyFind        = "I can help you find tasks! Use the search box and enter keywords from a task's title or description. 🔍"
	replyMorning     = "Good morning! Any plans for today? 🌟 I can help you create and organize today's tasks."
	replyAfternoon   = "Good afternoon! Want me to help tidy up your tasks or make a plan?"
	replyEvening     = "Good evening! Did you get your tasks done today? I can help plan tomorrow."
	replyStatsFailed = "Sorry, I couldn't load your task statistics."
	replyHelp        = "I can help you:\n" +
		"📋 create, edit and organize tasks\n" +
		"🔍 find and search tasks\n" +
		"📊 summarize your progress\n" +
		"⭐ set priorities\n" +
		"📅 manage due dates\n" +
		"💡 suggest ways to manage your time\n\n" +
		"What would you like to do?"
	replyDefault = "I understand. I'm running in basic mode right now, but I can still manage your tasks. " +
		"Try asking me to create a task, find tasks or summarize your progress. 🤝"
)

var (
	createWords    = []string{"创建", "新建", "添加", "任务", "create", "add", "new task", "task"}
	findWords      = []string{"查找", "搜索", "找", "find", "search", "look for"}
	summarizeWords = []string{"总结", "统计", "报告", "summary", "summarize", "stats", "report", "progress"}
	greetWords     = []string{"你好", "嗨", "早上好", "下午好", "晚上好", "hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
	helpWords      = []string{"帮助", "怎么用", "功能", "help", "how to", "what can you do"}
)

// Fallback answers without a language model: it creates a task when one can
// be extracted from the message and otherwise picks a canned reply.
type Fallback struct {
	tasks  task.Store
	exec   *Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewFallback creates a Fallback that creates tasks through exec.
func NewFallback(tasks task.Store, exec *Executor, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{tasks: tasks, exec: exec, logger: logger, now: time.Now}
}

// Respond returns the reply text and, when a task was attempted, its outcome.
func (f *Fallback) Respond(ctx context.Context, message string) (string, []Outcome) {
	now := f.now()
	if in, err := Extract(message, now); err == nil {
		d, err := intentDirective(in)
		if err != nil {
			f.logger.Error("build create_task directive", slog.Any("err", err))
			return replyDefault, nil
		}
		out := f.exec.Execute(ctx, d)
		return confirmation(in, out), []Outcome{out}
	}
	return f.canned(ctx, message, now), nil
}

// intentDirective renders an intent as a create_task directive.
func intentDirective(in *Intent) (Directive, error) {
	raw := `{"action":"create_task","data":{}}`
	var err error
	set := func(path string, v any) {
		if err == nil {
			raw, err = sjson.Set(raw, path, v)
		}
	}
	set("data.title", in.Title)
	set("data.description", in.Description)
	set("data.priority", string(in.Priority))
	set("data.is_important", in.IsImportant)
	if in.DueDate != "" {
		set("data.due_date", in.DueDate)
	}
	if in.StartTime != "" {
		set("data.start_time", in.StartTime)
		set("data.end_time", in.EndTime)
	}
	if in.ListName != "" {
		set("data.list_name", in.ListName)
	}
	if err != nil {
		return Directive{}, err
	}
	return ParseDirective(raw)
}

func confirmation(in *Intent, out Outcome) string {
	if !out.Success {
		return "❌ Could not create the task: " + out.Error
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Task created: %q", in.Title)
	if in.DueDate != "" {
		fmt.Fprintf(&b, "\n📅 Due: %s", in.DueDate)
	}
	if in.StartTime != "" {
		fmt.Fprintf(&b, "\n⏰ Time: %s–%s", in.StartTime, in.EndTime)
	}
	if in.Priority != task.PriorityMedium {
		fmt.Fprintf(&b, "\n🔴 Priority: %s", in.Priority)
	}
	if in.IsImportant {
		b.WriteString("\n⭐ Marked as important")
	}
	if in.ListName != "" {
		fmt.Fprintf(&b, "\n📋 List: %s", in.ListName)
	}
	b.WriteString("\n\nAnything else I can help with?")
	return b.String()
}

func (f *Fallback) canned(ctx context.Context, message string, now time.Time) string {
	folded := fold(message)
	switch {
	case containsAny(folded, createWords):
		return replyCreateHelp
	case containsAny(folded, findWords):
		return replyFind
	case containsAny(folded, summarizeWords):
		return f.summary(ctx, now)
	case containsAnyWord(folded, greetWords):
		switch h := now.Hour(); {
		case h < 12:
			return replyMorning
		case h < 18:
			return replyAfternoon
		default:
			return replyEvening
		}
	case containsAny(folded, helpWords):
		return replyHelp
	}
	return replyDefault
}

func (f *Fallback) summary(ctx context.Context, now time.Time) string {
	uid, ok := user.UserIDFromContext(ctx)
	if !ok {
		return replyStatsFailed
	}
	st, err := f.tasks.Stats(ctx, uid, now)
	if err != nil {
		f.logger.Warn("fallback stats", slog.Any("err", err))
		return replyStatsFailed
	}
	return fmt.Sprintf("📊 **Task summary**\n\n• Total: %d\n• Completed: %d\n• Pending: %d\n• Completion rate: %.1f%%\n\nKeep it up! 💪",
		st.Total, st.Completed, st.Pending, st.CompletionRate)
}
