package assistant

import (
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindCreateTask, KindCreateList, KindUpdateTask, KindDeleteTask, KindSearchTasks} {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("unknown"); got != KindUnknown {
		t.Errorf("ParseKind(unknown) = %v", got)
	}
	if got := ParseKind("launch_rocket"); got != KindUnknown {
		t.Errorf("ParseKind(launch_rocket) = %v", got)
	}
}

func TestScanDirectives_Single(t *testing.T) {
	got := ScanDirectives(`Sure! {"action":"create_task","data":{"title":"Buy milk"}} done.`, nil)
	if len(got) != 1 {
		t.Fatalf("got %d directives, want 1", len(got))
	}
	if got[0].Kind != KindCreateTask {
		t.Errorf("Kind = %v, want create_task", got[0].Kind)
	}
	if title := got[0].Data.Get("title").String(); title != "Buy milk" {
		t.Errorf("title = %q, want Buy milk", title)
	}
}

func TestScanDirectives_SkipsMalformed(t *testing.T) {
	text := strings.Join([]string{
		`First {"action":"create_task","data":{"title":"one"}}`,
		`then a broken one {"action": "create_task", "data": {title: oops}}`,
		"```json\n" + `{"action":"search_tasks","data":{"query":"milk"}}` + "\n```",
		`no data here {"action":"delete_task"}`,
		`data is not an object {"action":"delete_task","data":"7"}`,
		`a stray { brace`,
		`{"action":"update_task","data":{"task_id":3,"title":"has } brace"}}`,
		`and an unclosed {"action":"create_list","data":{"name":"x"}`,
	}, "\n")

	got := ScanDirectives(text, nil)
	want := []Kind{KindCreateTask, KindSearchTasks, KindUpdateTask}
	if len(got) != len(want) {
		t.Fatalf("got %d directives, want %d: %+v", len(got), len(want), got)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("directive %d = %v, want %v", i, got[i].Kind, k)
		}
	}
	if title := got[2].Data.Get("title").String(); title != "has } brace" {
		t.Errorf("brace inside string mishandled: %q", title)
	}
}

func TestScanDirectives_UnknownActionKept(t *testing.T) {
	got := ScanDirectives(`{"action":"launch_rocket","data":{}}`, nil)
	if len(got) != 1 || got[0].Kind != KindUnknown || got[0].Action != "launch_rocket" {
		t.Errorf("got %+v", got)
	}
}

func TestScanDirectives_LoosePassForDeepNesting(t *testing.T) {
	// Nested beyond the strict depth: only the loose pass accepts it.
	text := `Here: {"action":"create_task","data":{"title":"deep","meta":{"source":{"kind":"chat"}}}}`
	got := ScanDirectives(text, nil)
	if len(got) != 1 || got[0].Data.Get("title").String() != "deep" {
		t.Fatalf("got %+v", got)
	}
}

func TestScanDirectives_StrictFindsInnerDirectives(t *testing.T) {
	text := `{"actions":[{"action":"delete_task","data":{"task_id":1}},{"action":"delete_task","data":{"task_id":2}}]}`
	got := ScanDirectives(text, nil)
	if len(got) != 2 {
		t.Fatalf("got %d directives, want 2", len(got))
	}
	if got[0].Data.Get("task_id").Int() != 1 || got[1].Data.Get("task_id").Int() != 2 {
		t.Errorf("order not preserved: %+v", got)
	}
}

func TestScanDirectives_PlainText(t *testing.T) {
	for _, text := range []string{"", "just words", "{}", "{ not json }", `{"title":"no action"}`, "}{"} {
		if got := ScanDirectives(text, nil); len(got) != 0 {
			t.Errorf("ScanDirectives(%q) = %+v, want none", text, got)
		}
	}
}

func TestParseDirective(t *testing.T) {
	d, err := ParseDirective(`{"action":"create_list","data":{"name":"Work"},"extra":1}`)
	if err != nil {
		t.Fatalf("ParseDirective: %v", err)
	}
	if d.Kind != KindCreateList || d.Data.Get("name").String() != "Work" {
		t.Errorf("ParseDirective = %+v", d)
	}
	for _, raw := range []string{`[]`, `{"action":1,"data":{}}`, `{"data":{}}`, `{"action":"x"}`, `{"action":"x","data":[1]}`, `{`} {
		if _, err := ParseDirective(raw); err == nil {
			t.Errorf("ParseDirective(%s) should fail", raw)
		}
	}
}
