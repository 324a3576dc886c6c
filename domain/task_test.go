package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestStatusChoices(t *testing.T) {
	valid := []Status{StatusTodo, StatusInProgress, StatusInReview, StatusDone}
	for _, s := range valid {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
		if s.Label() == string(s) {
			t.Fatalf("expected a display label for %q", s)
		}
	}
	if Status("bogus").Valid() {
		t.Fatal("expected bogus status to be invalid")
	}
	if got := StatusInProgress.Label(); got != "In Progress" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestPriorityChoices(t *testing.T) {
	valid := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for _, p := range valid {
		if !p.Valid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Fatal("expected urgent priority to be invalid")
	}
	if got := PriorityCritical.Label(); got != "Critical" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestBoardMeta(t *testing.T) {
	meta := Board()
	if meta.DefaultProjectKey != "BOARD" {
		t.Fatalf("unexpected default project key: %q", meta.DefaultProjectKey)
	}
	if len(meta.Statuses) != 4 {
		t.Fatalf("expected 4 statuses, got %d", len(meta.Statuses))
	}
	if len(meta.Priorities) != 4 {
		t.Fatalf("expected 4 priorities, got %d", len(meta.Priorities))
	}
	for _, c := range append(meta.Statuses, meta.Priorities...) {
		if c.Value == "" || c.Label == "" {
			t.Fatalf("choice missing value or label: %#v", c)
		}
	}
}

func TestTaskMarshalIncludesZeroOrder(t *testing.T) {
	task := Task{ID: 1, Title: "Title", Status: StatusTodo, Order: 0}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"order\":0") {
		t.Fatalf("expected order field to be present, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"due_date\":null") {
		t.Fatalf("expected null due_date, got %s", payload)
	}
}

func TestDateJSON(t *testing.T) {
	d, err := ParseDate("2026-03-14")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	payload, err := sonic.Marshal(d)
	if err != nil {
		t.Fatalf("marshal date: %v", err)
	}
	if string(payload) != `"2026-03-14"` {
		t.Fatalf("unexpected date payload: %s", payload)
	}

	var parsed Date
	if err := parsed.UnmarshalJSON([]byte(`"2026-03-14"`)); err != nil {
		t.Fatalf("unmarshal date: %v", err)
	}
	if parsed.String() != "2026-03-14" {
		t.Fatalf("unexpected date: %s", parsed)
	}

	if _, err := ParseDate("14.03.2026"); err == nil {
		t.Fatal("expected error for wrong date format")
	}
}
