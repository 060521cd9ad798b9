package task

import (
	"testing"
	"time"
)

const sampleExport = `[
{"id":1,"description":"Write report","entry":"20240101T120000Z","project":"work","status":"pending","tags":["office","office","urgent"],"uuid":"6f1c7f5e-2b7a-4a43-9f6c-0e8f2b6c1a01","urgency":8.2,"priority":"H","due":"20240110T000000Z","annotations":[{"entry":"20240102T090000Z","description":"draft sent"}]},
{"id":0,"description":"Pay rent","entry":"20231201T120000Z","status":"completed","uuid":"0d0a9a7b-5d55-4c5b-8a77-3b0b9c9f0e02","urgency":0}
]`

func TestDecodeExport(t *testing.T) {
	tasks, err := Decode([]byte(sampleExport))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	first := tasks[0]
	if first.Description != "Write report" || first.Project != "work" {
		t.Fatalf("unexpected first task: %+v", first)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "office" || first.Tags[1] != "urgent" {
		t.Fatalf("expected deduplicated ordered tags, got %v", first.Tags)
	}
	if first.Priority != PriorityHigh {
		t.Fatalf("expected priority H, got %q", first.Priority)
	}
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !first.Due.Equal(want) {
		t.Fatalf("expected due %v, got %v", want, first.Due)
	}
	if len(first.Annotations) != 1 || first.Annotations[0].Description != "draft sent" {
		t.Fatalf("unexpected annotations: %+v", first.Annotations)
	}
	if tasks[1].Status != StatusCompleted || tasks[1].HasDue() {
		t.Fatalf("unexpected second task: %+v", tasks[1])
	}
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"not json":   `[{`,
		"bad uuid":   `[{"uuid":"nope","status":"pending"}]`,
		"bad status": `[{"uuid":"6f1c7f5e-2b7a-4a43-9f6c-0e8f2b6c1a01","status":"sleeping"}]`,
		"bad date":   `[{"uuid":"6f1c7f5e-2b7a-4a43-9f6c-0e8f2b6c1a01","status":"pending","due":"tomorrow"}]`,
	}
	for name, data := range cases {
		if _, err := Decode([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecodeEmptyOutput(t *testing.T) {
	tasks, err := Decode([]byte("  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

func TestProjectsAndTagsAreDistinct(t *testing.T) {
	tasks := []Task{
		{Project: "work", Tags: []string{"a", "b"}},
		{Project: "home", Tags: []string{"b"}},
		{Project: "work"},
		{Tags: []string{"c"}},
	}
	projects := Projects(tasks)
	if len(projects) != 2 || projects[0] != "work" || projects[1] != "home" {
		t.Fatalf("unexpected projects: %v", projects)
	}
	tags := Tags(tasks)
	if len(tags) != 3 || tags[2] != "c" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}
