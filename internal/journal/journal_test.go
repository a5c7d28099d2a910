package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
)

func chunkFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var chunks []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "events-") && strings.HasSuffix(e.Name(), ".ndjson") {
			chunks = append(chunks, e.Name())
		}
	}
	return chunks
}

func TestAppendAndFlush(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	j.AppendUpsert(UpsertEntry{
		Path:      "/vault/a.md",
		Extension: "md",
		Size:      100,
		Headings:  []models.HeadingInfo{{Text: "Intro", Level: 1, Line: 1}},
	})
	j.AppendDelete("/vault/b.md")
	if err := j.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := chunkFiles(t, dir); len(got) != 1 {
		t.Fatalf("chunk files: got %v", got)
	}

	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d", len(events))
	}
	if events[0].Op != OpUpsert || events[0].Path != "/vault/a.md" {
		t.Errorf("first event: got %+v", events[0])
	}
	if len(events[0].Headings) != 1 || events[0].Headings[0].Text != "Intro" {
		t.Errorf("headings: got %+v", events[0].Headings)
	}
	if events[1].Op != OpDelete || events[1].Path != "/vault/b.md" {
		t.Errorf("second event: got %+v", events[1])
	}
}

func TestLoadAllEventsIncludesUnflushed(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, WithFlushDelay(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	j.AppendUpsert(UpsertEntry{Path: "/vault/a.md", Extension: "md"})
	if got := chunkFiles(t, dir); len(got) != 0 {
		t.Fatalf("nothing should be on disk yet: %v", got)
	}
	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Path != "/vault/a.md" {
		t.Errorf("buffered event missing from load: %+v", events)
	}
}

func TestTimestampsStrictlyIncreasing(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, WithFlushDelay(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	for i := 0; i < 100; i++ {
		j.AppendDelete("/vault/a.md")
	}
	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp <= events[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing at %d: %d then %d",
				i, events[i-1].Timestamp, events[i].Timestamp)
		}
	}
}

func TestChunkRotation(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, WithChunkLimits(200, 5))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	for i := 0; i < 12; i++ {
		j.AppendUpsert(UpsertEntry{Path: "/vault/a.md", Extension: "md"})
		if err := j.Flush(); err != nil {
			t.Fatal(err)
		}
		// Chunk names are timestamped at nanosecond resolution; make sure
		// consecutive rotations land in distinct files.
		time.Sleep(time.Millisecond)
	}
	if got := chunkFiles(t, dir); len(got) < 2 {
		t.Fatalf("expected rotation into multiple chunks, got %v", got)
	}
	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 12 {
		t.Errorf("events across chunks: got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp < events[i-1].Timestamp {
			t.Fatal("events not sorted across chunks")
		}
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.AppendUpsert(UpsertEntry{Path: "/vault/a.md", Extension: "md"})
	if err := j.Flush(); err != nil {
		t.Fatal(err)
	}
	chunks := chunkFiles(t, dir)
	if len(chunks) != 1 {
		t.Fatal("expected one chunk")
	}
	garbage := "{not json\n\n" + `{"v":1,"ts":1,"op":"","path":""}` + "\n"
	path := filepath.Join(dir, chunks[0])
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(garbage); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Path != "/vault/a.md" {
		t.Errorf("malformed lines should be skipped, got %+v", events)
	}
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.AppendUpsert(UpsertEntry{Path: "/vault/a.md", Extension: "md"})
	if err := j.Flush(); err != nil {
		t.Fatal(err)
	}
	j.AppendDelete("/vault/a.md") // left buffered

	if err := j.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := chunkFiles(t, dir); len(got) != 0 {
		t.Errorf("chunks should be gone after reset: %v", got)
	}
	events, err := j.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("events after reset: got %+v", events)
	}
}

func TestAppendAfterCloseDropped(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	j.AppendUpsert(UpsertEntry{Path: "/vault/a.md", Extension: "md"})
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	j.AppendDelete("/vault/a.md")

	j2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j2.Close()
	events, err := j2.LoadAllEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Op != OpUpsert {
		t.Errorf("close should flush buffered events and drop later ones: %+v", events)
	}
}
