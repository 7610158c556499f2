package logging

import (
	"os"
	"strings"
	"testing"
)

func TestOpenNodeLogWritesHeader(t *testing.T) {
	dir := t.TempDir()
	nl, err := OpenNodeLog(dir, "plan-1", "node-a", 1)
	if err != nil {
		t.Fatalf("OpenNodeLog: %v", err)
	}
	nl.Append("work", LevelInfo, "running shell spec")
	nl.Close()

	content, err := ReadFrom(nl.Path(), 0)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	for _, want := range []string{
		"# plandeck node log",
		"# plan: plan-1",
		"# node: node-a",
		"# attempt: 1",
		"[work] [INFO] running shell spec",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestReopenAppendsAttemptBoundary(t *testing.T) {
	dir := t.TempDir()
	nl, err := OpenNodeLog(dir, "plan-1", "node-a", 1)
	if err != nil {
		t.Fatalf("OpenNodeLog: %v", err)
	}
	nl.Append("work", LevelError, "exit status 1")
	nl.Close()

	nl2, err := OpenNodeLog(dir, "plan-1", "node-a", 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	nl2.Close()

	content, _ := ReadFrom(nl2.Path(), 0)
	if strings.Count(content, "# plandeck node log") != 1 {
		t.Error("header must be written only once")
	}
	if !strings.Contains(content, "attempt 2 starting") {
		t.Errorf("attempt boundary missing:\n%s", content)
	}
}

func TestReadFromOffsets(t *testing.T) {
	dir := t.TempDir()
	nl, err := OpenNodeLog(dir, "p", "n", 1)
	if err != nil {
		t.Fatalf("OpenNodeLog: %v", err)
	}
	for i := 0; i < 5; i++ {
		nl.Append("work", LevelInfo, "line")
	}
	nl.Close()

	info, err := os.Stat(nl.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	size := info.Size()

	// Offset at file size: empty.
	got, err := ReadFrom(nl.Path(), size)
	if err != nil || got != "" {
		t.Errorf("ReadFrom(size) = %q, %v; want empty", got, err)
	}

	// Offset beyond file size: empty.
	got, err = ReadFrom(nl.Path(), size+100)
	if err != nil || got != "" {
		t.Errorf("ReadFrom(size+100) = %q, %v; want empty", got, err)
	}

	// Offset zero returns everything including the header.
	got, err = ReadFrom(nl.Path(), 0)
	if err != nil {
		t.Fatalf("ReadFrom(0): %v", err)
	}
	if int64(len(got)) != size {
		t.Errorf("ReadFrom(0) length = %d, want %d", len(got), size)
	}
	if !strings.HasPrefix(got, "# plandeck node log") {
		t.Error("full read should include the header")
	}

	// Mid-file offset returns a suffix.
	got, _ = ReadFrom(nl.Path(), size-10)
	if int64(len(got)) != 10 {
		t.Errorf("suffix length = %d, want 10", len(got))
	}
}

func TestReadFromMissingFile(t *testing.T) {
	got, err := ReadFrom("/nonexistent/n.log", 0)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestNodeLogPathPrefix(t *testing.T) {
	path := NodeLogPath("/logs", "plan-1", "node-a")
	if path != "/logs/plan-1-node-a.log" {
		t.Errorf("NodeLogPath = %q", path)
	}
}
