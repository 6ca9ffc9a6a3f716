package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerIdentityNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: true, Dir: dir, QueueSize: 16}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Entry{
		MessageID: "m1",
		Username:  "maya",
		Sender:    "user",
		Content:   "hello",
	})

	path := filepath.Join(dir, "maya.ndjson")
	line := waitForLogLine(t, path)

	var got Entry
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("unexpected Content: %q", got.Content)
	}
	if got.LoggedAt.IsZero() {
		t.Error("expected LoggedAt to be populated")
	}
}

func TestLoggerRoutesAnonymousConversations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: true, Dir: dir, QueueSize: 16}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Entry{MessageID: "m1", Sender: "assistant", Content: "hi there"})

	line := waitForLogLine(t, filepath.Join(dir, "anonymous.ndjson"))
	if !strings.Contains(line, "hi there") {
		t.Errorf("anonymous entry not written: %q", line)
	}
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewLogger(Config{Enabled: false, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Log(Entry{MessageID: "m1", Username: "maya", Sender: "user", Content: "dropped"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("disabled logger wrote %d files", len(entries))
	}
}

func TestFileNameSanitizesIdentity(t *testing.T) {
	t.Parallel()

	if got := fileName("../../etc/passwd"); strings.Contains(got, "/") {
		t.Errorf("fileName left path separators in %q", got)
	}
	if got := fileName("maya_92"); got != "maya_92.ndjson" {
		t.Errorf("fileName mangled a safe identity: %q", got)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
