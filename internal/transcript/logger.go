// Package transcript writes an NDJSON audit trail of the conversation,
// one file per identity, without ever blocking the conversation engine.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one logged conversation message.
type Entry struct {
	MessageID string    `json:"message_id"`
	Username  string    `json:"username,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	LoggedAt  time.Time `json:"logged_at"`
}

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Logger appends entries to per-identity NDJSON files through a
// buffered queue drained by a single worker goroutine. When the queue
// is full entries are dropped; the transcript is an audit aid, not a
// source of truth.
type Logger struct {
	cfg    Config
	queue  chan Entry
	slog   *slog.Logger
	wg     sync.WaitGroup
	closed sync.Once
}

// NewLogger creates the transcript logger and starts its worker. A
// disabled config yields a logger whose Log is a cheap no-op.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &Logger{cfg: cfg, slog: logger}
	if !cfg.Enabled {
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l.queue = make(chan Entry, cfg.QueueSize)
	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues an entry. It never blocks; on a full queue the entry is
// dropped with a warning.
func (l *Logger) Log(entry Entry) {
	if !l.cfg.Enabled {
		return
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}

	select {
	case l.queue <- entry:
	default:
		l.slog.Warn("transcript queue full, dropping entry", "message_id", entry.MessageID)
	}
}

// Close drains the queue and stops the worker.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	l.closed.Do(func() {
		close(l.queue)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()
	for entry := range l.queue {
		if err := l.write(entry); err != nil {
			l.slog.Warn("failed to write transcript entry", "message_id", entry.MessageID, "error", err)
		}
	}
}

func (l *Logger) write(entry Entry) error {
	path := filepath.Join(l.cfg.Dir, fileName(entry.Username))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// fileName maps an identity to a safe transcript file name. Anonymous
// conversations share one file.
func fileName(username string) string {
	if username == "" {
		return "anonymous.ndjson"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, username)
	return safe + ".ndjson"
}
