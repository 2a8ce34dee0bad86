package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize caps the event log at 100MB before rotation.
	DefaultMaxLogSize = 100 * 1024 * 1024
	logFileExtension  = ".jsonl"
	archiveDirName    = "archive"
)

// LogEntry is one line of the JSONL audit trail.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	SpecName  string                 `json:"spec_name,omitempty"`
	RunnerID  string                 `json:"runner_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger appends structured events to a JSONL file, rotating into
// an archive/ subdirectory when the file outgrows maxSize.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	logPath     string
}

// NewAuditLogger opens (or creates) the audit log at logPath.
func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	logger := &AuditLogger{
		logPath: logPath,
		maxSize: maxSize,
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Log appends one event. spec_name and runner_id are lifted out of
// details when present so the common fields stay queryable with jq.
func (l *AuditLogger) Log(eventType string, details map[string]interface{}) error {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Details:   details,
	}
	if name, ok := details["spec_name"].(string); ok {
		entry.SpecName = name
	}
	if id, ok := details["runner_id"].(string); ok {
		entry.RunnerID = id
	}
	return l.WriteEntry(&entry)
}

// WriteEntry appends a pre-built entry, rotating first when needed.
func (l *AuditLogger) WriteEntry(entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write log entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close current log file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), archiveDirName)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	baseName := filepath.Base(l.logPath)
	archiveName := fmt.Sprintf("%s.%s%s",
		baseName[:len(baseName)-len(logFileExtension)],
		timestamp,
		logFileExtension)
	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("archive log file: %w", err)
	}

	return l.openLogFile()
}

// Close syncs and closes the underlying file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return err
		}
		return l.file.Close()
	}
	return nil
}

// CurrentSize returns the size of the active log file.
func (l *AuditLogger) CurrentSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}
