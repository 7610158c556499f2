package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Version is the tool version stamped into node log headers. Overridden
// at build time via -ldflags.
var Version = "dev"

// BuildCommit is the source commit stamped into node log headers.
var BuildCommit = "unknown"

// NodeLog is the per-node execution log consumed by the control surface.
// Each file begins with a diagnostic header and then carries timestamped,
// phase-tagged lines of the form:
//
//	[2026-03-01T10:15:30.000Z] [work] [INFO] running shell spec
//
// Files are named <planID>-<nodeID>.log so that the lifecycle manager
// can delete exactly one plan's logs from a shared directory by prefix.
type NodeLog struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NodeLogPath returns the log file path for a plan/node pair.
func NodeLogPath(dir, planID, nodeID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", planID, nodeID))
}

// OpenNodeLog opens (creating if needed) the log file for a node. A new
// file gets the diagnostic header; an existing file is appended to, so
// retries of the same node share one log.
func OpenNodeLog(dir, planID, nodeID string, attempt int) (*NodeLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := NodeLogPath(dir, planID, nodeID)

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open node log: %w", err)
	}
	nl := &NodeLog{path: path, file: file}

	if fresh {
		if err := nl.writeHeader(planID, nodeID, attempt); err != nil {
			file.Close()
			return nil, err
		}
	} else {
		// Mark the attempt boundary in an existing log.
		nl.Append("setup", LevelInfo, fmt.Sprintf("attempt %d starting", attempt))
	}
	return nl, nil
}

// writeHeader writes the diagnostic header at the top of a fresh log.
func (n *NodeLog) writeHeader(planID, nodeID string, attempt int) error {
	var sb strings.Builder
	sb.WriteString("# plandeck node log\n")
	sb.WriteString(fmt.Sprintf("# version: %s\n", Version))
	sb.WriteString(fmt.Sprintf("# commit: %s\n", BuildCommit))
	sb.WriteString(fmt.Sprintf("# platform: %s/%s\n", runtime.GOOS, runtime.GOARCH))
	sb.WriteString(fmt.Sprintf("# created: %s\n", time.Now().UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("# plan: %s\n", planID))
	sb.WriteString(fmt.Sprintf("# node: %s\n", nodeID))
	sb.WriteString(fmt.Sprintf("# attempt: %d\n", attempt))
	sb.WriteString("\n")

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	return nil
}

// Append writes one timestamped, phase-tagged line. Write failures are
// swallowed: losing a log line must never fail a phase.
func (n *NodeLog) Append(phase, level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.file == nil {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	fmt.Fprintf(n.file, "[%s] [%s] [%s] %s\n", ts, phase, level, message)
}

// Path returns the log file's path.
func (n *NodeLog) Path() string {
	return n.path
}

// Close closes the underlying file.
func (n *NodeLog) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.file == nil {
		return nil
	}
	err := n.file.Close()
	n.file = nil
	return err
}

// ReadFrom reads a node log starting at a byte offset. An offset at or
// beyond the file size yields an empty string; offset zero yields the
// full content including the header. A missing file reads as empty.
func ReadFrom(path string, offset int64) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read node log: %w", err)
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(data)) {
		return "", nil
	}
	return string(data[offset:]), nil
}
