// Package transcript writes human-readable conversation logs, one file per
// pair of agents.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/persona"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

// Log appends transcript lines to files under a directory.
type Log struct {
	dir       string
	selfShort string
	selfName  string
	mu        sync.Mutex
	logger    *zap.Logger
}

// New creates a transcript log rooted at dir for the given persona.
func New(dir string, profile *persona.Profile, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir %s: %w", dir, err)
	}
	return &Log{
		dir:       dir,
		selfShort: profile.Short(),
		selfName:  profile.Name,
		logger:    logger,
	}, nil
}

// PathFor returns the transcript file shared with a partner. Both sides of a
// conversation resolve to the same file name. Names are reduced to
// [a-z0-9_-] so a partner cannot steer the path out of the log directory.
func (l *Log) PathFor(partnerID string) string {
	names := []string{fileSafe(l.selfShort), fileSafe(persona.ShortName(partnerID))}
	sort.Strings(names)
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s_conversation.txt", names[0], names[1]))
}

// resolve is PathFor plus a check that the file sits directly in the log directory.
func (l *Log) resolve(partnerID string) (string, error) {
	path := l.PathFor(partnerID)
	if filepath.Dir(path) != filepath.Clean(l.dir) {
		return "", fmt.Errorf("transcript path for %q escapes %s", partnerID, l.dir)
	}
	return path, nil
}

func fileSafe(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, strings.ToLower(name))
	if clean == "" {
		return "unknown"
	}
	return clean
}

// Append writes one message line.
func (l *Log) Append(partnerID, speaker, message string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path, err := l.resolve(partnerID)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprint(f, FormatLine(speaker, message, at)); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// FormatLine renders a transcript entry followed by a blank line.
func FormatLine(speaker, message string, at time.Time) string {
	return fmt.Sprintf("[%s] %s: %s\n\n", at.Format(timeLayout), speaker, message)
}

// ObserveTurn implements conversation.TurnObserver.
func (l *Log) ObserveTurn(_ context.Context, turn *conversation.Turn) error {
	if err := l.Append(turn.Partner.ID, l.selfName, turn.Outgoing, turn.At); err != nil {
		return err
	}
	if turn.Reply == "" {
		return nil
	}
	return l.Append(turn.Partner.ID, turn.Partner.ID, turn.Reply, turn.At)
}

// Read returns the full transcript shared with a partner, or an empty string
// when nothing was logged yet.
func (l *Log) Read(partnerID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	path, err := l.resolve(partnerID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}
