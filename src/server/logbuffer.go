package server

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const logBufferSize = 500

// LogBuffer is a logrus hook keeping the most recent log lines in memory for
// the /log endpoint.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
}

func NewLogBuffer() *LogBuffer {
	buf := &LogBuffer{}
	logrus.AddHook(buf)
	return buf
}

func (b *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (b *LogBuffer) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("%s [%s] %s", entry.Time.Format("2006-01-02 15:04:05"), entry.Level, entry.Message)
	for k, v := range entry.Data {
		line += fmt.Sprintf(" %s=%v", k, v)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > logBufferSize {
		b.lines = b.lines[len(b.lines)-logBufferSize:]
	}
	return nil
}

// Lines returns up to limit of the newest lines, oldest first.
func (b *LogBuffer) Lines(limit int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.lines) {
		limit = len(b.lines)
	}
	out := make([]string, limit)
	copy(out, b.lines[len(b.lines)-limit:])
	return out
}
