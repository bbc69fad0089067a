package notifier

import (
	"sync"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Message is one notification. Body is the plain rendering, BodyRich embeds
// action, symbol, prices, cost, wallet and timing deltas for rich sinks.
type Message struct {
	ID       string
	Level    Level
	Subject  string
	Body     string
	BodyRich string
}

// Sink delivers one message. Sinks are called in parallel, a failing sink
// never blocks the batch.
type Sink interface {
	Name() string
	Send(msg Message) error
}

// Hub fans messages out to the registered sinks, dropping everything below
// the configured minimum level.
type Hub struct {
	mu       sync.RWMutex
	minLevel Level
	sinks    []Sink
}

func NewHub(minLevel Level) *Hub {
	return &Hub{minLevel: minLevel}
}

func (h *Hub) Register(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sink)
}

// Notify dispatches the message to every sink at or above the filter level
// and waits for the batch to finish.
func (h *Hub) Notify(level Level, subject, body, bodyRich string) {
	h.mu.RLock()
	minLevel := h.minLevel
	sinks := make([]Sink, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.RUnlock()

	if level < minLevel {
		return
	}

	msg := Message{
		ID:       uuid.NewString(),
		Level:    level,
		Subject:  subject,
		Body:     body,
		BodyRich: bodyRich,
	}

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Send(msg); err != nil {
				logger.WithError(err).WithFields(logger.Fields{
					"sink":    s.Name(),
					"subject": msg.Subject,
				}).Error("notification sink failed")
			}
		}(sink)
	}
	wg.Wait()
}

func (h *Hub) Info(subject, body, bodyRich string)    { h.Notify(LevelInfo, subject, body, bodyRich) }
func (h *Hub) Success(subject, body, bodyRich string) { h.Notify(LevelSuccess, subject, body, bodyRich) }
func (h *Hub) Warn(subject, body, bodyRich string)    { h.Notify(LevelWarn, subject, body, bodyRich) }
func (h *Hub) Error(subject, body, bodyRich string)   { h.Notify(LevelError, subject, body, bodyRich) }
