package notifier

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []Message
	fail bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink down")
	}
	s.got = append(s.got, msg)
	return nil
}

func (s *recordingSink) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.got))
	copy(out, s.got)
	return out
}

func TestHubFiltersByLevel(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(LevelWarn)
	h.Register(sink)

	h.Info("subj", "info body", "")
	h.Success("subj", "success body", "")
	h.Warn("subj", "warn body", "")
	h.Error("subj", "error body", "")

	msgs := sink.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "warn body", msgs[0].Body)
	assert.Equal(t, "error body", msgs[1].Body)
}

func TestHubDeliversToAllSinksDespiteFailure(t *testing.T) {
	broken := &recordingSink{fail: true}
	healthy := &recordingSink{}
	h := NewHub(LevelInfo)
	h.Register(broken)
	h.Register(healthy)

	h.Error("subj", "body", "rich")

	msgs := healthy.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rich", msgs[0].BodyRich)
	assert.NotEmpty(t, msgs[0].ID)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "success", LevelSuccess.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
}
