package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := NewTradeQueue()
	defer q.Stop()

	var mu sync.Mutex
	var ran []int
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		i := i
		q.Push(fmt.Sprintf("task-%d", i), func() error {
			mu.Lock()
			ran = append(ran, i)
			finished := len(ran) == 4
			mu.Unlock()
			if finished {
				close(done)
			}
			return nil
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3}, ran)
}

func TestQueueEnforcesMinimumGap(t *testing.T) {
	q := NewTradeQueue()
	defer q.Stop()

	var mu sync.Mutex
	var stamps []time.Time
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		q.Push("stamp", func() error {
			mu.Lock()
			stamps = append(stamps, time.Now())
			finished := len(stamps) == 3
			mu.Unlock()
			if finished {
				close(done)
			}
			return nil
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		require.GreaterOrEqual(t, gap, 200*time.Millisecond, "gap %d was %s", i, gap)
	}
}

func TestQueueSurvivesTaskErrors(t *testing.T) {
	q := NewTradeQueue()
	defer q.Stop()

	done := make(chan struct{})
	q.Push("boom", func() error { return fmt.Errorf("boom") })
	q.Push("after", func() error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker died on a task error")
	}
}

func TestQueueDropsTasksAfterStop(t *testing.T) {
	q := NewTradeQueue()
	q.Stop()
	q.Push("late", func() error {
		t.Error("task ran after stop")
		return nil
	})
	assert.Equal(t, 0, q.Len())
}
