package controller

import (
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachly/models"
)

// overlapDetectingWriter fails the test if two writes ever run concurrently,
// which is the condition the websocket library panics on.
type overlapDetectingWriter struct {
	inflight int32
	writes   int32
	overlaps int32
}

func (w *overlapDetectingWriter) WriteMessage(_ int, _ []byte) error {
	if atomic.AddInt32(&w.inflight, 1) > 1 {
		atomic.AddInt32(&w.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&w.inflight, -1)
	atomic.AddInt32(&w.writes, 1)
	return nil
}

func testEvent() *models.EngagementEvent {
	return &models.EngagementEvent{
		LeadID:     7,
		SequenceID: 10,
		EventType:  models.EventOpen,
		Provider:   models.ProviderSmartlead,
		OccurredAt: time.Now(),
	}
}

func TestFeedBroadcastSerializesWritesPerConnection(t *testing.T) {
	feed := NewEngagementFeed(log.New(os.Stderr, "TEST: ", log.LstdFlags))
	writer := &overlapDetectingWriter{}
	feed.register(1, writer)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Broadcast(1, testEvent())
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&writer.overlaps))
	assert.EqualValues(t, 20, atomic.LoadInt32(&writer.writes))
}

func TestFeedBroadcastScopedToTenant(t *testing.T) {
	feed := NewEngagementFeed(log.New(os.Stderr, "TEST: ", log.LstdFlags))
	mine := &overlapDetectingWriter{}
	theirs := &overlapDetectingWriter{}
	feed.register(1, mine)
	feed.register(2, theirs)

	feed.Broadcast(1, testEvent())

	assert.EqualValues(t, 1, atomic.LoadInt32(&mine.writes))
	assert.Zero(t, atomic.LoadInt32(&theirs.writes))
}

func TestFeedUnregisterStopsDelivery(t *testing.T) {
	feed := NewEngagementFeed(log.New(os.Stderr, "TEST: ", log.LstdFlags))
	writer := &overlapDetectingWriter{}
	client := feed.register(1, writer)

	feed.Broadcast(1, testEvent())
	require.EqualValues(t, 1, atomic.LoadInt32(&writer.writes))

	feed.unregister(1, client)
	feed.Broadcast(1, testEvent())
	assert.EqualValues(t, 1, atomic.LoadInt32(&writer.writes))
}
