package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsyncObserverDeliversBeforeCloseReturns(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 16)
	for i := 0; i < 10; i++ {
		async.RecordEvent(MetricsEvent{Name: EventPhaseChanged, Time: time.Now()})
	}
	async.Close()

	assert.Len(t, mem.Named(EventPhaseChanged), 10)
	assert.Zero(t, async.Dropped())
}

func TestAsyncObserverIgnoresEventsAfterClose(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 4)
	async.Close()
	async.RecordEvent(MetricsEvent{Name: EventStaleEvent})
	async.Close()

	assert.Empty(t, mem.Events())
}
