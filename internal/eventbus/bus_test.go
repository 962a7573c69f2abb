package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishExactChannel(t *testing.T) {
	b := New(zap.NewNop())
	var got Event
	done := make(chan struct{})
	b.Subscribe("signal.gabagool", func(e Event) {
		got = e
		close(done)
	})

	b.Publish("signal.gabagool", "gabagool", "payload")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
	assert.Equal(t, "signal.gabagool", got.Channel)
	assert.Equal(t, "payload", got.Payload)
}

func TestPublishGlobPattern(t *testing.T) {
	b := New(zap.NewNop())
	var count int
	var mu sync.Mutex
	done := make(chan struct{}, 2)
	b.Subscribe(GlobMarketOrderbook, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
	})

	b.Publish(MarketOrderbookChannel("m1"), "svc", nil)
	b.Publish(MarketOrderbookChannel("m2"), "svc", nil)
	b.Publish("signal.other", "svc", nil) // should not match

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for matching events")
		}
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New(zap.NewNop())
	block := make(chan struct{})
	b.Subscribe("ch", func(e Event) { <-block })

	fastDone := make(chan struct{})
	b.Subscribe("ch", func(e Event) { close(fastDone) })

	b.Publish("ch", "pub", 1)

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by slow one")
	}
	close(block)
}

func TestPublishDoesNotBlockOnFullInbox(t *testing.T) {
	b := New(zap.NewNop())
	block := make(chan struct{})
	b.Subscribe("ch", func(e Event) { <-block })

	// Fill the inbox well beyond capacity; Publish must never block.
	doneCh := make(chan struct{})
	go func() {
		for i := 0; i < defaultInboxSize*2; i++ {
			b.Publish("ch", "pub", i)
		}
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber inbox")
	}
	close(block)
}

func TestPanickingHandlerRecovered(t *testing.T) {
	b := New(zap.NewNop())
	ok := make(chan struct{})
	b.Subscribe("ch", func(e Event) {
		panic("boom")
	})
	b.Subscribe("ch", func(e Event) { close(ok) })

	b.Publish("ch", "pub", nil)

	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("panicking handler took down the bus")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())
	var calls int
	var mu sync.Mutex
	id := b.Subscribe("ch", func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	b.Unsubscribe(id)
	b.Publish("ch", "pub", nil)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, calls)
}

func TestOrderingWithinPublisherChannel(t *testing.T) {
	b := New(zap.NewNop())
	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	b.Subscribe("ch", func(e Event) {
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		if len(seen) == 50 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		b.Publish("ch", "pub", i)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("did not receive all events")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}
