package chatfeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerPollsUntilStopped(t *testing.T) {
	store := &fakeMessageStore{messages: seedMessages(2)}
	settings := &fakeSettingStore{}
	feed := New(studentSession, store, settings, Config{})
	poller := NewPoller(feed, 10*time.Millisecond, nil)

	poller.Start(context.Background())
	poller.Start(context.Background())

	require.Eventually(t, func() bool {
		settings.mu.Lock()
		defer settings.mu.Unlock()
		return settings.findCalls >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2"}, ids(feed.State().Messages))

	poller.Stop()
	settings.mu.Lock()
	stopped := settings.findCalls
	settings.mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	settings.mu.Lock()
	assert.Equal(t, stopped, settings.findCalls)
	settings.mu.Unlock()

	poller.Stop()
}

func TestPollerStopsWithContext(t *testing.T) {
	feed := New(studentSession, &fakeMessageStore{}, &fakeSettingStore{}, Config{})
	poller := NewPoller(feed, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerExitsWhenFeedCloses(t *testing.T) {
	feed := New(studentSession, &fakeMessageStore{}, &fakeSettingStore{}, Config{})
	poller := NewPoller(feed, 5*time.Millisecond, nil)

	poller.Start(context.Background())
	poller.mu.Lock()
	done := poller.done
	poller.mu.Unlock()
	feed.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller kept ticking after the feed closed")
	}
	poller.Stop()
}
