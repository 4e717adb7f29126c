package bus

import (
	"context"
	"testing"
	"time"
)

func receiveMessage(t *testing.T, stream <-chan Message) Message {
	t.Helper()
	select {
	case message := <-stream:
		return message
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message")
		return Message{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	dispatcher := New()
	stream, cancel := dispatcher.Subscribe(context.Background(), "user-1")
	defer cancel()

	sent := Message{UserID: "user-1", EventType: EventDataChanged, Timestamp: time.Now().UTC()}
	dispatcher.Publish(sent)

	received := receiveMessage(t, stream)
	if received.EventType != EventDataChanged || received.UserID != "user-1" {
		t.Fatalf("unexpected message: %#v", received)
	}
}

func TestPublishIsScopedPerUser(t *testing.T) {
	dispatcher := New()
	aliceStream, cancelAlice := dispatcher.Subscribe(context.Background(), "alice")
	defer cancelAlice()
	bobStream, cancelBob := dispatcher.Subscribe(context.Background(), "bob")
	defer cancelBob()

	dispatcher.Publish(Message{UserID: "alice", EventType: EventSyncFinished, Timestamp: time.Now().UTC()})

	received := receiveMessage(t, aliceStream)
	if received.UserID != "alice" {
		t.Fatalf("unexpected recipient: %#v", received)
	}

	select {
	case stray := <-bobStream:
		t.Fatalf("bob must not see alice's events: %#v", stray)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	dispatcher := New()
	stream, cancel := dispatcher.Subscribe(context.Background(), "user-1")
	cancel()
	cancel() // idempotent

	dispatcher.Publish(Message{UserID: "user-1", EventType: EventDataChanged, Timestamp: time.Now().UTC()})

	select {
	case message := <-stream:
		t.Fatalf("cancelled subscriber received a message: %#v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextEndUnsubscribes(t *testing.T) {
	dispatcher := New()
	ctx, cancelCtx := context.WithCancel(context.Background())
	stream, _ := dispatcher.Subscribe(ctx, "user-1")
	cancelCtx()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		_, active := dispatcher.subscribers["user-1"]
		dispatcher.mu.RUnlock()
		if !active {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.Publish(Message{UserID: "user-1", EventType: EventDataChanged, Timestamp: time.Now().UTC()})
	select {
	case message := <-stream:
		t.Fatalf("unsubscribed listener received a message: %#v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	dispatcher := New()
	_, cancel := dispatcher.Subscribe(context.Background(), "user-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for index := 0; index < 100; index++ {
			dispatcher.Publish(Message{UserID: "user-1", EventType: EventDataChanged, Timestamp: time.Now().UTC()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a saturated subscriber")
	}
}

func TestSubscribeWithEmptyUserReturnsClosedStream(t *testing.T) {
	dispatcher := New()
	stream, cancel := dispatcher.Subscribe(context.Background(), "")
	defer cancel()

	if _, open := <-stream; open {
		t.Fatalf("expected a closed stream for the empty user id")
	}
}
