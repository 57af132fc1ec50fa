package titlegen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTitleStore struct {
	mu     sync.Mutex
	titles map[string]string
	calls  chan struct{}
}

func newFakeTitleStore() *fakeTitleStore {
	return &fakeTitleStore{
		titles: make(map[string]string),
		calls:  make(chan struct{}, 10),
	}
}

func (f *fakeTitleStore) SetTitleIfUntitled(_ context.Context, conversationID, title string) error {
	f.mu.Lock()
	f.titles[conversationID] = title
	f.mu.Unlock()
	f.calls <- struct{}{}
	return nil
}

func (f *fakeTitleStore) title(conversationID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[conversationID]
}

func TestServiceGeneratesAndPersistsTitle(t *testing.T) {
	invoker := &fakeInvoker{responses: []string{"GDPR Retention Rules"}}
	store := newFakeTitleStore()
	generator := newTestGenerator(t, invoker)
	service := NewService(generator.logger, generator, store, 2, 10, 5*time.Second)
	defer service.Shutdown()

	service.Enqueue(context.Background(), Job{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Messages:       sampleMessages(),
	})

	select {
	case <-store.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for title persistence")
	}

	if got := store.title("conv-1"); got != "GDPR Retention Rules" {
		t.Errorf("expected persisted title, got %q", got)
	}
}

func TestServiceSkipsDefaultTitle(t *testing.T) {
	// Generation failure with no user messages falls through to the default
	// title, which must not be written over a NULL title.
	invoker := &fakeInvoker{err: errors.New("upstream unavailable")}
	store := newFakeTitleStore()
	generator := newTestGenerator(t, invoker)
	service := NewService(generator.logger, generator, store, 1, 10, 5*time.Second)

	service.Enqueue(context.Background(), Job{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Messages:       []Message{{Role: "assistant", Content: "Hello"}},
	})
	service.Shutdown()

	if got := store.title("conv-1"); got != "" {
		t.Errorf("expected no persisted title, got %q", got)
	}
}

func TestServiceDropsJobsAfterShutdown(t *testing.T) {
	invoker := &fakeInvoker{responses: []string{"Should Not Persist"}}
	store := newFakeTitleStore()
	generator := newTestGenerator(t, invoker)
	service := NewService(generator.logger, generator, store, 1, 10, 5*time.Second)
	service.Shutdown()

	service.Enqueue(context.Background(), Job{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Messages:       sampleMessages(),
	})

	if got := store.title("conv-1"); got != "" {
		t.Errorf("expected job to be dropped, got title %q", got)
	}
}
