package telegram

import (
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []int64
	nextErrs map[int64][]error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	chatID := msg.ChatID
	if errs, ok := f.nextErrs[chatID]; ok && len(errs) > 0 {
		err := errs[0]
		f.nextErrs[chatID] = errs[1:]
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, chatID)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDispatcherSendsQueuedMessage(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{}}
	d := New(fs, Config{MinGapGlobal: time.Millisecond, PerChatGap: time.Millisecond})
	d.Enqueue("order", 42, "hello")

	for i := 0; i < 50 && fs.sentCount() == 0; i++ {
		d.drainAll()
		time.Sleep(time.Millisecond)
	}
	if fs.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", fs.sentCount())
	}
}

func TestDispatcherPerChatPacingDefers(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{}}
	d := New(fs, Config{MinGapGlobal: time.Millisecond, PerChatGap: 50 * time.Millisecond})
	d.Enqueue("order", 1, "a")
	d.drainAll()
	if fs.sentCount() != 1 {
		t.Fatalf("first send: sent=%d, want 1", fs.sentCount())
	}

	d.Enqueue("order", 1, "b")
	d.drainAll() // immediately after: per-chat gap not yet satisfied
	if fs.sentCount() != 1 {
		t.Fatalf("second send fired before per-chat gap elapsed: sent=%d", fs.sentCount())
	}

	time.Sleep(60 * time.Millisecond)
	d.drainAll()
	if fs.sentCount() != 2 {
		t.Fatalf("sent=%d after gap elapsed, want 2", fs.sentCount())
	}
}

func TestDispatcherRateLimitBackoffMatchesS5(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{
		7: {
			&tgbotapi.Error{Code: 429, Message: "too many requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 2}},
			&tgbotapi.Error{Code: 429, Message: "too many requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 2}},
		},
	}}
	d := New(fs, Config{MinGapGlobal: time.Millisecond, PerChatGap: time.Millisecond})
	d.Enqueue("order", 7, "x")

	d.drainAll() // first 429: consecutive=1
	d.mu.Lock()
	q := d.queues["order"]
	d.mu.Unlock()

	q.mu.Lock()
	if q.consecutive429 != 1 {
		t.Fatalf("consecutive429 = %d, want 1", q.consecutive429)
	}
	q.backoffUntil = time.Time{} // clear so the next drain isn't blocked by the first backoff
	q.mu.Unlock()

	d.drainAll() // second 429: consecutive=2 -> backoff = (2000+5000)*2 = 14000ms
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consecutive429 != 2 {
		t.Fatalf("consecutive429 = %d, want 2", q.consecutive429)
	}
	wantMin := time.Now().Add(13900 * time.Millisecond)
	wantMax := time.Now().Add(14100 * time.Millisecond)
	if q.backoffUntil.Before(wantMin) || q.backoffUntil.After(wantMax) {
		t.Errorf("backoffUntil = %s, want ~14000ms from now", q.backoffUntil)
	}
}

func TestDispatcherPermanentErrorDiscardsMessage(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{
		9: {&tgbotapi.Error{Code: 403, Message: "bot was blocked by the user"}},
	}}
	d := New(fs, Config{MinGapGlobal: time.Millisecond, PerChatGap: time.Millisecond})
	d.Enqueue("order", 9, "x")
	d.drainAll()

	d.mu.Lock()
	q := d.queues["order"]
	d.mu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) != 0 {
		t.Fatalf("expected permanently-failed item discarded, queue has %d items", len(q.items))
	}
}

func TestDispatcherReapsIdleEmptyQueue(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{}}
	d := New(fs, Config{QueueMaxIdle: time.Millisecond})
	d.Enqueue("order", 1, "x")
	d.drainAll()
	time.Sleep(5 * time.Millisecond)
	d.reap()

	d.mu.Lock()
	_, exists := d.queues["order"]
	d.mu.Unlock()
	if exists {
		t.Error("expected idle empty queue to be reaped")
	}
}

func TestNotifyFansOutToEveryChatID(t *testing.T) {
	fs := &fakeSender{nextErrs: map[int64][]error{}}
	d := New(fs, Config{MinGapGlobal: time.Millisecond, PerChatGap: time.Millisecond})
	d.Notify([]int64{1, 2, 3}, "alert")

	d.mu.Lock()
	q := d.queues["order"]
	d.mu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) != 3 {
		t.Fatalf("queued %d items, want 3", len(q.items))
	}
}
