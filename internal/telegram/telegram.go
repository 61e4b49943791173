// Package telegram implements the Telegram Dispatcher of spec.md §4.9:
// multiple purpose-keyed clients, each with its own FIFO queue and global
// pacing clock, a per-chat pacing tracker shared across clients, 429-aware
// exponential backoff, and TTL reaping of idle queues/chat trackers.
package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ocengine/internal/logger"
	"ocengine/internal/metrics"
)

// Config holds the pacing/backoff tunables of spec.md §4.9.
type Config struct {
	MinGapGlobal time.Duration // default 1000ms, per-client
	PerChatGap   time.Duration // default 3000ms, shared across clients
	QueueMaxIdle time.Duration // default 30min
	ChatMaxIdle  time.Duration // default 6h
	SendTimeout  time.Duration // default 10s
}

func (c *Config) applyDefaults() {
	if c.MinGapGlobal <= 0 {
		c.MinGapGlobal = time.Second
	}
	if c.PerChatGap <= 0 {
		c.PerChatGap = 3 * time.Second
	}
	if c.QueueMaxIdle <= 0 {
		c.QueueMaxIdle = 30 * time.Minute
	}
	if c.ChatMaxIdle <= 0 {
		c.ChatMaxIdle = 6 * time.Hour
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
}

// sender is the subset of tgbotapi's client this package calls, so tests
// can substitute a fake without a live bot token.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type item struct {
	chatID int64
	text   string
}

// queue is one purpose-keyed client's FIFO plus its pacing/backoff state.
type queue struct {
	mu              sync.Mutex
	items           []item
	backoffUntil    time.Time
	consecutive429  int
	lastSendAt      time.Time
	lastActivity    time.Time
}

// Dispatcher owns every purpose-keyed queue and the shared per-chat pacing
// tracker. It implements orderservice.Notifier.
type Dispatcher struct {
	cfg    Config
	client sender

	mu     sync.Mutex
	queues map[string]*queue

	chatMu   sync.Mutex
	lastChat map[int64]time.Time

	wake chan struct{}
}

// New builds a Dispatcher around a live bot client (or a fake for tests).
func New(client sender, cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:      cfg,
		client:   client,
		queues:   make(map[string]*queue),
		lastChat: make(map[int64]time.Time),
		wake:     make(chan struct{}, 1),
	}
}

// NewFromToken builds a Dispatcher around a live tgbotapi.BotAPI client.
func NewFromToken(token string, cfg Config) (*Dispatcher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return New(bot, cfg), nil
}

// Enqueue adds a message to the purpose-keyed queue, creating it if needed.
func (d *Dispatcher) Enqueue(purpose string, chatID int64, text string) {
	d.mu.Lock()
	q, ok := d.queues[purpose]
	if !ok {
		q = &queue{}
		d.queues[purpose] = q
	}
	d.mu.Unlock()

	q.mu.Lock()
	q.items = append(q.items, item{chatID: chatID, text: text})
	q.lastActivity = time.Now()
	metrics.TelegramQueueDepth.WithLabelValues(purpose).Set(float64(len(q.items)))
	q.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Notify implements orderservice.Notifier against the "order" purpose
// queue, fanning one message out to every chat ID.
func (d *Dispatcher) Notify(chatIDs []int64, text string) {
	for _, id := range chatIDs {
		d.Enqueue("order", id, text)
	}
}

// Run drains every queue until ctx is cancelled, reaping idle queues/chat
// trackers along the way.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			d.drainAll()
		case <-ticker.C:
			d.drainAll()
		case <-reapTicker.C:
			d.reap()
		}
	}
}

func (d *Dispatcher) drainAll() {
	d.mu.Lock()
	purposes := make([]string, 0, len(d.queues))
	queues := make([]*queue, 0, len(d.queues))
	for p, q := range d.queues {
		purposes = append(purposes, p)
		queues = append(queues, q)
	}
	d.mu.Unlock()

	for i, q := range queues {
		d.drainOne(purposes[i], q)
	}
}

func (d *Dispatcher) drainOne(purpose string, q *queue) {
	now := time.Now()

	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	if now.Before(q.backoffUntil) {
		q.mu.Unlock()
		return
	}
	if now.Sub(q.lastSendAt) < d.cfg.MinGapGlobal {
		q.mu.Unlock()
		return
	}
	next := q.items[0]
	q.mu.Unlock()

	if !d.chatReady(next.chatID, now) {
		return
	}

	metrics.TelegramBackoffUntil.WithLabelValues(purpose).Set(0)
	err := d.send(next.chatID, next.text)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastActivity = time.Now()

	if err == nil {
		q.consecutive429 = 0
		q.lastSendAt = time.Now()
		q.items = q.items[1:]
		d.markChatSent(next.chatID, q.lastSendAt)
		metrics.TelegramQueueDepth.WithLabelValues(purpose).Set(float64(len(q.items)))
		return
	}

	switch classify(err) {
	case errRateLimited:
		q.consecutive429++
		retryAfterMs := retryAfterSeconds(err)*1000 + 5000
		escalation := q.consecutive429
		if escalation > 5 {
			escalation = 5
		}
		q.backoffUntil = time.Now().Add(time.Duration(retryAfterMs*escalation) * time.Millisecond)
		metrics.TelegramBackoffUntil.WithLabelValues(purpose).Set(float64(q.backoffUntil.UnixMilli()))
		logger.Warnf("telegram[%s]: 429, backing off until %s (consecutive=%d)", purpose, q.backoffUntil, q.consecutive429)
	case errPermanent:
		logger.Warnf("telegram[%s]: permanent failure for chat %d, discarding: %v", purpose, next.chatID, err)
		q.items = q.items[1:]
		metrics.TelegramQueueDepth.WithLabelValues(purpose).Set(float64(len(q.items)))
	default:
		q.backoffUntil = time.Now().Add(5 * time.Second)
		logger.Warnf("telegram[%s]: transient error, requeueing: %v", purpose, err)
	}
}

func (d *Dispatcher) chatReady(chatID int64, now time.Time) bool {
	d.chatMu.Lock()
	defer d.chatMu.Unlock()
	last, ok := d.lastChat[chatID]
	if !ok {
		return true
	}
	return now.Sub(last) >= d.cfg.PerChatGap
}

func (d *Dispatcher) markChatSent(chatID int64, at time.Time) {
	d.chatMu.Lock()
	defer d.chatMu.Unlock()
	d.lastChat[chatID] = at
}

func (d *Dispatcher) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := d.client.Send(msg)
	return err
}

// reap drops queues idle-and-empty beyond QueueMaxIdle and chat trackers
// idle beyond ChatMaxIdle.
func (d *Dispatcher) reap() {
	now := time.Now()

	d.mu.Lock()
	for p, q := range d.queues {
		q.mu.Lock()
		idle := len(q.items) == 0 && now.Sub(q.lastActivity) > d.cfg.QueueMaxIdle
		q.mu.Unlock()
		if idle {
			delete(d.queues, p)
		}
	}
	d.mu.Unlock()

	d.chatMu.Lock()
	for id, last := range d.lastChat {
		if now.Sub(last) > d.cfg.ChatMaxIdle {
			delete(d.lastChat, id)
		}
	}
	d.chatMu.Unlock()
}
