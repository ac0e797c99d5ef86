package discord

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Editor serializes message edits per channel so concurrent responses
// in the same channel cannot exceed the configured edit cadence.
type Editor struct {
	messenger Messenger
	interval  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewEditor(m Messenger, interval time.Duration) *Editor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Editor{
		messenger: m,
		interval:  interval,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (e *Editor) limiter(channelID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Every(e.interval), 1)
		e.limiters[channelID] = l
	}
	return l
}

// Edit updates a message once the channel's limiter admits it. The wait
// is cut short when ctx is cancelled.
func (e *Editor) Edit(ctx context.Context, channelID, messageID, content string) error {
	if err := e.limiter(channelID).Wait(ctx); err != nil {
		return err
	}
	_, err := e.messenger.EditMessage(channelID, messageID, content)
	return err
}
