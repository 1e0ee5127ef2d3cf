package bot

import (
	"context"
	"log"
	"time"

	"camlbot/internal/telegram"
)

const pollRetryDelay = 5 * time.Second

// Updates is the inbound surface of the chat platform.
type Updates interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

// Poller runs the ingestion loop: long-poll for updates, advance the cursor
// past everything seen whether understood or not, and hand message text to
// the router.
type Poller struct {
	client       Updates
	router       *Router
	lastUpdateID int64
	retryDelay   time.Duration
}

// NewPoller creates a poller starting from offset zero.
func NewPoller(client Updates, router *Router) *Poller {
	return &Poller{
		client:     client,
		router:     router,
		retryDelay: pollRetryDelay,
	}
}

// Run polls until ctx is cancelled. Transport failures are logged and
// retried after a short delay; they never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.client.GetUpdates(ctx, p.lastUpdateID+1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("poller: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			// A re-delivered update id must not be dispatched twice.
			if u.UpdateID <= p.lastUpdateID {
				continue
			}
			p.lastUpdateID = u.UpdateID
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			p.router.Handle(u.Message.Chat.ID, u.Message.Text)
		}
	}
}
