// ABOUTME: Long-polling update loop - fetches updates and fans them out
// ABOUTME: Tracks the confirmed offset so restarts do not replay old updates

package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultPollTimeout = 30 * time.Second
	pollRetryDelay     = 5 * time.Second
)

// Poller drives the router from the getUpdates long-poll API.
type Poller struct {
	client  *Client
	router  *Router
	logger  *slog.Logger
	timeout time.Duration
}

// NewPoller creates a Poller with the default poll timeout.
func NewPoller(client *Client, router *Router, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  client,
		router:  router,
		logger:  logger.With("component", "poller"),
		timeout: defaultPollTimeout,
	}
}

// Run polls until ctx is cancelled. Any webhook left over from a previous
// deployment is removed first, since getUpdates and webhooks are mutually
// exclusive on the Bot API side.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(ctx); err != nil {
		p.logger.Warn("removing stale webhook", "error", err)
	}

	p.logger.Info("polling for updates", "timeout", p.timeout)

	var wg sync.WaitGroup
	defer wg.Wait()

	var offset int64
	for {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("fetching updates", "error", err)
			select {
			case <-time.After(pollRetryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for i := range updates {
			update := &updates[i]
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.router.HandleUpdate(ctx, update)
			}()
		}
	}
}
