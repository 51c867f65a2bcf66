package db

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Events carries coalesced change notifications from the store. Each
// channel has a one-slot buffer: bursts of writes collapse into a single
// pending tick, which is safe because every reconciliation pass re-derives
// its output from the full document, not from the notification payload.
type Events struct {
	Snapshot    <-chan struct{}
	Summaries   <-chan struct{}
	ClosedCases <-chan struct{}
	Applicants  <-chan struct{}

	pubsub *redis.PubSub
}

// Close stops the subscription; the event channels close shortly after.
func (e *Events) Close() error {
	return e.pubsub.Close()
}

// Subscribe starts listening for store change notifications. The returned
// Events stays valid until Close is called or ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (*Events, error) {
	pubsub := s.client.Subscribe(ctx, ChannelSnapshot, ChannelSummaries, ChannelClosed, ChannelApplicants)

	// Force the SUBSCRIBE round-trip so a broken connection fails here
	// instead of silently never delivering.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	snapshot := make(chan struct{}, 1)
	summaries := make(chan struct{}, 1)
	closedCases := make(chan struct{}, 1)
	applicants := make(chan struct{}, 1)

	go func() {
		defer close(snapshot)
		defer close(summaries)
		defer close(closedCases)
		defer close(applicants)

		ch := pubsub.Channel()
		for msg := range ch {
			var target chan struct{}
			switch msg.Channel {
			case ChannelSnapshot:
				target = snapshot
			case ChannelSummaries:
				target = summaries
			case ChannelClosed:
				target = closedCases
			case ChannelApplicants:
				target = applicants
			default:
				continue
			}
			select {
			case target <- struct{}{}:
			default: // a tick is already pending, coalesce
			}
		}
	}()

	return &Events{
		Snapshot:    snapshot,
		Summaries:   summaries,
		ClosedCases: closedCases,
		Applicants:  applicants,
		pubsub:      pubsub,
	}, nil
}
