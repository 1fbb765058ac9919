package session

import (
	"context"

	"github.com/ethereum/go-ethereum/event"

	"healthvault/internal/domain"
)

// WatchCreated streams SessionCreated events into sink.
//
// The feed stops when ctx is done or Unsubscribe is called, whichever comes
// first; teardown of the underlying ledger subscription happens exactly once.
func (s *Service) WatchCreated(
	ctx context.Context,
	sink chan<- domain.SessionCreatedEvent,
) (domain.Subscription, error) {
	inner, err := s.ledger.WatchSessionCreated(ctx, sink)
	if err != nil {
		return nil, classifyRead("watch SessionCreated", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer inner.Unsubscribe()
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case err := <-inner.Err():
			return err
		}
	}), nil
}
