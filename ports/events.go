package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSignedIn(ctx context.Context, address, tokenID string) error
	PublishSignedOut(ctx context.Context, address, tokenID string) error
	PublishHandleAssigned(ctx context.Context, address, handle string) error
}
