package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/walletauth/ports"
)

const (
	TopicSignedIn       = "walletauth.signed_in"
	TopicSignedOut      = "walletauth.signed_out"
	TopicHandleAssigned = "walletauth.handle_assigned"
)

// SessionEvent is published on sign-in and sign-out
type SessionEvent struct {
	Address    string    `json:"address"`
	TokenID    string    `json:"token_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HandleEvent is published when an account receives its handle
type HandleEvent struct {
	Address    string    `json:"address"`
	Handle     string    `json:"handle"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishSignedIn(ctx context.Context, address, tokenID string) error {
	return p.publish(ctx, TopicSignedIn, SessionEvent{Address: address, TokenID: tokenID, OccurredAt: time.Now().UTC()})
}

func (p *WatermillPublisher) PublishSignedOut(ctx context.Context, address, tokenID string) error {
	return p.publish(ctx, TopicSignedOut, SessionEvent{Address: address, TokenID: tokenID, OccurredAt: time.Now().UTC()})
}

func (p *WatermillPublisher) PublishHandleAssigned(ctx context.Context, address, handle string) error {
	return p.publish(ctx, TopicHandleAssigned, HandleEvent{Address: address, Handle: handle, OccurredAt: time.Now().UTC()})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
