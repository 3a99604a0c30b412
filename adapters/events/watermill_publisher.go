package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
)

const (
	TopicVerified       = "dropgate.verified"
	TopicProfileCreated = "dropgate.profile_created"
	TopicLogout         = "dropgate.logout"
)

// VerifiedEvent is published after a wallet completed verification
type VerifiedEvent struct {
	Address     string    `json:"address"`
	PrincipalID string    `json:"principal_id"`
	SessionID   string    `json:"session_id"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ProfileCreatedEvent is published when a first login created a profile
type ProfileCreatedEvent struct {
	ProfileID    string    `json:"profile_id"`
	Address      string    `json:"address"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishVerified publishes a verified event
func (p *WatermillPublisher) PublishVerified(ctx context.Context, session *core.Session) error {
	return p.publish(ctx, TopicVerified, session.ID, VerifiedEvent{
		Address:     session.Address,
		PrincipalID: session.PrincipalID,
		SessionID:   session.ID,
		IssuedAt:    session.IssuedAt,
	})
}

// PublishProfileCreated publishes a profile created event
func (p *WatermillPublisher) PublishProfileCreated(ctx context.Context, profile *core.Profile) error {
	return p.publish(ctx, TopicProfileCreated, watermill.NewUUID(), ProfileCreatedEvent{
		ProfileID:    profile.ID,
		Address:      profile.Address,
		Username:     profile.Username,
		RegisteredAt: profile.RegisteredAt,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(ctx, TopicLogout, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	return nil
}
