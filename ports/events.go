package ports

import (
	"context"

	"github.com/layer-3/dropgate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishVerified(ctx context.Context, session *core.Session) error
	PublishProfileCreated(ctx context.Context, profile *core.Profile) error
	PublishLogout(ctx context.Context, address string, tokenID string) error
}
