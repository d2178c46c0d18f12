package repo

import (
	"context"

	"github.com/merchantbot/merchantbot/internal/biz/domain"
)

// Messenger is the direct message repository interface
// Responsible for user lookup and DM delivery on the chat platform
type Messenger interface {
	// ResolveUser resolves a user; ErrUserUnreachable if the user is gone
	ResolveUser(ctx context.Context, userID string) (*domain.User, error)

	// SendDirect sends a notice to the user's DM channel
	SendDirect(ctx context.Context, userID string, notice *domain.Notice) error

	// OpenDirectChannel explicitly (re)opens the user's DM channel
	OpenDirectChannel(ctx context.Context, userID string) (string, error)

	// SendChannel sends a notice to a channel
	SendChannel(ctx context.Context, channelID string, notice *domain.Notice) error
}
