package moderation

import (
	"context"

	"issuesmap/internal/models"
)

// UserLookup finds registered accounts by the identifiers an admin may type
// into the moderator list. Implementations return (nil, nil) or an error
// when nothing matches; both are treated as "no match".
type UserLookup interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}
