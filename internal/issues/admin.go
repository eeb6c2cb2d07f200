package issues

import (
	"context"
	"strings"

	"issuesmap/internal/errs"
	"issuesmap/internal/permissions"
)

// Settings returns the effective value of every option. Moderators only.
func (s *Service) Settings(ctx context.Context, a *Actor) (map[string]string, error) {
	if !a.IsModerator {
		return nil, errs.Authorization(permissions.MsgNotAuthorised)
	}
	return s.settings.Values(ctx)
}

// UpdateSettings validates and stores option changes. Moderator list entries
// that match no user are dropped and named in the message.
func (s *Service) UpdateSettings(ctx context.Context, a *Actor, changes map[string]string) (*Result, error) {
	if !a.IsModerator {
		return nil, errs.Authorization(permissions.MsgNotAuthorised)
	}
	res, err := s.settings.Update(ctx, changes)
	if err != nil {
		return nil, err
	}

	msg := "Settings saved."
	if len(res.Moderators.Unmatched) > 0 {
		msg += " No user found for: " + strings.Join(res.Moderators.Unmatched, ", ") + "."
	}
	return &Result{Message: msg, Data: res}, nil
}
