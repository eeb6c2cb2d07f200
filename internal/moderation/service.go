// Package moderation maintains the set of moderator identities. Admins enter
// moderators as free text, one per line, by email or login; the directory
// resolves those lines to user ids and answers membership questions.
package moderation

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Resolution is the outcome of resolving a raw moderator list.
type Resolution struct {
	IDs       []string `json:"ids"`
	Unmatched []string `json:"unmatched,omitempty"`
}

// Directory holds the resolved moderator ids.
type Directory struct {
	mu  sync.RWMutex
	ids []string
}

// NewDirectory creates a directory from already resolved ids.
func NewDirectory(ids []string) *Directory {
	d := &Directory{}
	d.Set(ids)
	return d
}

// Set replaces the moderator ids, dropping blanks and duplicates.
func (d *Directory) Set(ids []string) {
	clean := dedupe(ids)
	d.mu.Lock()
	d.ids = clean
	d.mu.Unlock()
}

// IDs returns a copy of the moderator ids.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

// IsModerator reports whether id is on the list.
func (d *Directory) IsModerator(id string) bool {
	if d == nil || id == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.ids {
		if m == id {
			return true
		}
	}
	return false
}

// Encode returns the comma-delimited storage form of the list.
func (d *Directory) Encode() string {
	return strings.Join(d.IDs(), ",")
}

// ParseIDs decodes the comma-delimited storage form.
func ParseIDs(stored string) []string {
	return dedupe(strings.Split(stored, ","))
}

// displaySuffix matches the " (Display Name)" an admin UI appends to each line.
var displaySuffix = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// ResolveList resolves newline-separated emails or logins to user ids.
// Lines are matched by email first, then by login. Lines that match nobody
// are returned in Unmatched and left out of IDs.
func ResolveList(ctx context.Context, users UserLookup, raw string) Resolution {
	var res Resolution
	seen := make(map[string]bool)

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		key := strings.TrimSpace(displaySuffix.ReplaceAllString(line, ""))
		if key == "" {
			continue
		}

		id := lookup(ctx, users, key)
		if id == "" {
			log.Warn().Str("entry", key).Msg("moderation: moderator entry matches no user")
			res.Unmatched = append(res.Unmatched, key)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		res.IDs = append(res.IDs, id)
	}

	log.Info().
		Int("moderators", len(res.IDs)).
		Int("unmatched", len(res.Unmatched)).
		Msg("moderation: moderator list resolved")

	return res
}

// FormatList renders stored moderator ids as the lines ResolveList reads
// back, "login (email)" per user. Ids of deleted accounts are kept as bare
// lines so the admin can see them.
func FormatList(ctx context.Context, users UserLookup, ids []string) string {
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		if users == nil {
			lines = append(lines, id)
			continue
		}
		u, err := users.GetUser(ctx, id)
		if err != nil || u == nil {
			lines = append(lines, id)
			continue
		}
		switch {
		case u.Login != "" && u.Email != "":
			lines = append(lines, u.Login+" ("+u.Email+")")
		case u.Login != "":
			lines = append(lines, u.Login)
		default:
			lines = append(lines, u.Email)
		}
	}
	return strings.Join(lines, "\n")
}

func lookup(ctx context.Context, users UserLookup, key string) string {
	if users == nil {
		return ""
	}
	if strings.Contains(key, "@") {
		if u, err := users.FindUserByEmail(ctx, key); err == nil && u != nil {
			return u.ID
		}
	}
	if u, err := users.FindUserByLogin(ctx, key); err == nil && u != nil {
		return u.ID
	}
	return ""
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
