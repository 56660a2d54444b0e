package forum

import "context"

// Identity contains resolved display information about a member.
type Identity struct {
	// MemberID is the member identifier.
	MemberID int64 `json:"member_id"`
	// Name is the display name of the member.
	Name string `json:"name"`
	// AvatarURL is the member's avatar (optional).
	AvatarURL string `json:"avatar_url,omitempty"`
}

// IdentityResolver maps member IDs to display information.
// Implementations should be safe for concurrent use.
//
// The forum uses it to stamp the poster name on new posts and to enrich
// topic pages with avatars.
type IdentityResolver interface {
	// Resolve returns identity information for a single member.
	// Returns ErrIdentityNotFound if the member is unknown.
	Resolve(ctx context.Context, memberID int64) (*Identity, error)

	// ResolveBatch returns identity information for multiple members.
	// Returns results in the same order as input. Unknown IDs have nil entries.
	ResolveBatch(ctx context.Context, memberIDs []int64) ([]*Identity, error)
}

// Formatter renders a message body for display. Markup handling lives
// entirely in the formatter; the forum stores bodies as submitted.
type Formatter interface {
	Format(ctx context.Context, body string) (string, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(ctx context.Context, body string) (string, error)

func (f FormatterFunc) Format(ctx context.Context, body string) (string, error) {
	return f(ctx, body)
}
