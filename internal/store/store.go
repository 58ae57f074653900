// Package store holds the server-side pairing session record and its
// time-bounded key-value persistence contract.
//
// A session is populated concurrently by two independent OAuth completion
// flows, so every mutation goes through an atomic-or-retried
// read-modify-write: implementations must never lose a sibling field
// written between a load and its matching save.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/songmatch/songmatch/internal/shared"
)

// TTL is the fixed lifetime of a session record, refreshed on every write.
const TTL = time.Hour

// Role identifies one of the two pairing participants.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
)

// ParseRole validates an externally supplied role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleGuest:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidRole, s)
	}
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleOwner {
		return RoleGuest
	}
	return RoleOwner
}

// Party is one participant's slot in a session. All fields are secrets or
// derived from secrets and are never exposed to the browser.
type Party struct {
	CodeVerifier string   `json:"codeVerifier,omitempty"`
	AccessToken  string   `json:"accessToken,omitempty"`
	TrackIDs     []string `json:"trackIds,omitempty"`
}

// Intersection is the computed result: ids present in both parties' track
// sets, with display names resolved positionally for each id.
type Intersection struct {
	IDs   []string `json:"ids"`
	Names []string `json:"names"`
}

// Session is the sole persistent entity: one pairing between two parties.
type Session struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Owner     *Party        `json:"owner,omitempty"`
	Guest     *Party        `json:"guest,omitempty"`
	Common    *Intersection `json:"common,omitempty"`
}

// State is the explicit readiness of a session, derived from field presence.
type State int

const (
	Empty State = iota
	OwnerReady
	GuestReady
	BothReady
	Resolved
)

func (s State) String() string {
	switch s {
	case OwnerReady:
		return "owner_ready"
	case GuestReady:
		return "guest_ready"
	case BothReady:
		return "both_ready"
	case Resolved:
		return "resolved"
	default:
		return "empty"
	}
}

// Party returns the slot for role, which may be nil.
func (s *Session) Party(role Role) *Party {
	if role == RoleOwner {
		return s.Owner
	}
	return s.Guest
}

// HasTracks reports whether role's catalog has been fetched and is non-empty.
func (s *Session) HasTracks(role Role) bool {
	p := s.Party(role)
	return p != nil && len(p.TrackIDs) > 0
}

// State derives the readiness state from the raw fields.
func (s *Session) State() State {
	switch {
	case s.Common != nil:
		return Resolved
	case s.HasTracks(RoleOwner) && s.HasTracks(RoleGuest):
		return BothReady
	case s.HasTracks(RoleOwner):
		return OwnerReady
	case s.HasTracks(RoleGuest):
		return GuestReady
	default:
		return Empty
	}
}

// applyPatch shallow-merges patch into a party slot: non-zero patch fields
// overwrite, everything else is preserved.
func applyPatch(dst *Party, patch Party) *Party {
	if dst == nil {
		dst = &Party{}
	}
	if patch.CodeVerifier != "" {
		dst.CodeVerifier = patch.CodeVerifier
	}
	if patch.AccessToken != "" {
		dst.AccessToken = patch.AccessToken
	}
	if patch.TrackIDs != nil {
		dst.TrackIDs = patch.TrackIDs
	}
	return dst
}

// apply merges patch into the session's slot for role, creating it if absent.
func (s *Session) apply(role Role, patch Party) {
	if role == RoleOwner {
		s.Owner = applyPatch(s.Owner, patch)
	} else {
		s.Guest = applyPatch(s.Guest, patch)
	}
}

// Store defines how pairing sessions are persisted and retrieved.
//
// Get, MergeParty, and SetCommon return (nil, nil) for an unknown or
// expired session; errors are reserved for storage failures. Every write
// renews the record's TTL.
type Store interface {
	// Create allocates a unique id, persists an empty session, and returns it.
	Create(ctx context.Context) (*Session, error)

	// Get returns the session or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// MergeParty shallow-merges patch into the role's slot and returns the
	// updated session. Concurrent merges to the sibling slot must not be lost.
	MergeParty(ctx context.Context, id string, role Role, patch Party) (*Session, error)

	// SetCommon stores the computed intersection and returns the updated session.
	SetCommon(ctx context.Context, id string, common Intersection) (*Session, error)
}
