// Package pairing coordinates the two-party OAuth flow: session creation,
// per-role authorization, catalog fetch on callback, and the one-shot
// intersection of both parties' saved tracks.
//
// Each flow step is an explicit function returning a redirect target or a
// result, keeping the state machine testable without an HTTP harness.
package pairing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/songmatch/songmatch/internal/pkce"
	"github.com/songmatch/songmatch/internal/services"
	"github.com/songmatch/songmatch/internal/shared"
	"github.com/songmatch/songmatch/internal/store"
)

// Coordinator owns the session store and the upstream client for every flow
// instance. It is safe for concurrent use: all shared mutable state lives in
// the store, behind its merge contract.
type Coordinator struct {
	store   store.Store
	spotify *services.SpotifyService
	webBase string
	logger  *log.Logger
}

// NewCoordinator wires the pairing flows to their collaborators. webBase is
// the externally visible origin used for join links and final redirects.
func NewCoordinator(st store.Store, spotify *services.SpotifyService, webBase string, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Coordinator{
		store:   st,
		spotify: spotify,
		webBase: strings.TrimRight(webBase, "/"),
		logger:  shared.WithLogger(logger, "component", "pairing"),
	}
}

// CreateResult is the response to a session creation request.
type CreateResult struct {
	SessionID string `json:"sessionId"`
	JoinURL   string `json:"joinUrl"`
}

// CreateSession allocates a fresh empty session and builds its join link.
func (c *Coordinator) CreateSession(ctx context.Context) (*CreateResult, error) {
	s, err := c.store.Create(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("session created", "session", s.ID)
	return &CreateResult{
		SessionID: s.ID,
		JoinURL:   fmt.Sprintf("%s/join/%s", c.webBase, s.ID),
	}, nil
}

// JoinRedirect validates that the session exists and returns the initiation
// URL that puts the second party through the flow as guest.
func (c *Coordinator) JoinRedirect(ctx context.Context, sessionID string) (string, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", shared.ErrSessionNotFound
	}

	return fmt.Sprintf("%s/auth/start?session=%s&who=%s", c.webBase, url.QueryEscape(sessionID), store.RoleGuest), nil
}

// StartAuth begins the OAuth flow for one role: it generates a PKCE verifier,
// stores it against the role's slot, and returns the upstream authorization
// URL carrying the derived challenge and a state of "sessionId:role".
func (c *Coordinator) StartAuth(ctx context.Context, sessionID, who string) (string, error) {
	role, err := store.ParseRole(who)
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		return "", fmt.Errorf("%w: missing session", shared.ErrInvalidInput)
	}

	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", shared.ErrSessionNotFound
	}

	verifier := pkce.GenerateVerifier()
	challenge := pkce.DeriveChallenge(verifier)

	if updated, err := c.store.MergeParty(ctx, sessionID, role, store.Party{CodeVerifier: verifier}); err != nil {
		return "", err
	} else if updated == nil {
		return "", shared.ErrSessionNotFound
	}

	c.logger.Info("auth initiated", "session", sessionID, "who", role)
	return c.spotify.AuthCodeURL(stateParam(sessionID, role), challenge), nil
}

// CompleteAuth finishes the OAuth flow for the party encoded in state:
// exchanges the code, fetches the party's full saved-track catalog, merges
// it into the session, and computes the intersection once both sides are in.
// It returns the browser's redirect target back to the front end.
func (c *Coordinator) CompleteAuth(ctx context.Context, code, state string) (string, error) {
	sessionID, role, err := parseState(state)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing code", shared.ErrInvalidInput)
	}

	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", shared.ErrSessionNotFound
	}

	party := s.Party(role)
	if party == nil || party.CodeVerifier == "" {
		return "", fmt.Errorf("%w: session %s role %s", shared.ErrVerifierMissing, sessionID, role)
	}

	token, err := c.spotify.Exchange(ctx, code, party.CodeVerifier)
	if err != nil {
		return "", err
	}

	ids, err := c.spotify.SavedTrackIDs(ctx, token.AccessToken)
	if err != nil {
		return "", err
	}

	updated, err := c.store.MergeParty(ctx, sessionID, role, store.Party{
		AccessToken: token.AccessToken,
		TrackIDs:    ids,
	})
	if err != nil {
		return "", err
	}
	if updated == nil {
		return "", shared.ErrSessionNotFound
	}
	c.logger.Info("catalog fetched", "session", sessionID, "who", role, "tracks", len(ids))

	if updated.State() == store.BothReady {
		if err := c.resolveCommon(ctx, updated, token.AccessToken); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%s/?session=%s&who=%s", c.webBase, url.QueryEscape(sessionID), role), nil
}

// resolveCommon computes the intersection in owner order, resolves display
// names with the completing party's token, and stores the result. Name
// resolution is best-effort: a failed chunk degrades to fewer names.
func (c *Coordinator) resolveCommon(ctx context.Context, s *store.Session, accessToken string) error {
	common := Intersect(s.Owner.TrackIDs, s.Guest.TrackIDs)
	names := c.resolveNames(ctx, accessToken, common)

	if _, err := c.store.SetCommon(ctx, s.ID, store.Intersection{IDs: common, Names: names}); err != nil {
		return err
	}

	c.logger.Info("intersection resolved", "session", s.ID, "common", len(common))
	return nil
}

func (c *Coordinator) resolveNames(ctx context.Context, accessToken string, ids []string) []string {
	names := make([]string, 0, len(ids))
	for chunk := range chunks(ids, 50) {
		tracks, err := c.spotify.SeveralTracks(ctx, accessToken, chunk)
		if err != nil {
			c.logger.Warn("name resolution chunk failed", "size", len(chunk), "error", err)
			continue
		}
		for _, t := range tracks {
			if t.ID == "" {
				continue
			}
			names = append(names, t.DisplayName())
		}
	}
	return names
}

// StatusReport is the polling view of a session's readiness.
type StatusReport struct {
	OK          bool `json:"ok"`
	HaveOwner   bool `json:"haveOwner"`
	HaveGuest   bool `json:"haveGuest"`
	Ready       bool `json:"ready"`
	CommonCount int  `json:"commonCount"`
}

// Status reports session readiness, or (nil, nil) for an unknown session.
// It reads the store only; no upstream calls, cheap to poll.
func (c *Coordinator) Status(ctx context.Context, sessionID string) (*StatusReport, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}

	report := &StatusReport{
		OK:        true,
		HaveOwner: s.HasTracks(store.RoleOwner),
		HaveGuest: s.HasTracks(store.RoleGuest),
		Ready:     s.Common != nil,
	}
	if s.Common != nil {
		report.CommonCount = len(s.Common.IDs)
	}
	return report, nil
}

// Common returns the stored intersection, or (nil, nil) when the session is
// unknown or the result has not been computed yet. It never triggers the
// computation itself.
func (c *Coordinator) Common(ctx context.Context, sessionID string) (*store.Intersection, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Common == nil {
		return nil, nil
	}
	return s.Common, nil
}

// stateParam encodes the only channel carrying role context through the
// upstream redirect. It is deliberately unsigned; ParseRole on the way back
// keeps a tampered value from addressing anything but the two known slots.
func stateParam(sessionID string, role store.Role) string {
	return fmt.Sprintf("%s:%s", sessionID, role)
}

func parseState(state string) (string, store.Role, error) {
	sessionID, who, found := strings.Cut(state, ":")
	if !found || sessionID == "" {
		return "", "", fmt.Errorf("%w: malformed state %q", shared.ErrInvalidInput, state)
	}
	role, err := store.ParseRole(who)
	if err != nil {
		return "", "", err
	}
	return sessionID, role, nil
}
