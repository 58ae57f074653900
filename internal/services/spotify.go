// Spotify API client for the pairing flows
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/songmatch/songmatch/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

const (
	// pageLimit is the saved-tracks page size; Spotify caps it at 50.
	pageLimit = 50
	// batchLimit is the maximum ids per "tracks by id" request.
	batchLimit = 50
	// maxRateLimitWait caps accumulated 429 backoff for one catalog fetch
	// so a hanging upstream cannot hold the browser redirect forever.
	maxRateLimitWait = 3 * time.Minute
	// requestsPerSecond paces outbound calls ahead of reactive 429 handling.
	requestsPerSecond = 10
	// errBodyLimit bounds how much of an upstream error body is kept for logs.
	errBodyLimit = 512
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
}

// DisplayName renders a track as "title — artists" for result listings.
func (t SpotifyTrack) DisplayName() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return fmt.Sprintf("%s — %s", t.Name, strings.Join(names, ", "))
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifyService talks to the Spotify Web API on behalf of either pairing
// party. It holds no per-user token: callers pass the access token for the
// party a request acts for, since two parties share one client.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string

	// wait is swapped out by tests so 429 backoff does not sleep for real.
	wait func(ctx context.Context, d time.Duration) error
}

// NewSpotifyService creates a new Spotify client for a PKCE public client.
//
// Required credentials: "client_id". Optional: "redirect_uri", "scope",
// and endpoint overrides "auth_url", "token_url", "api_base".
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/auth/callback"
	}

	scope := credentials["scope"]
	if scope == "" {
		scope = "user-library-read"
	}

	authURL := credentials["auth_url"]
	if authURL == "" {
		authURL = spotifyAuthURL
	}
	tokenURL := credentials["token_url"]
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	baseURL := credentials["api_base"]
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	config := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		baseURL:    baseURL,
		wait:       sleepContext,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthCodeURL returns the authorization URL carrying the S256 challenge.
func (s *SpotifyService) AuthCodeURL(state, challenge string) string {
	return s.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)
}

// Exchange trades an authorization code plus its PKCE verifier for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", shared.ErrTokenExchange)
	}
	return token, nil
}

// doRequest performs an authenticated request against an absolute URL.
//
// Any received response is returned to the caller via status and header;
// the body is decoded into result only on 2xx. On non-2xx a bounded body
// snippet is returned so callers can log it. The error return is reserved
// for transport and decode failures.
func (s *SpotifyService) doRequest(ctx context.Context, accessToken, method, rawURL string, result any) (int, http.Header, string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, "", fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return resp.StatusCode, resp.Header, "", fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, resp.Header, "", nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	return resp.StatusCode, resp.Header, strings.TrimSpace(string(snippet)), nil
}

// SavedTrackIDs fetches the user's entire saved-track catalog by following
// the server-provided next URLs and returns the deduplicated ids in
// encounter order.
//
// A 429 response waits Retry-After+1 seconds and retries the same page;
// any other non-2xx aborts the whole fetch.
func (s *SpotifyService) SavedTrackIDs(ctx context.Context, accessToken string) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	var waited time.Duration

	next := fmt.Sprintf("%s/me/tracks?limit=%d", s.baseURL, pageLimit)
	for next != "" {
		var page SpotifyPaginatedTracks
		status, header, snippet, err := s.doRequest(ctx, accessToken, http.MethodGet, next, &page)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			delay := retryAfterDelay(header)
			waited += delay
			if waited > maxRateLimitWait {
				return nil, fmt.Errorf("%w: backed off %s fetching /me/tracks", shared.ErrFetchTimeout, waited)
			}
			if err := s.wait(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("%w: /me/tracks status %d %q", shared.ErrUpstream, status, snippet)
		}

		for _, item := range page.Items {
			id := item.Track.ID
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		if page.Next != nil {
			next = *page.Next
		} else {
			next = ""
		}
	}

	return ids, nil
}

// SeveralTracks retrieves multiple tracks by their IDs (up to 50).
func (s *SpotifyService) SeveralTracks(ctx context.Context, accessToken string, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidInput)
	}
	if len(trackIDs) > batchLimit {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidInput, batchLimit)
	}

	endpoint := fmt.Sprintf("%s/tracks?ids=%s", s.baseURL, url.QueryEscape(strings.Join(trackIDs, ",")))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}

	status, _, snippet, err := s.doRequest(ctx, accessToken, http.MethodGet, endpoint, &response)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: /tracks status %d %q", shared.ErrUpstream, status, snippet)
	}

	return response.Tracks, nil
}

// retryAfterDelay reads a 429 response's Retry-After header (seconds,
// default 1 when absent or malformed) and pads it by one second.
func retryAfterDelay(header http.Header) time.Duration {
	retry := 1
	if v := header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			retry = n
		}
	}
	return time.Duration(retry+1) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
