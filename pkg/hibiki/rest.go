package hibiki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// restClient is the REST accessor for a single node. Calls are
// single-shot: no retry, no backoff. Every call takes a
// context.Context so callers can attach deadlines or cancel in
// flight.
type restClient struct {
	baseURL    string
	password   string
	httpClient *http.Client
}

func newRESTClient(opts NodeOptions, timeout time.Duration) *restClient {
	scheme := "http"
	if opts.Secure {
		scheme = "https"
	}
	return &restClient{
		baseURL:  fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port),
		password: opts.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do issues a request with the node's authorization header and decodes
// the JSON response body into out (when out is non-nil).
func (r *restClient) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build node request")
	}
	req.Header.Set("Authorization", r.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("%s %s: node returned status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// loadResult is the raw load-tracks envelope before normalization
type loadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// LoadTracks resolves a percent-encoded identifier against the node's
// load-tracks endpoint.
func (r *restClient) LoadTracks(ctx context.Context, identifier string) (*loadResult, error) {
	var result loadResult
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := r.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecodeTrack decodes a single opaque track handle into a Track
func (r *restClient) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	var track Track
	path := "/v4/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := r.do(ctx, http.MethodGet, path, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// DecodeTracks batch-decodes a list of opaque track handles
func (r *restClient) DecodeTracks(ctx context.Context, encoded []string) ([]Track, error) {
	body, err := json.Marshal(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "marshal track handles")
	}
	var tracks []Track
	if err := r.do(ctx, http.MethodPost, "/v4/decodetracks", bytes.NewReader(body), &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// Info fetches the node's info document and propagates it unchanged
func (r *restClient) Info(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := r.do(ctx, http.MethodGet, "/v4/info", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Stats fetches the node's current load statistics
func (r *restClient) Stats(ctx context.Context) (*NodeStats, error) {
	var stats NodeStats
	if err := r.do(ctx, http.MethodGet, "/v4/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// voiceUpdate is the assembled voice handshake pushed to a player
type voiceUpdate struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// playerUpdate is the partial player state for the update endpoint.
// Pointer fields are omitted when nil so updates stay partial.
type playerUpdate struct {
	EncodedTrack *string      `json:"encodedTrack,omitempty"`
	Position     *int64       `json:"position,omitempty"`
	Volume       *int         `json:"volume,omitempty"`
	Paused       *bool        `json:"paused,omitempty"`
	Voice        *voiceUpdate `json:"voice,omitempty"`
}

// UpdatePlayer patches the player state for a guild on the node
// session. noReplace keeps a currently playing track in place.
func (r *restClient) UpdatePlayer(ctx context.Context, sessionID, guildID string, update playerUpdate, noReplace bool) error {
	body, err := json.Marshal(update)
	if err != nil {
		return errors.Wrap(err, "marshal player update")
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=%t", sessionID, guildID, noReplace)
	return r.do(ctx, http.MethodPatch, path, bytes.NewReader(body), nil)
}

// StopPlayer clears the playing track. This needs an explicit JSON
// null, which the partial update struct cannot express.
func (r *restClient) StopPlayer(ctx context.Context, sessionID, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=false", sessionID, guildID)
	return r.do(ctx, http.MethodPatch, path, bytes.NewReader([]byte(`{"encodedTrack":null}`)), nil)
}

// DestroyPlayer removes the player for a guild from the node session
func (r *restClient) DestroyPlayer(ctx context.Context, sessionID, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateSession configures session resuming on the node
func (r *restClient) UpdateSession(ctx context.Context, sessionID string, resuming bool, timeout time.Duration) error {
	body, err := json.Marshal(map[string]interface{}{
		"resuming": resuming,
		"timeout":  int(timeout.Seconds()),
	})
	if err != nil {
		return errors.Wrap(err, "marshal session update")
	}
	return r.do(ctx, http.MethodPatch, "/v4/sessions/"+sessionID, bytes.NewReader(body), nil)
}

func stringPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64    { return &v }
func intPtr(v int) *int          { return &v }
func boolPtr(v bool) *bool       { return &v }
