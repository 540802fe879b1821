package hibiki

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Resolve turns a search query or URL into track metadata via a node's
// load-tracks endpoint. URLs (http:// or https:// prefixed) are sent
// verbatim; anything else is prefixed with the request's source
// keyword or the configured default search platform. A nil node means
// the global least-used node. The call is single-shot: no retry, no
// backoff; transport failures surface to the caller unchanged.
func (m *Manager) Resolve(ctx context.Context, req ResolveRequest, node *Node) (*Response, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}

	if node == nil {
		nodes := m.LeastUsedNodes()
		if len(nodes) == 0 {
			return nil, ErrNoNodesAvailable
		}
		node = nodes[0]
	}

	identifier := req.Query
	if !strings.HasPrefix(identifier, "http://") && !strings.HasPrefix(identifier, "https://") {
		source := req.Source
		if source == "" {
			source = m.config.DefaultSearchPlatform
		}
		identifier = source + ":" + req.Query
	}

	result, err := node.rest.LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return normalizeResponse(result, req.Requester)
}

// normalizeResponse unwraps the kind-specific data of a load result
// into a Response, stamping the requester identity onto it and every
// track.
func normalizeResponse(result *loadResult, requester interface{}) (*Response, error) {
	response := &Response{
		LoadType:  result.LoadType,
		Requester: requester,
	}

	switch result.LoadType {
	case LoadTypeTrack:
		var track Track
		if err := json.Unmarshal(result.Data, &track); err != nil {
			return nil, errors.Wrap(err, "decode track result")
		}
		track.Requester = requester
		response.Tracks = []Track{track}

	case LoadTypePlaylist:
		var playlist struct {
			Info   PlaylistInfo `json:"info"`
			Tracks []Track      `json:"tracks"`
		}
		if err := json.Unmarshal(result.Data, &playlist); err != nil {
			return nil, errors.Wrap(err, "decode playlist result")
		}
		for i := range playlist.Tracks {
			playlist.Tracks[i].Requester = requester
		}
		response.Tracks = playlist.Tracks
		response.PlaylistInfo = &playlist.Info

	case LoadTypeSearch:
		var tracks []Track
		if err := json.Unmarshal(result.Data, &tracks); err != nil {
			return nil, errors.Wrap(err, "decode search result")
		}
		for i := range tracks {
			tracks[i].Requester = requester
		}
		response.Tracks = tracks

	case LoadTypeError:
		var exception TrackException
		if err := json.Unmarshal(result.Data, &exception); err != nil {
			return nil, errors.Wrap(err, "decode error result")
		}
		response.Exception = &exception

	case LoadTypeEmpty:
		// Nothing matched; an empty Response says so.

	default:
		return nil, errors.Errorf("unknown load type %q", result.LoadType)
	}

	return response, nil
}

// DecodeTrack decodes an opaque track handle on a node. A nil node
// means the global least-used node.
func (m *Manager) DecodeTrack(ctx context.Context, encoded string, node *Node) (*Track, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}
	if node == nil {
		nodes := m.LeastUsedNodes()
		if len(nodes) == 0 {
			return nil, ErrNoNodesAvailable
		}
		node = nodes[0]
	}
	return node.rest.DecodeTrack(ctx, encoded)
}

// DecodeTracks batch-decodes opaque track handles on the given node
func (m *Manager) DecodeTracks(ctx context.Context, encoded []string, node *Node) ([]Track, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}
	if node == nil {
		return nil, errors.New("batch decode requires a node")
	}
	return node.rest.DecodeTracks(ctx, encoded)
}

// GetNodeInfo fetches a named node's info document and propagates it
// unchanged.
func (m *Manager) GetNodeInfo(ctx context.Context, name string) (json.RawMessage, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}
	node, err := m.GetNode(name)
	if err != nil {
		return nil, err
	}
	return node.rest.Info(ctx)
}

// GetNodeStatus fetches a named node's current load statistics
func (m *Manager) GetNodeStatus(ctx context.Context, name string) (*NodeStats, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}
	node, err := m.GetNode(name)
	if err != nil {
		return nil, err
	}
	return node.rest.Stats(ctx)
}
