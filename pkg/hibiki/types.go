package hibiki

import "encoding/json"

// LoadType categorizes the result of a load-tracks call
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// TrackInfo contains the decoded metadata of a track
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	ISRC       string `json:"isrc"`
	SourceName string `json:"sourceName"`
}

// Track is an opaque encoded media reference plus its metadata.
// The Encoded handle is produced and consumed by node REST calls;
// this layer never inspects it.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`

	// Requester is whatever identity the caller attached when the
	// track was resolved. Opaque to the library.
	Requester interface{} `json:"-"`
}

// PlaylistInfo describes the playlist a set of tracks was loaded from
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// TrackException is the error payload a node attaches to failed loads
// and playback failures
type TrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// Response is the normalized result of a resolve call
type Response struct {
	LoadType     LoadType
	Tracks       []Track
	PlaylistInfo *PlaylistInfo
	Exception    *TrackException

	// Requester echoes the identity supplied in the ResolveRequest.
	Requester interface{}
}

// ResolveRequest describes a query resolution against a node
type ResolveRequest struct {
	Query  string
	Source string
	// Requester is an opaque identity echoed back on the Response
	// and stamped onto every returned Track.
	Requester interface{}
}

// MemoryStats reports a node's JVM memory usage
type MemoryStats struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPUStats reports a node's processor load
type CPUStats struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats reports audio frame delivery quality over the last minute
type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// NodeStats is the load-statistics snapshot a node pushes over its
// socket and serves from its stats endpoint
type NodeStats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         MemoryStats `json:"memory"`
	CPU            CPUStats    `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// Gateway packet kinds this layer consumes. Everything else is ignored
// by the router.
const (
	PacketVoiceStateUpdate  = "VOICE_STATE_UPDATE"
	PacketVoiceServerUpdate = "VOICE_SERVER_UPDATE"
)

// GatewayPacket is an inbound gateway signaling message as delivered by
// a host adapter. GuildID is the session key players are registered
// under; UserID is the acting user for state updates.
type GatewayPacket struct {
	Kind    string
	GuildID string
	UserID  string
	Data    json.RawMessage
}

// VoiceStateUpdate is the payload of a VOICE_STATE_UPDATE packet
type VoiceStateUpdate struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
}

// VoiceServerUpdate is the payload of a VOICE_SERVER_UPDATE packet
type VoiceServerUpdate struct {
	Token    string `json:"token"`
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
}

// NodeOptions describes a backend node to connect to. Immutable once a
// Node has been constructed from it.
type NodeOptions struct {
	Name     string
	Host     string
	Port     int
	Password string
	Secure   bool
	Regions  []string
}

// ConnectionOptions is the request payload for creating a player
type ConnectionOptions struct {
	GuildID      string
	VoiceChannel string
	TextChannel  string
	SelfDeaf     bool
	SelfMute     bool
	// Region, when set, biases node selection toward nodes serving
	// that voice region.
	Region string
}
