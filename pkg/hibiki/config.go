package hibiki

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Library keywords for the host adapter variants
const (
	LibraryDiscordGo = "discordgo"
	LibraryDisgo     = "disgo"
	LibraryOther     = "other"
)

// SendFunc delivers an outbound gateway payload (a voice state update)
// to the shard owning the guild. Only the "other" library variant uses
// it; the built-in adapters talk to their host library directly.
type SendFunc func(guildID string, payload json.RawMessage) error

// Plugin is the open extension point invoked once during activation,
// in configuration order. Effects are plugin-defined.
type Plugin interface {
	Load(m *Manager) error
}

// PlayerFactory constructs a Player for a connection request. Supply
// one to replace the default constructor, e.g. to pre-wire queues.
type PlayerFactory func(m *Manager, node *Node, opts ConnectionOptions) *Player

// Config configures a Manager
type Config struct {
	// Nodes are connected during activation. More can be added later
	// with AddNode.
	Nodes []NodeOptions

	// Plugins are loaded in order during activation.
	Plugins []Plugin

	// Library selects the host adapter variant. Defaults to
	// LibraryDiscordGo.
	Library string

	// Send is required when Library is LibraryOther.
	Send SendFunc

	// ClientID is the bot's own user id. Required for LibraryOther;
	// the built-in adapters read it from the host client.
	ClientID string

	// NewPlayer replaces the default player constructor when set.
	NewPlayer PlayerFactory

	// DefaultSearchPlatform prefixes non-URL queries. Defaults to
	// "ytsearch".
	DefaultSearchPlatform string

	// ResumeKey enables node session resuming; ResumeTimeout is how
	// long the node keeps the session alive after a disconnect.
	ResumeKey     string
	ResumeTimeout time.Duration
	AutoResume    bool

	// ReconnectTries and ReconnectTimeout control the node socket
	// reconnect loop. Zero tries means give up after the first drop.
	ReconnectTries   int
	ReconnectTimeout time.Duration

	// RESTTimeout bounds every node REST call that is issued without
	// a caller deadline.
	RESTTimeout time.Duration

	// Logger defaults to an info-level console logger.
	Logger Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Library:               LibraryDiscordGo,
		DefaultSearchPlatform: "ytsearch",
		ReconnectTries:        5,
		ReconnectTimeout:      5 * time.Second,
		ResumeTimeout:         60 * time.Second,
		RESTTimeout:           10 * time.Second,
	}
}

// Validate checks the configuration, filling defaulted fields in
// place. The "other" variant's send function and client id are
// required here, at configuration time, so a missing one fails
// activation instead of the first outbound packet.
func (c *Config) Validate() error {
	if c.Library == "" {
		c.Library = LibraryDiscordGo
	}
	switch c.Library {
	case LibraryDiscordGo, LibraryDisgo:
	case LibraryOther:
		if c.Send == nil {
			return ErrMissingSendFunc
		}
		if c.ClientID == "" {
			return ErrMissingClientID
		}
	default:
		return errors.Wrap(ErrUnknownLibrary, c.Library)
	}

	if c.DefaultSearchPlatform == "" {
		c.DefaultSearchPlatform = "ytsearch"
	}
	if c.ReconnectTries < 0 {
		return errors.Wrap(ErrInvalidReconnect, "tries must not be negative")
	}
	if c.ReconnectTimeout < 0 {
		return errors.Wrap(ErrInvalidReconnect, "timeout must not be negative")
	}
	if c.ReconnectTimeout == 0 {
		c.ReconnectTimeout = 5 * time.Second
	}
	if c.RESTTimeout <= 0 {
		c.RESTTimeout = 10 * time.Second
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = NewConsoleLogger("info")
	}

	for _, n := range c.Nodes {
		if err := n.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (n NodeOptions) validate() error {
	if n.Name == "" || n.Host == "" || n.Port <= 0 || n.Password == "" {
		return errors.Wrap(ErrInvalidNode, n.Name)
	}
	return nil
}
