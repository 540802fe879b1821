package hibiki

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pkg/errors"
)

// Adapter bridges the library to a host gateway client. Exactly one
// variant is resolved at activation from Config.Library; it supplies
// the outbound voice-state send path and wires inbound gateway packets
// into the packet router.
type Adapter interface {
	// ClientID returns the bot's own user id as seen by the host.
	ClientID() (string, error)
	// SendVoiceUpdate routes a voice state update to the shard owning
	// the guild. An empty channel id leaves the voice channel.
	SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error
	// SubscribeRaw wires the host's gateway events into m.RoutePacket.
	SubscribeRaw(m *Manager) error
}

// newAdapter resolves the adapter variant for the configured library
// keyword. The host client's concrete type must match the keyword.
func newAdapter(cfg *Config, host interface{}) (Adapter, error) {
	switch cfg.Library {
	case LibraryDiscordGo:
		session, ok := host.(*discordgo.Session)
		if !ok {
			return nil, errors.Wrap(ErrInvalidHostType, "expected *discordgo.Session")
		}
		return &discordgoAdapter{session: session}, nil
	case LibraryDisgo:
		client, ok := host.(bot.Client)
		if !ok {
			return nil, errors.Wrap(ErrInvalidHostType, "expected disgo bot.Client")
		}
		return &disgoAdapter{client: client}, nil
	case LibraryOther:
		// Validate guarantees send and client id are present.
		return &otherAdapter{send: cfg.Send, clientID: cfg.ClientID}, nil
	default:
		return nil, errors.Wrap(ErrUnknownLibrary, cfg.Library)
	}
}

// discordgoAdapter drives a bwmarrin/discordgo session
type discordgoAdapter struct {
	session *discordgo.Session
}

func (a *discordgoAdapter) ClientID() (string, error) {
	if a.session.State == nil || a.session.State.User == nil {
		return "", errors.New("discordgo session has no ready state; open the session before activating")
	}
	return a.session.State.User.ID, nil
}

func (a *discordgoAdapter) SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error {
	return a.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
}

// packetIdentity is the subset of a raw dispatch payload the router
// keys on.
type packetIdentity struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

func (a *discordgoAdapter) SubscribeRaw(m *Manager) error {
	// The *discordgo.Event handler is discordgo's catch-all; the
	// router discards everything but the two voice kinds.
	a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		if e.Type != PacketVoiceStateUpdate && e.Type != PacketVoiceServerUpdate {
			return
		}
		var id packetIdentity
		if err := json.Unmarshal(e.RawData, &id); err != nil {
			return
		}
		m.RoutePacket(GatewayPacket{
			Kind:    e.Type,
			GuildID: id.GuildID,
			UserID:  id.UserID,
			Data:    e.RawData,
		})
	})
	return nil
}

// disgoAdapter drives a disgoorg/disgo bot client
type disgoAdapter struct {
	client bot.Client
}

func (a *disgoAdapter) ClientID() (string, error) {
	return a.client.ApplicationID().String(), nil
}

func (a *disgoAdapter) SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return errors.Wrap(err, "parse guild id")
	}
	var cid *snowflake.ID
	if channelID != "" {
		parsed, err := snowflake.Parse(channelID)
		if err != nil {
			return errors.Wrap(err, "parse channel id")
		}
		cid = &parsed
	}
	return a.client.UpdateVoiceState(context.Background(), gid, cid, selfMute, selfDeaf)
}

func (a *disgoAdapter) SubscribeRaw(m *Manager) error {
	a.client.AddEventListeners(
		bot.NewListenerFunc(func(e *events.GuildVoiceStateUpdate) {
			state := VoiceStateUpdate{
				GuildID:   e.VoiceState.GuildID.String(),
				UserID:    e.VoiceState.UserID.String(),
				SessionID: e.VoiceState.SessionID,
			}
			if e.VoiceState.ChannelID != nil {
				ch := e.VoiceState.ChannelID.String()
				state.ChannelID = &ch
			}
			data, err := json.Marshal(state)
			if err != nil {
				return
			}
			m.RoutePacket(GatewayPacket{
				Kind:    PacketVoiceStateUpdate,
				GuildID: state.GuildID,
				UserID:  state.UserID,
				Data:    data,
			})
		}),
		bot.NewListenerFunc(func(e *events.VoiceServerUpdate) {
			server := VoiceServerUpdate{
				Token:   e.Token,
				GuildID: e.GuildID.String(),
			}
			if e.Endpoint != nil {
				server.Endpoint = *e.Endpoint
			}
			data, err := json.Marshal(server)
			if err != nil {
				return
			}
			m.RoutePacket(GatewayPacket{
				Kind:    PacketVoiceServerUpdate,
				GuildID: server.GuildID,
				Data:    data,
			})
		}),
	)
	return nil
}

// otherAdapter serves embedders on unsupported host libraries. The
// caller supplies the send path through Config.Send and feeds inbound
// packets to Manager.RoutePacket directly.
type otherAdapter struct {
	send     SendFunc
	clientID string
}

func (a *otherAdapter) ClientID() (string, error) {
	return a.clientID, nil
}

// voiceStatePayload is the gateway op 4 frame handed to the send
// function.
type voiceStatePayload struct {
	Op int `json:"op"`
	D  struct {
		GuildID   string  `json:"guild_id"`
		ChannelID *string `json:"channel_id"`
		SelfMute  bool    `json:"self_mute"`
		SelfDeaf  bool    `json:"self_deaf"`
	} `json:"d"`
}

func (a *otherAdapter) SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error {
	var payload voiceStatePayload
	payload.Op = 4
	payload.D.GuildID = guildID
	if channelID != "" {
		payload.D.ChannelID = &channelID
	}
	payload.D.SelfMute = selfMute
	payload.D.SelfDeaf = selfDeaf

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal voice state payload")
	}
	return a.send(guildID, data)
}

func (a *otherAdapter) SubscribeRaw(_ *Manager) error {
	// Nothing to wire: the embedder owns the gateway and calls
	// RoutePacket itself.
	return nil
}
