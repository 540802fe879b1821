package hibiki

import "encoding/json"

// RoutePacket filters an inbound gateway packet and forwards it to the
// owning player's connection. Everything that does not apply is
// silently dropped: unknown packet kinds, guilds with no registered
// player, state updates for users other than the bot itself, and
// payloads that fail to parse. Sessions routinely receive packets
// before or after their player exists, so none of these are errors.
// The router deduplicates nothing and guarantees no ordering between
// the two packet kinds; the connection tolerates either arriving
// first, once or twice.
func (m *Manager) RoutePacket(packet GatewayPacket) {
	switch packet.Kind {
	case PacketVoiceStateUpdate, PacketVoiceServerUpdate:
	default:
		return
	}

	player := m.Get(packet.GuildID)
	if player == nil {
		return
	}

	switch packet.Kind {
	case PacketVoiceServerUpdate:
		var server VoiceServerUpdate
		if err := json.Unmarshal(packet.Data, &server); err != nil {
			m.logger.Debug("dropping malformed voice server update", Err(err), String("guild", packet.GuildID))
			return
		}
		player.Connection().SetServerUpdate(server)

	case PacketVoiceStateUpdate:
		// Only the bot's own state updates drive the handshake;
		// other users moving around the guild are not ours to track.
		if packet.UserID != m.clientID {
			return
		}
		var state VoiceStateUpdate
		if err := json.Unmarshal(packet.Data, &state); err != nil {
			m.logger.Debug("dropping malformed voice state update", Err(err), String("guild", packet.GuildID))
			return
		}
		player.Connection().SetStateUpdate(state)
	}
}
