// Package hibiki is the client-side orchestration layer between a
// Discord bot and a pool of remote audio-processing nodes. It manages
// node registration and load-balanced selection, per-guild player
// lifecycle, gateway packet routing, and the resolve/decode REST
// surface that turns search queries and opaque track handles into
// structured track metadata.
//
// # Core Components
//
//   - Manager: central coordinator owning every registry, activated
//     once against a host gateway client
//   - Node: handle for one backend connection with its socket
//     lifecycle, load statistics and REST accessor
//   - Player: per-guild playback controller bound to exactly one node
//   - Connection: voice-handshake assembly fed by the packet router
//   - Emitter: synchronous publish-subscribe notifications
//
// # Usage Example
//
//	manager, err := hibiki.NewManager(&hibiki.Config{
//		Nodes: []hibiki.NodeOptions{{
//			Name:     "main",
//			Host:     "localhost",
//			Port:     2333,
//			Password: "youshallnotpass",
//		}},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// After the discordgo session is open and ready:
//	if err := manager.Activate(session); err != nil {
//		log.Fatal(err)
//	}
//
//	player, err := manager.CreateConnection(hibiki.ConnectionOptions{
//		GuildID:      guildID,
//		VoiceChannel: channelID,
//		SelfDeaf:     true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	response, err := manager.Resolve(ctx, hibiki.ResolveRequest{
//		Query: "never gonna give you up",
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if len(response.Tracks) > 0 {
//		player.Play(ctx, response.Tracks[0])
//	}
//
// # Host Adapters
//
// The manager talks to the gateway through an adapter variant selected
// by Config.Library: "discordgo" (the default), "disgo", or "other"
// for embedders on any other gateway implementation. The "other"
// variant requires Config.Send and Config.ClientID, validated when the
// configuration is validated rather than on first use, and the
// embedder feeds inbound packets to Manager.RoutePacket itself.
//
// # Node Selection
//
// New players are bound to a node by voice region when the connection
// options carry one, otherwise to the node with the lowest penalty
// score. A region with no matching node falls back to the least-used
// node instead of failing.
//
// # Thread Safety
//
// All manager, node, player and queue operations are safe for
// concurrent use. Concurrent connection requests for the same guild
// observe the same player. Event handlers run synchronously on the
// emitting goroutine, in subscription order.
package hibiki
