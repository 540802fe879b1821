package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Hibiki/internal/config"
	"github.com/latoulicious/Hibiki/pkg/hibiki"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}

	managerConfig := hibiki.DefaultConfig()
	managerConfig.Nodes = []hibiki.NodeOptions{cfg.Node}

	manager, err := hibiki.NewManager(managerConfig)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	manager.On(hibiki.EventTrackStart, func(e hibiki.Event) {
		log.Printf("Now playing %q in guild %s", e.Track.Info.Title, e.Player.GuildID())
	})
	manager.On(hibiki.EventQueueEnd, func(e hibiki.Event) {
		log.Printf("Queue drained in guild %s", e.Player.GuildID())
	})

	// Activate once the session is ready so the bot's own user id is
	// known.
	dg.AddHandlerOnce(func(s *discordgo.Session, r *discordgo.Ready) {
		if err := manager.Activate(s); err != nil {
			log.Fatalf("Failed to activate manager: %v", err)
		}
	})

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		handleMessage(s, m, manager)
	})

	// Open a websocket connection to Discord and begin listening.
	err = dg.Open()
	if err != nil {
		log.Fatalf("Failed to open Discord session: %v", err)
	}

	log.Println("Bot is running. Press CTRL-C to exit.")
	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.Destroy(ctx)

	// Cleanly close down the Discord session.
	dg.Close()
}

// handleMessage implements a minimal !play / !skip / !stop surface to
// exercise the library.
func handleMessage(s *discordgo.Session, m *discordgo.MessageCreate, manager *hibiki.Manager) {
	if m.Author.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(m.Content, "!play "):
		query := strings.TrimSpace(strings.TrimPrefix(m.Content, "!play "))
		channelID := voiceChannelOf(s, m.GuildID, m.Author.ID)
		if channelID == "" {
			s.ChannelMessageSend(m.ChannelID, "Join a voice channel first.")
			return
		}

		player, err := manager.CreateConnection(hibiki.ConnectionOptions{
			GuildID:      m.GuildID,
			VoiceChannel: channelID,
			TextChannel:  m.ChannelID,
			SelfDeaf:     true,
		})
		if err != nil {
			s.ChannelMessageSend(m.ChannelID, "Failed to connect: "+err.Error())
			return
		}

		response, err := manager.Resolve(ctx, hibiki.ResolveRequest{
			Query:     query,
			Requester: m.Author.ID,
		}, nil)
		if err != nil {
			s.ChannelMessageSend(m.ChannelID, "Failed to resolve: "+err.Error())
			return
		}
		if len(response.Tracks) == 0 {
			s.ChannelMessageSend(m.ChannelID, "No results.")
			return
		}

		track := response.Tracks[0]
		if player.Current() != nil {
			player.Queue().Add(track)
			s.ChannelMessageSend(m.ChannelID, "Queued "+track.Info.Title)
			return
		}
		if err := player.Play(ctx, track); err != nil {
			s.ChannelMessageSend(m.ChannelID, "Failed to play: "+err.Error())
		}

	case m.Content == "!skip":
		if player := manager.Get(m.GuildID); player != nil {
			player.Skip(ctx)
		}

	case m.Content == "!stop":
		manager.RemoveConnection(ctx, m.GuildID)
	}
}

// voiceChannelOf returns the voice channel a user is in, empty if none
func voiceChannelOf(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
