package hibiki

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Player is the per-guild playback controller. It is owned by the
// manager's player registry and bound to exactly one node for its
// lifetime; node migration is not supported.
type Player struct {
	manager *Manager
	node    *Node
	guildID string
	logger  Logger

	conn  *Connection
	queue *Queue

	mu           sync.RWMutex
	voiceChannel string
	textChannel  string
	selfDeaf     bool
	selfMute     bool
	region       string
	current      *Track
	volume       int
	paused       bool
	playing      bool
	position     int64

	destroyed atomic.Bool
}

// NewPlayer is the default player constructor. Replace it via
// Config.NewPlayer when players need custom wiring.
func NewPlayer(m *Manager, node *Node, opts ConnectionOptions) *Player {
	p := &Player{
		manager:      m,
		node:         node,
		guildID:      opts.GuildID,
		logger:       m.logger.With(String("guild", opts.GuildID), String("node", node.Name())),
		queue:        NewQueue(),
		voiceChannel: opts.VoiceChannel,
		textChannel:  opts.TextChannel,
		selfDeaf:     opts.SelfDeaf,
		selfMute:     opts.SelfMute,
		region:       opts.Region,
		volume:       100,
	}
	p.conn = &Connection{player: p}
	return p
}

// GuildID returns the session key this player is registered under
func (p *Player) GuildID() string { return p.guildID }

// Node returns the node this player is bound to
func (p *Player) Node() *Node { return p.node }

// Queue returns the player's track queue
func (p *Player) Queue() *Queue { return p.queue }

// Connection returns the voice-handshake sub-object packets are
// forwarded to.
func (p *Player) Connection() *Connection { return p.conn }

// Current returns the track the node is playing, or nil
func (p *Player) Current() *Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Playing reports whether a track is actively playing
func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing && !p.paused
}

// Paused reports whether playback is paused
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Position returns the last reported playback position in
// milliseconds.
func (p *Player) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// Volume returns the player volume (0-1000, 100 is unity)
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// VoiceChannel returns the voice channel the player is joined to
func (p *Player) VoiceChannel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voiceChannel
}

// TextChannel returns the text channel associated with the player
func (p *Player) TextChannel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textChannel
}

// Connect asks the host adapter to join the player's voice channel.
// The voice handshake completes asynchronously once the gateway
// delivers the state and server updates.
func (p *Player) Connect() error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	p.mu.RLock()
	channel, deaf, mute := p.voiceChannel, p.selfDeaf, p.selfMute
	p.mu.RUnlock()
	return p.manager.adapter.SendVoiceUpdate(p.guildID, channel, deaf, mute)
}

// Disconnect leaves the voice channel but keeps the player registered
func (p *Player) Disconnect() error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	return p.manager.adapter.SendVoiceUpdate(p.guildID, "", false, false)
}

// Play starts the given track on the node, replacing whatever is
// playing.
func (p *Player) Play(ctx context.Context, track Track) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	sessionID := p.node.SessionID()
	if sessionID == "" {
		return ErrNodeNotReady
	}

	err := p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, playerUpdate{
		EncodedTrack: stringPtr(track.Encoded),
		Volume:       intPtr(p.Volume()),
	}, false)
	if err != nil {
		return errors.Wrap(err, "play track")
	}

	p.mu.Lock()
	t := track
	p.current = &t
	p.playing = true
	p.paused = false
	p.position = 0
	p.mu.Unlock()
	return nil
}

// Stop halts playback without touching the queue
func (p *Player) Stop(ctx context.Context) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	sessionID := p.node.SessionID()
	if sessionID == "" {
		return ErrNodeNotReady
	}
	if err := p.node.rest.StopPlayer(ctx, sessionID, p.guildID); err != nil {
		return err
	}

	p.mu.Lock()
	p.current = nil
	p.playing = false
	p.mu.Unlock()
	return nil
}

// Pause pauses or resumes playback
func (p *Player) Pause(ctx context.Context, paused bool) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	sessionID := p.node.SessionID()
	if sessionID == "" {
		return ErrNodeNotReady
	}
	err := p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, playerUpdate{Paused: boolPtr(paused)}, false)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	return nil
}

// Seek moves the playback position of the current track
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	if p.Current() == nil {
		return ErrNoCurrentTrack
	}
	sessionID := p.node.SessionID()
	if sessionID == "" {
		return ErrNodeNotReady
	}
	return p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, playerUpdate{Position: int64Ptr(position.Milliseconds())}, false)
}

// SetVolume sets the player volume, clamped to 0-1000
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1000 {
		volume = 1000
	}
	sessionID := p.node.SessionID()
	if sessionID == "" {
		return ErrNodeNotReady
	}
	err := p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, playerUpdate{Volume: intPtr(volume)}, false)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Skip advances to the next queued track, or stops when the queue is
// drained.
func (p *Player) Skip(ctx context.Context) error {
	if p.destroyed.Load() {
		return ErrPlayerDestroyed
	}
	next, ok := p.queue.Next()
	if !ok {
		if err := p.Stop(ctx); err != nil {
			return err
		}
		p.manager.emit(Event{Type: EventQueueEnd, Player: p})
		return nil
	}
	return p.Play(ctx, next)
}

// Destroy tears the player down: removes it from the node session,
// leaves the voice channel and deregisters it from the manager.
// Destroying twice is a no-op.
func (p *Player) Destroy(ctx context.Context) error {
	if !p.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	if sessionID := p.node.SessionID(); sessionID != "" {
		if err := p.node.rest.DestroyPlayer(ctx, sessionID, p.guildID); err != nil {
			p.logger.Warn("failed to destroy node player", Err(err))
		}
	}
	if err := p.manager.adapter.SendVoiceUpdate(p.guildID, "", false, false); err != nil {
		p.logger.Warn("failed to leave voice channel", Err(err))
	}

	p.queue.Clear()
	p.manager.removePlayer(p.guildID)
	p.manager.emit(Event{Type: EventPlayerDestroy, Player: p})
	return nil
}

// handleTrackStart reacts to the node reporting playback start
func (p *Player) handleTrackStart(track *Track) {
	p.mu.Lock()
	p.playing = true
	if track != nil && (p.current == nil || p.current.Encoded != track.Encoded) {
		p.current = track
	}
	current := p.current
	p.mu.Unlock()

	p.manager.emit(Event{Type: EventTrackStart, Player: p, Node: p.node, Track: current})
}

// handleTrackEnd reacts to the node reporting playback end and drives
// queue advancement. Replaced and stopped tracks never auto-advance;
// finished and failed ones pull the next queued track, emitting
// queueEnd when none is left.
func (p *Player) handleTrackEnd(track *Track, reason string) {
	p.mu.Lock()
	p.playing = false
	ended := p.current
	if ended == nil {
		ended = track
	}
	p.mu.Unlock()

	p.manager.emit(Event{Type: EventTrackEnd, Player: p, Node: p.node, Track: ended, Reason: reason})

	if reason == "replaced" || reason == "stopped" || reason == "cleanup" {
		return
	}

	next, ok := p.queue.Next()
	if !ok {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		p.manager.emit(Event{Type: EventQueueEnd, Player: p})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.manager.config.RESTTimeout)
	defer cancel()
	if err := p.Play(ctx, next); err != nil {
		p.logger.Error("failed to advance queue", Err(err))
		p.manager.emit(Event{Type: EventTrackError, Player: p, Track: &next, Error: err})
	}
}

func (p *Player) handleTrackException(track *Track, exc *TrackException) {
	err := errors.New("track playback failed")
	if exc != nil {
		err = errors.Errorf("track playback failed: %s (%s)", exc.Message, exc.Severity)
	}
	p.manager.emit(Event{Type: EventTrackError, Player: p, Node: p.node, Track: track, Error: err})
}

func (p *Player) handleTrackStuck(track *Track, thresholdMs int64) {
	p.manager.emit(Event{
		Type:   EventTrackStuck,
		Player: p,
		Node:   p.node,
		Track:  track,
		Error:  errors.Errorf("track stuck for %dms", thresholdMs),
	})
}

// playerState is the periodic state frame the node pushes per player
type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

func (p *Player) handlePlayerUpdate(raw json.RawMessage) {
	var state playerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return
	}

	p.mu.Lock()
	p.position = state.Position
	p.mu.Unlock()

	p.manager.emit(Event{Type: EventPlayerUpdate, Player: p, Data: raw})
}

// Connection assembles the two halves of the voice handshake. State
// and server updates may arrive in either order, once or twice; the
// assembled payload is pushed to the node whenever both halves are
// present.
type Connection struct {
	player *Player

	mu        sync.Mutex
	sessionID string
	token     string
	endpoint  string
}

// SetStateUpdate records the session id from a voice state update for
// the bot's own user. A nil channel means the bot left the channel and
// the pending handshake is reset.
func (c *Connection) SetStateUpdate(state VoiceStateUpdate) {
	c.mu.Lock()
	if state.ChannelID == nil {
		c.sessionID = ""
		c.token = ""
		c.endpoint = ""
		c.mu.Unlock()
		return
	}
	c.sessionID = state.SessionID
	c.mu.Unlock()

	c.player.mu.Lock()
	c.player.voiceChannel = *state.ChannelID
	c.player.mu.Unlock()

	c.flush()
}

// SetServerUpdate records the token and endpoint from a voice server
// update.
func (c *Connection) SetServerUpdate(server VoiceServerUpdate) {
	c.mu.Lock()
	c.token = server.Token
	c.endpoint = server.Endpoint
	c.mu.Unlock()

	c.flush()
}

// flush pushes the voice payload to the node once both halves of the
// handshake are known.
func (c *Connection) flush() {
	c.mu.Lock()
	update := voiceUpdate{
		Token:     c.token,
		Endpoint:  c.endpoint,
		SessionID: c.sessionID,
	}
	c.mu.Unlock()

	if update.Token == "" || update.Endpoint == "" || update.SessionID == "" {
		return
	}

	p := c.player
	sessionID := p.node.SessionID()
	if sessionID == "" {
		p.logger.Debug("voice handshake ready before node session, deferring")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.manager.config.RESTTimeout)
	defer cancel()
	if err := p.node.rest.UpdatePlayer(ctx, sessionID, p.guildID, playerUpdate{Voice: &update}, true); err != nil {
		p.logger.Error("failed to push voice update to node", Err(err))
		p.manager.emit(Event{Type: EventNodeError, Node: p.node, Player: p, Error: err})
	}
}
