package hibiki

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Manager is the central coordinator: it owns the node registry, the
// player registry and the event emitter, and gates everything behind
// one-time activation against a host gateway client.
type Manager struct {
	config  *Config
	logger  Logger
	emitter *Emitter
	adapter Adapter

	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	players   map[string]*Player

	clientID  string
	activated atomic.Bool
}

// NewManager creates a manager from the given configuration. The
// manager stays inert until Activate is called with a host client.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Manager{
		config:  config,
		logger:  config.Logger.With(String("component", "manager")),
		emitter: NewEmitter(),
		nodes:   make(map[string]*Node),
		players: make(map[string]*Player),
	}, nil
}

// Activate performs the one-time bootstrap: resolves the adapter
// variant, records the bot's own user id, connects the configured
// nodes, runs plugin load hooks in configuration order and wires
// inbound gateway packets into the router. Activating an already
// activated manager is a no-op. Activation is monotonic; nothing
// reverts it.
func (m *Manager) Activate(host interface{}) error {
	if m.activated.Load() {
		return nil
	}

	adapter, err := newAdapter(m.config, host)
	if err != nil {
		return err
	}
	clientID, err := adapter.ClientID()
	if err != nil {
		return errors.Wrap(err, "resolve client id")
	}

	m.adapter = adapter
	m.clientID = clientID

	for _, opts := range m.config.Nodes {
		if _, err := m.AddNode(opts); err != nil {
			return errors.Wrapf(err, "add node %s", opts.Name)
		}
	}

	for _, plugin := range m.config.Plugins {
		if err := plugin.Load(m); err != nil {
			return errors.Wrap(err, "load plugin")
		}
	}

	if err := adapter.SubscribeRaw(m); err != nil {
		return errors.Wrap(err, "subscribe raw packets")
	}

	m.activated.Store(true)
	m.logger.Info("manager activated",
		String("client_id", clientID),
		String("library", m.config.Library),
		Int("nodes", len(m.config.Nodes)),
	)
	return nil
}

// Activated reports whether the manager has been activated
func (m *Manager) Activated() bool { return m.activated.Load() }

// ClientID returns the bot's own user id, empty before activation
func (m *Manager) ClientID() string { return m.clientID }

// On subscribes a handler to a manager event kind and returns an
// unsubscribe function. Delivery is synchronous, in subscription
// order.
func (m *Manager) On(t EventType, h EventHandler) func() {
	return m.emitter.On(t, h)
}

func (m *Manager) emit(ev Event) {
	m.emitter.Emit(ev)
}

// CreateConnection returns the player for the requested guild,
// creating one when none exists. Creation selects a node by region
// when the options carry one (falling back to the least-used node when
// no regional node matches), binds the player to it and asks the host
// to join the voice channel. The check and insert run under one
// critical section, so concurrent calls for the same guild observe the
// same player.
func (m *Manager) CreateConnection(opts ConnectionOptions) (*Player, error) {
	if !m.activated.Load() {
		return nil, ErrNotActivated
	}

	m.mu.Lock()
	if player, ok := m.players[opts.GuildID]; ok {
		m.mu.Unlock()
		return player, nil
	}

	node, err := m.selectNodeLocked(opts.Region)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	factory := m.config.NewPlayer
	if factory == nil {
		factory = NewPlayer
	}
	player := factory(m, node, opts)
	m.players[opts.GuildID] = player
	m.mu.Unlock()

	m.emit(Event{Type: EventPlayerCreate, Player: player, Node: node})

	if err := player.Connect(); err != nil {
		m.removePlayer(opts.GuildID)
		return nil, errors.Wrap(err, "join voice channel")
	}
	return player, nil
}

// selectNodeLocked picks the node for a new player. Call with m.mu
// held.
func (m *Manager) selectNodeLocked(region string) (*Node, error) {
	ordered := m.orderedNodesLocked()

	connected := make([]*Node, 0, len(ordered))
	for _, node := range ordered {
		if node.Connected() {
			connected = append(connected, node)
		}
	}
	if len(connected) == 0 {
		return nil, ErrNoNodesAvailable
	}

	if region != "" {
		if regional := selectByRegion(connected, region); regional != nil {
			return regional, nil
		}
		// No node serves the region; fall back to the global
		// least-used node rather than failing the connection.
	}

	best := connected[0]
	for _, node := range connected[1:] {
		if node.Penalty() < best.Penalty() {
			best = node
		}
	}
	return best, nil
}

// selectByRegion returns the lowest-CPU node serving the region, nil
// when none does.
func selectByRegion(nodes []*Node, region string) *Node {
	var best *Node
	for _, node := range nodes {
		if !nodeServesRegion(node, region) {
			continue
		}
		if best == nil || node.CPULoadPercent() < best.CPULoadPercent() {
			best = node
		}
	}
	return best
}

// RemoveConnection destroys the player registered for the guild.
// Unknown guilds are a no-op.
func (m *Manager) RemoveConnection(ctx context.Context, guildID string) error {
	m.mu.RLock()
	player := m.players[guildID]
	m.mu.RUnlock()

	if player == nil {
		return nil
	}
	return player.Destroy(ctx)
}

// Get returns the player registered for the guild, or nil
func (m *Manager) Get(guildID string) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

// Players returns a snapshot of all registered players
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	return players
}

// removePlayer deregisters a player. Called by Player.Destroy; the
// registry map is only ever mutated through manager methods.
func (m *Manager) removePlayer(guildID string) {
	m.mu.Lock()
	delete(m.players, guildID)
	m.mu.Unlock()
}

// Destroy disconnects every node and destroys every player. The
// manager stays activated; it can keep serving after nodes are
// re-added.
func (m *Manager) Destroy(ctx context.Context) {
	for _, player := range m.Players() {
		if err := player.Destroy(ctx); err != nil {
			m.logger.Warn("failed to destroy player", Err(err), String("guild", player.GuildID()))
		}
	}

	m.mu.Lock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		nodes = append(nodes, node)
	}
	m.nodes = make(map[string]*Node)
	m.nodeOrder = nil
	m.mu.Unlock()

	for _, node := range nodes {
		node.Disconnect()
	}
}

func nodeServesRegion(node *Node, region string) bool {
	for _, r := range node.Regions() {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}
