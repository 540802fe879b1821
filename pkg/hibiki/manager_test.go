package hibiki

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "90909090"

// newTestManager builds a manager on the "other" adapter so tests run
// without a live gateway. Sent payloads are collected when sink is
// non-nil.
func newTestManager(t *testing.T, sink *[][]byte) *Manager {
	t.Helper()

	var mu sync.Mutex
	cfg := DefaultConfig()
	cfg.Library = LibraryOther
	cfg.ClientID = testClientID
	cfg.Send = func(guildID string, payload json.RawMessage) error {
		if sink != nil {
			mu.Lock()
			*sink = append(*sink, payload)
			mu.Unlock()
		}
		return nil
	}
	cfg.ReconnectTries = 0
	cfg.ReconnectTimeout = time.Millisecond
	cfg.Logger = NullLogger()

	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

// addTestNode registers a node handle directly, bypassing the socket
// lifecycle.
func addTestNode(m *Manager, name string, connected bool, stats *NodeStats, regions ...string) *Node {
	node := newNode(m, NodeOptions{
		Name:     name,
		Host:     "localhost",
		Port:     2333,
		Password: "testpass",
		Regions:  regions,
	})
	if stats != nil {
		node.stats = *stats
		node.statsOK = true
	}
	node.connected.Store(connected)

	m.mu.Lock()
	m.nodes[name] = node
	m.nodeOrder = append(m.nodeOrder, name)
	m.mu.Unlock()
	return node
}

func playingStats(players int) *NodeStats {
	return &NodeStats{
		PlayingPlayers: players,
		CPU:            CPUStats{Cores: 4},
	}
}

func TestManagerActivation(t *testing.T) {
	m := newTestManager(t, nil)

	assert.False(t, m.Activated())
	assert.Empty(t, m.ClientID())

	require.NoError(t, m.Activate(nil))
	assert.True(t, m.Activated())
	assert.Equal(t, testClientID, m.ClientID())

	// Activation is idempotent and monotonic.
	require.NoError(t, m.Activate(nil))
	assert.True(t, m.Activated())
}

func TestOperationsRequireActivation(t *testing.T) {
	m := newTestManager(t, nil)
	addTestNode(m, "alpha", true, playingStats(0))
	ctx := context.Background()

	_, err := m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	assert.ErrorIs(t, err, ErrNotActivated)

	_, err = m.Resolve(ctx, ResolveRequest{Query: "test"}, nil)
	assert.ErrorIs(t, err, ErrNotActivated)

	_, err = m.DecodeTrack(ctx, "handle", nil)
	assert.ErrorIs(t, err, ErrNotActivated)

	_, err = m.GetNodeInfo(ctx, "alpha")
	assert.ErrorIs(t, err, ErrNotActivated)

	_, err = m.GetNodeStatus(ctx, "alpha")
	assert.ErrorIs(t, err, ErrNotActivated)

	// The same calls pass the gate once activated.
	require.NoError(t, m.Activate(nil))
	_, err = m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	assert.NoError(t, err)
}

func TestPluginsLoadInOrder(t *testing.T) {
	var order []string
	cfgPlugins := []Plugin{
		pluginFunc(func(m *Manager) error { order = append(order, "first"); return nil }),
		pluginFunc(func(m *Manager) error { order = append(order, "second"); return nil }),
		pluginFunc(func(m *Manager) error { order = append(order, "third"); return nil }),
	}

	m := newTestManager(t, nil)
	m.config.Plugins = cfgPlugins

	require.NoError(t, m.Activate(nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

type pluginFunc func(m *Manager) error

func (f pluginFunc) Load(m *Manager) error { return f(m) }

func TestCreateConnectionGetOrCreate(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))
	addTestNode(m, "alpha", true, playingStats(0))

	first, err := m.CreateConnection(ConnectionOptions{GuildID: "guild-1", VoiceChannel: "vc-1"})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.CreateConnection(ConnectionOptions{GuildID: "guild-1", VoiceChannel: "vc-2"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := m.CreateConnection(ConnectionOptions{GuildID: "guild-2", VoiceChannel: "vc-1"})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Len(t, m.Players(), 2)
}

func TestCreateConnectionConcurrent(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))
	addTestNode(m, "alpha", true, playingStats(0))

	const callers = 32
	players := make([]*Player, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.CreateConnection(ConnectionOptions{GuildID: "guild-1", VoiceChannel: "vc"})
			assert.NoError(t, err)
			players[i] = p
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, players[0], players[i], "caller %d saw a different player", i)
	}
	assert.Len(t, m.Players(), 1)
}

func TestCreateConnectionNoNodes(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))

	_, err := m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	assert.ErrorIs(t, err, ErrNoNodesAvailable)

	// A registered but disconnected node does not help.
	addTestNode(m, "down", false, nil)
	_, err = m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	assert.ErrorIs(t, err, ErrNoNodesAvailable)
}

func TestCreateConnectionRegionSelection(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))

	// busy is globally least preferred but the only eu node.
	busy := addTestNode(m, "busy", true, &NodeStats{
		PlayingPlayers: 50,
		CPU:            CPUStats{Cores: 4, SystemLoad: 0.2},
	}, "eu")
	idle := addTestNode(m, "idle", true, playingStats(0), "us")

	regional, err := m.CreateConnection(ConnectionOptions{GuildID: "g-eu", VoiceChannel: "vc", Region: "EU"})
	require.NoError(t, err)
	assert.Same(t, busy, regional.Node())

	// A region nobody serves falls back to the least-used node.
	fallback, err := m.CreateConnection(ConnectionOptions{GuildID: "g-sa", VoiceChannel: "vc", Region: "brazil"})
	require.NoError(t, err)
	assert.Same(t, idle, fallback.Node())
}

func TestCreateConnectionUsesCustomFactory(t *testing.T) {
	m := newTestManager(t, nil)
	called := false
	m.config.NewPlayer = func(mgr *Manager, node *Node, opts ConnectionOptions) *Player {
		called = true
		return NewPlayer(mgr, node, opts)
	}
	require.NoError(t, m.Activate(nil))
	addTestNode(m, "alpha", true, playingStats(0))

	_, err := m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRemoveConnection(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))
	addTestNode(m, "alpha", true, playingStats(0))
	ctx := context.Background()

	// Unknown guilds are a no-op.
	assert.NoError(t, m.RemoveConnection(ctx, "nope"))

	player, err := m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	require.NoError(t, err)

	var destroyed []*Player
	m.On(EventPlayerDestroy, func(e Event) {
		destroyed = append(destroyed, e.Player)
	})

	require.NoError(t, m.RemoveConnection(ctx, "g1"))
	assert.Nil(t, m.Get("g1"))
	assert.Equal(t, []*Player{player}, destroyed)

	// Destroying again is a no-op.
	assert.NoError(t, m.RemoveConnection(ctx, "g1"))
	assert.Len(t, destroyed, 1)
}

func TestPlayerCreateEvent(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Activate(nil))
	node := addTestNode(m, "alpha", true, playingStats(0))

	var created []Event
	m.On(EventPlayerCreate, func(e Event) { created = append(created, e) })

	player, err := m.CreateConnection(ConnectionOptions{GuildID: "g1", VoiceChannel: "vc"})
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Same(t, player, created[0].Player)
	assert.Same(t, node, created[0].Node)
}

func TestConnectSendsVoiceStatePayload(t *testing.T) {
	var sent [][]byte
	m := newTestManager(t, &sent)
	require.NoError(t, m.Activate(nil))
	addTestNode(m, "alpha", true, playingStats(0))

	_, err := m.CreateConnection(ConnectionOptions{
		GuildID:      "guild-1",
		VoiceChannel: "chan-1",
		SelfDeaf:     true,
	})
	require.NoError(t, err)

	require.Len(t, sent, 1)
	var payload struct {
		Op int `json:"op"`
		D  struct {
			GuildID   string  `json:"guild_id"`
			ChannelID *string `json:"channel_id"`
			SelfDeaf  bool    `json:"self_deaf"`
		} `json:"d"`
	}
	require.NoError(t, json.Unmarshal(sent[0], &payload))
	assert.Equal(t, 4, payload.Op)
	assert.Equal(t, "guild-1", payload.D.GuildID)
	require.NotNil(t, payload.D.ChannelID)
	assert.Equal(t, "chan-1", *payload.D.ChannelID)
	assert.True(t, payload.D.SelfDeaf)
}
