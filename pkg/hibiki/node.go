package hibiki

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const clientName = "Hibiki/1.0"

// Node is the handle for one backend connection. It is owned
// exclusively by the manager's node registry; players hold a
// non-owning reference and never mutate its connectivity or
// statistics.
type Node struct {
	manager *Manager
	options NodeOptions
	rest    *restClient
	logger  Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	sessionID string
	stats     NodeStats
	statsOK   bool

	connected  atomic.Bool
	connecting atomic.Bool
	closing    atomic.Bool
}

func newNode(m *Manager, opts NodeOptions) *Node {
	return &Node{
		manager: m,
		options: opts,
		rest:    newRESTClient(opts, m.config.RESTTimeout),
		logger:  m.logger.With(String("node", opts.Name)),
	}
}

// Name returns the node's unique registry key
func (n *Node) Name() string { return n.options.Name }

// Options returns the descriptor the node was constructed from
func (n *Node) Options() NodeOptions { return n.options }

// Regions returns the voice regions this node is configured to serve
func (n *Node) Regions() []string { return n.options.Regions }

// Connected reports whether the node socket is currently up
func (n *Node) Connected() bool { return n.connected.Load() }

// SessionID returns the node-assigned session id, empty until the
// ready frame has arrived.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Stats returns the last load-statistics snapshot pushed by the node
// and whether one has arrived yet.
func (n *Node) Stats() (NodeStats, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats, n.statsOK
}

// CPULoadPercent is the node's system load normalized per core, as a
// percentage. Zero until the first stats frame arrives.
func (n *Node) CPULoadPercent() float64 {
	stats, ok := n.Stats()
	if !ok || stats.CPU.Cores == 0 {
		return 0
	}
	return stats.CPU.SystemLoad / float64(stats.CPU.Cores) * 100
}

// Penalty is the composite load score used by the selector; lower is
// more preferred. The score combines playing players, per-core CPU
// load and frame delivery deficits.
func (n *Node) Penalty() int {
	stats, ok := n.Stats()
	if !ok {
		return 0
	}

	penalty := stats.PlayingPlayers
	penalty += int(math.Pow(1.05, 100*stats.CPU.SystemLoad)*10 - 10)
	if stats.FrameStats != nil {
		penalty += int(math.Pow(1.03, 500*float64(stats.FrameStats.Deficit)/3000)*600 - 600)
		penalty += int(math.Pow(1.03, 500*float64(stats.FrameStats.Nulled)/3000)*300-300) * 2
	}
	return penalty
}

// Connect starts the socket lifecycle on its own goroutine. Calling it
// on a node that is already connected or connecting is a no-op.
func (n *Node) Connect() {
	if n.connected.Load() || !n.connecting.CompareAndSwap(false, true) {
		return
	}
	n.closing.Store(false)
	go n.run()
}

// Disconnect tears the socket down and stops the reconnect loop
func (n *Node) Disconnect() {
	n.closing.Store(true)

	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	n.connected.Store(false)
}

// run drives the connect / read / reconnect cycle until Disconnect is
// called or the retry budget is spent.
func (n *Node) run() {
	defer n.connecting.Store(false)

	reconnect := false
	attempts := 0
	for {
		if n.closing.Load() {
			return
		}

		err := n.dial(reconnect)
		if err == nil {
			attempts = 0
			err = n.listen()
		}
		n.connected.Store(false)
		n.mu.Lock()
		if n.conn != nil {
			n.conn.Close()
			n.conn = nil
		}
		n.mu.Unlock()

		if n.closing.Load() {
			return
		}
		n.manager.emit(Event{Type: EventNodeDisconnect, Node: n, Error: err})

		attempts++
		if attempts > n.manager.config.ReconnectTries {
			n.logger.Error("node reconnect budget exhausted", Err(err), Int("attempts", attempts-1))
			n.manager.emit(Event{Type: EventNodeError, Node: n, Error: errors.Wrap(err, "reconnect budget exhausted")})
			return
		}

		n.logger.Warn("node socket dropped, reconnecting",
			Err(err),
			Int("attempt", attempts),
			Duration("delay", n.manager.config.ReconnectTimeout),
		)
		reconnect = true
		time.Sleep(n.manager.config.ReconnectTimeout)
	}
}

// dial opens the node websocket and announces the connection
func (n *Node) dial(reconnect bool) error {
	scheme := "ws"
	if n.options.Secure {
		scheme = "wss"
	}
	endpoint := fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, n.options.Host, n.options.Port)

	header := http.Header{}
	header.Set("Authorization", n.options.Password)
	header.Set("User-Id", n.manager.ClientID())
	header.Set("Client-Name", clientName)
	if n.manager.config.AutoResume {
		if prev := n.SessionID(); prev != "" {
			header.Set("Session-Id", prev)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, header)
	if err != nil {
		return errors.Wrapf(err, "dial node %s", n.options.Name)
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	n.connected.Store(true)

	if reconnect {
		n.logger.Info("node reconnected")
		n.manager.emit(Event{Type: EventNodeReconnect, Node: n})
	} else {
		n.logger.Info("node connected")
		n.manager.emit(Event{Type: EventNodeConnect, Node: n})
	}
	return nil
}

// listen reads socket frames until the connection drops
func (n *Node) listen() error {
	for {
		n.mu.RLock()
		conn := n.conn
		n.mu.RUnlock()
		if conn == nil {
			return errors.New("connection closed")
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		n.handleMessage(data)
	}
}

// nodeMessage is the envelope of every socket frame
type nodeMessage struct {
	Op        string          `json:"op"`
	SessionID string          `json:"sessionId"`
	Resumed   bool            `json:"resumed"`
	GuildID   string          `json:"guildId"`
	Type      string          `json:"type"`
	State     json.RawMessage `json:"state"`
}

func (n *Node) handleMessage(data []byte) {
	var msg nodeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Malformed frames are dropped, never fatal.
		n.logger.Warn("dropping malformed node frame", Err(err))
		return
	}

	n.manager.emit(Event{Type: EventRaw, Node: n, Data: data})

	switch msg.Op {
	case "ready":
		n.handleReady(msg)
	case "stats":
		var stats NodeStats
		if err := json.Unmarshal(data, &stats); err != nil {
			n.logger.Warn("dropping malformed stats frame", Err(err))
			return
		}
		n.mu.Lock()
		n.stats = stats
		n.statsOK = true
		n.mu.Unlock()
	case "playerUpdate":
		if player := n.manager.Get(msg.GuildID); player != nil {
			player.handlePlayerUpdate(msg.State)
		}
	case "event":
		n.handleEvent(msg, data)
	default:
		n.logger.Debug("ignoring unknown node op", String("op", msg.Op))
	}
}

func (n *Node) handleReady(msg nodeMessage) {
	n.mu.Lock()
	n.sessionID = msg.SessionID
	n.mu.Unlock()

	n.logger.Info("node session ready", String("session_id", msg.SessionID), Bool("resumed", msg.Resumed))

	if n.manager.config.ResumeKey != "" || n.manager.config.AutoResume {
		ctx, cancel := context.WithTimeout(context.Background(), n.manager.config.RESTTimeout)
		defer cancel()
		if err := n.rest.UpdateSession(ctx, msg.SessionID, true, n.manager.config.ResumeTimeout); err != nil {
			n.logger.Warn("failed to enable session resuming", Err(err))
		}
	}
}

// playbackEvent is the kind-specific payload of an "event" frame
type playbackEvent struct {
	Track     *Track          `json:"track"`
	Reason    string          `json:"reason"`
	Exception *TrackException `json:"exception"`
	Threshold int64           `json:"thresholdMs"`
	Code      int             `json:"code"`
	ByRemote  bool            `json:"byRemote"`
}

func (n *Node) handleEvent(msg nodeMessage, data []byte) {
	player := n.manager.Get(msg.GuildID)
	if player == nil {
		// Events for sessions we no longer own are dropped.
		return
	}

	var ev playbackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		n.logger.Warn("dropping malformed event frame", Err(err), String("type", msg.Type))
		return
	}

	switch msg.Type {
	case "TrackStartEvent":
		player.handleTrackStart(ev.Track)
	case "TrackEndEvent":
		player.handleTrackEnd(ev.Track, ev.Reason)
	case "TrackExceptionEvent":
		player.handleTrackException(ev.Track, ev.Exception)
	case "TrackStuckEvent":
		player.handleTrackStuck(ev.Track, ev.Threshold)
	case "WebSocketClosedEvent":
		n.manager.emit(Event{
			Type:   EventSocketClosed,
			Node:   n,
			Player: player,
			Code:   ev.Code,
			Reason: ev.Reason,
		})
	default:
		n.logger.Debug("ignoring unknown playback event", String("type", msg.Type))
	}
}
