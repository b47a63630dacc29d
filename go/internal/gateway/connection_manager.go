package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/rs/zerolog/log"
)

// SessionSource defines what the connection manager reads from the session store
type SessionSource interface {
	Snapshot(ctx context.Context, sessionID string) (models.Snapshot, error)
	Watch(ctx context.Context, sessionID string) (<-chan store.Event, error)
}

// ControllerFactory creates the controller for a new connection
type ControllerFactory func(sessionID string) *poker.Controller

// ConnectionManager manages WebSocket connections grouped by session
type ConnectionManager struct {
	sessions map[string]*sessionPool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	source        SessionSource
	newController ControllerFactory

	// Session ids whose connections need a fresh snapshot
	broadcastCh chan string

	ctx    context.Context
	cancel context.CancelFunc
}

type sessionPool struct {
	connections map[*Connection]bool
	stopWatch   context.CancelFunc
}

// Connection is one client socket and the controller it drives
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	Controller *poker.Controller
	commands   *CommandHandler

	ConnectedAt time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	CommandTimeout   time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int
	DefaultCountdown int
	CheckOrigin      func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		CommandTimeout:   5 * time.Second,
		MaxMessageSize:   4096,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBufferSize:   64,
		DefaultCountdown: 5,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, source SessionSource, newController ControllerFactory) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		sessions: make(map[string]*sessionPool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:        config,
		source:        source,
		newController: newController,
		broadcastCh:   make(chan string, 256),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start processes refresh requests until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer cm.cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case sessionID := <-cm.broadcastCh:
			cm.handleBroadcast(ctx, sessionID)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and attaches a
// fresh controller for sessionID. A non-empty token is restored right away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, token string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	controller := cm.newController(sessionID)
	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		Controller:  controller,
		commands:    NewCommandHandler(controller, cm.config.DefaultCountdown),
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	connection.greet(token)
	return nil
}

// registerConnection adds a connection and starts watching its session if
// it is the first one.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pool, ok := cm.sessions[conn.SessionID]
	if !ok {
		watchCtx, stop := context.WithCancel(cm.ctx)
		pool = &sessionPool{
			connections: make(map[*Connection]bool),
			stopWatch:   stop,
		}
		cm.sessions[conn.SessionID] = pool
		go cm.watchSession(watchCtx, conn.SessionID)
	}
	pool.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(pool.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection; the session watch stops with
// its last connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	conn.closeOnce.Do(func() {
		cm.mu.Lock()
		if pool, ok := cm.sessions[conn.SessionID]; ok {
			delete(pool.connections, conn)
			if len(pool.connections) == 0 {
				pool.stopWatch()
				delete(cm.sessions, conn.SessionID)
			}
		}
		cm.mu.Unlock()

		close(conn.done)
		conn.Controller.Close()

		log.Info().
			Str("connection_id", conn.ID).
			Str("session_id", conn.SessionID).
			Msg("connection unregistered")
	})
}

// watchSession turns store changes into refresh requests. Events arriving
// together collapse into one refresh.
func (cm *ConnectionManager) watchSession(ctx context.Context, sessionID string) {
	events, err := cm.source.Watch(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to watch session")
		return
	}

	log.Debug().Str("session_id", sessionID).Msg("session watch started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", sessionID).Msg("session watch stopped")
			return
		case _, ok := <-events:
			if !ok {
				log.Warn().Str("session_id", sessionID).Msg("session watch closed")
				return
			}
		}

	drain:
		for {
			select {
			case _, ok := <-events:
				if !ok {
					break drain
				}
			default:
				break drain
			}
		}
		cm.Refresh(sessionID)
	}
}

// Refresh schedules a snapshot read for every connection of a session
func (cm *ConnectionManager) Refresh(sessionID string) {
	select {
	case cm.broadcastCh <- sessionID:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping refresh")
	}
}

// handleBroadcast reads the session once and sends each connection its own view
func (cm *ConnectionManager) handleBroadcast(ctx context.Context, sessionID string) {
	targets := cm.connections(sessionID)
	if len(targets) == 0 {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, cm.config.CommandTimeout)
	defer cancel()

	snap, err := cm.source.Snapshot(readCtx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to read session for broadcast")
		return
	}

	for _, conn := range targets {
		conn.Controller.Apply(snap)
		conn.send(newViewMessage(conn.Controller.View()))
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("connections", len(targets)).
		Msg("session view broadcasted")
}

func (cm *ConnectionManager) connections(sessionID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	pool, ok := cm.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(pool.connections))
	for conn := range pool.connections {
		out = append(out, conn)
	}
	return out
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{SessionConnections: make(map[string]int, len(cm.sessions))}
	for sessionID, pool := range cm.sessions {
		stats.TotalConnections += len(pool.connections)
		stats.SessionConnections[sessionID] = len(pool.connections)
	}
	stats.ActiveSessions = len(cm.sessions)
	return stats
}

// greet restores a stored identity or syncs, then sends the first view.
func (c *Connection) greet(token string) {
	ctx, cancel := context.WithTimeout(c.Manager.ctx, c.Manager.config.CommandTimeout)
	defer cancel()

	if token != "" {
		c.sendAll(c.commands.Handle(ctx, ClientCommand{Type: CommandRestore, Token: token}))
		return
	}
	if err := c.Controller.Sync(ctx); err != nil {
		c.send(newErrorMessage("", err))
	}
	c.send(newViewMessage(c.Controller.View()))
}

// send queues msg. A connection too slow to keep up is closed.
func (c *Connection) send(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal server message")
		return
	}

	select {
	case <-c.done:
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("session_id", c.SessionID).
			Msg("connection send buffer full, closing connection")
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}
}

func (c *Connection) sendAll(msgs []ServerMessage) {
	for _, msg := range msgs {
		c.send(msg)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the socket closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs one command and replies to this client. Other
// connections of the session pick the change up through the store watch.
func (c *Connection) handleClientMessage(message []byte) {
	cmd, err := ParseCommand(message)
	if err != nil {
		c.send(newErrorMessage("", err))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Str("command", string(cmd.Type)).
		Msg("received client command")

	ctx, cancel := context.WithTimeout(c.Manager.ctx, c.Manager.config.CommandTimeout)
	defer cancel()
	c.sendAll(c.commands.Handle(ctx, cmd))
}
