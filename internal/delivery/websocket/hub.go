// Package websocket streams live snapshots to connected clients. Each
// connection follows one user's repository: every repository change pushes
// the fresh task list and statistics, mirroring what the subscription path
// delivered.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskdeck/internal/delivery/rest/dto"
	"taskdeck/internal/domain"
	"taskdeck/internal/repository"
	"taskdeck/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// SnapshotMessage is one pushed update on the stream
type SnapshotMessage struct {
	Type      string            `json:"type"`
	Tasks     []domain.Task     `json:"tasks"`
	Stats     dto.StatsResponse `json:"stats"`
	Loading   bool              `json:"loading"`
	LastError *dto.ErrorInfo    `json:"last_error,omitempty"`
}

// Hub upgrades connections and wires each one to its user's repository
type Hub struct {
	sessions *session.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a snapshot-stream hub
func NewHub(sessions *session.Manager, logger *zap.Logger) *Hub {
	return &Hub{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleStream handles GET /api/v1/tasks/stream
func (h *Hub) HandleStream(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "auth_required",
			Message: "Missing user id",
		})
		return
	}

	repo, err := h.sessions.Repository(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "auth_required",
			Message: "Sign in required",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		conn:   conn,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
		logger: h.logger,
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.follow(cl, repo)
	go cl.writePump()
	go cl.readPump(h)
}

// follow forwards repository changes onto the connection, starting with the
// current state so the client paints immediately
func (h *Hub) follow(cl *client, repo *repository.Repository) {
	changes := repo.Subscribe()
	defer repo.Unsubscribe(changes)

	cl.push(snapshotMessage(repo))
	for {
		select {
		case <-cl.done:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			cl.push(snapshotMessage(repo))
		}
	}
}

func snapshotMessage(repo *repository.Repository) []byte {
	stats := repo.Stats()
	msg := SnapshotMessage{
		Type:  "snapshot",
		Tasks: repo.Tasks(),
		Stats: dto.StatsResponse{
			Statistics: stats,
			Todo:       stats.Todo(),
		},
		Loading:   repo.Loading(),
		LastError: dto.NewErrorInfo(repo.LastError()),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

func (cl *client) push(data []byte) {
	if data == nil {
		return
	}
	select {
	case cl.send <- data:
	default:
		// Client not draining; the next change sends a full snapshot anyway.
	}
}

func (cl *client) close() {
	cl.once.Do(func() {
		close(cl.done)
		cl.conn.Close()
	})
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.close()
	}()

	for {
		select {
		case <-cl.done:
			return
		case message := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cl *client) readPump(h *Hub) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		cl.close()
	}()

	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				cl.logger.Debug("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
