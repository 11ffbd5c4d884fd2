package watch

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	goccyjson "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains the set of connected dashboard clients and broadcasts
// resolved WatchDiffs to them, adapted from the teacher's websocket Hub.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel to every connected client. Call it in
// its own goroutine once per Hub.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("watch: websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an incoming gin request to a websocket connection and
// registers it with the hub.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("watch: failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

type diffPayload struct {
	Watch   string     `json:"watch"`
	Adds    [][]string `json:"adds"`
	Removes [][]string `json:"removes"`
}

// WebSocketWatcher is the Watcher that streams every named watch block's
// reconciled diff out to subscribed dashboards in real time, resolving
// interned ids to their printable form first.
type WebSocketWatcher struct {
	hub *Hub
}

func NewWebSocketWatcher(hub *Hub) *WebSocketWatcher { return &WebSocketWatcher{hub: hub} }

func (w *WebSocketWatcher) Notify(name string, diff index.WatchDiff, in *interner.Interner) {
	payload := diffPayload{Watch: name}
	for _, row := range diff.Adds {
		payload.Adds = append(payload.Adds, resolveRow(row, in))
	}
	for _, row := range diff.Removes {
		payload.Removes = append(payload.Removes, resolveRow(row, in))
	}
	data, err := goccyjson.Marshal(payload)
	if err != nil {
		log.Printf("watch: failed to marshal diff: %v", err)
		return
	}
	w.hub.broadcast <- data
}

func resolveRow(row index.WatchRow, in *interner.Interner) []string {
	out := make([]string, len(row))
	for i, id := range row {
		out[i] = in.Resolve(id).String()
	}
	return out
}
