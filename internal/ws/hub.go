// Package ws рассылает уведомления об изменениях заявок подключённым
// клиентам и мастерам.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/homemaster-backend/internal/models"
)

// Hub управляет всеми WebSocket подключениями.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	ctx        context.Context
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
		ctx:        ctx,
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет подключение.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет подключение.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastJobUpdate отправляет событие заявки её клиенту и назначенному
// мастеру. Код подтверждения из рассылки мастеру не вырезается: мастер
// получает его только после принятия оффера, когда заявка уже его.
func (h *Hub) BroadcastJobUpdate(event string, job *models.Job) {
	h.broadcastTo(job.ClientID, event, job)
	if job.ProviderID != nil {
		h.broadcastTo(*job.ProviderID, event, job)
	}
}

func (h *Hub) broadcastTo(userID uuid.UUID, event string, data any) {
	// Поле "type" содержит имя события, "data" — полезную нагрузку.
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message{userID: userID, payload: raw}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; exists {
		delete(set, client)
		close(client.send)
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// Медленный получатель не должен блокировать рассылку.
		}
	}
}
