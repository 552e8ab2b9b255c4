// Package ws раздает журнал кампании по WebSocket: сначала история, затем новые события.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения, разрешенный от клиента.
	maxMessageSize = 512
	// Запас очереди отправки сверх истории.
	sendBuffer = 256
)

// Типы сообщений для клиента.
const (
	MessageEvent      = "event"
	MessageHistoryEnd = "history_end"
)

// Message - кадр, отправляемый клиенту.
type Message struct {
	Type  string               `json:"type"`
	Event *models.SessionEvent `json:"event,omitempty"`
}

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "session_ws_clients",
	Help: "Connected WebSocket clients.",
})

// Client - одно соединение участника, подписанное на кампанию.
type Client struct {
	ParticipantID string
	CampaignID    string
	conn          *websocket.Conn
	send          chan []byte
	// after - последний ID из отправленной истории; живые события с ID <= after пропускаются.
	after string
}

// room - клиенты одной кампании и общая подписка на ее события.
type room struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

// Hub держит комнаты кампаний. Подписка на кампанию одна на процесс и живет,
// пока в комнате есть клиенты.
type Hub struct {
	events     interfaces.SessionEventLog
	subscriber interfaces.SessionEventSubscriber
	logger     *zap.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(events interfaces.SessionEventLog, subscriber interfaces.SessionEventSubscriber, logger *zap.Logger) *Hub {
	return &Hub{
		events:     events,
		subscriber: subscriber,
		logger:     logger.Named("WebSocketHub"),
		rooms:      make(map[string]*room),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Доступ проверяется токеном, а не Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve поднимает соединение, отправляет историю и подключает клиента к живым событиям.
// Доступ участника к кампании проверяется до вызова.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, campaignID, participantID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}
	client := &Client{ParticipantID: participantID, CampaignID: campaignID, conn: conn}
	if err := h.join(r.Context(), client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "history unavailable"))
		_ = conn.Close()
		return err
	}

	log := h.logger.With(zap.String("campaign_id", campaignID), zap.String("participant_id", participantID))
	log.Info("WebSocket connection established")
	go client.writePump(log)
	go client.readPump(h, log)
	return nil
}

// join под блокировкой хаба ставит историю в очередь клиента и добавляет его в комнату,
// так что живое событие не обгонит историю и не придет дважды.
func (h *Hub) join(ctx context.Context, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, err := h.roomLocked(client.CampaignID)
	if err != nil {
		return err
	}
	history, err := h.events.List(ctx, client.CampaignID)
	if err != nil {
		h.closeIfEmptyLocked(client.CampaignID, rm)
		return fmt.Errorf("failed to load history for %s: %w", client.CampaignID, err)
	}

	client.send = make(chan []byte, len(history)+sendBuffer)
	for i := range history {
		client.send <- encode(Message{Type: MessageEvent, Event: &history[i]})
		client.after = history[i].ID
	}
	client.send <- encode(Message{Type: MessageHistoryEnd})

	rm.clients[client] = struct{}{}
	connectedClients.Inc()
	return nil
}

// roomLocked возвращает комнату, открывая подписку для первого клиента.
func (h *Hub) roomLocked(campaignID string) (*room, error) {
	if rm, ok := h.rooms[campaignID]; ok {
		return rm, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.subscriber.Subscribe(ctx, campaignID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", campaignID, err)
	}
	rm := &room{clients: make(map[*Client]struct{}), cancel: cancel}
	h.rooms[campaignID] = rm
	go h.pump(campaignID, rm, ch)
	h.logger.Debug("Room opened", zap.String("campaign_id", campaignID))
	return rm, nil
}

// pump раздает события подписки клиентам комнаты.
func (h *Hub) pump(campaignID string, rm *room, ch <-chan models.SessionEvent) {
	for ev := range ch {
		msg := encode(Message{Type: MessageEvent, Event: &ev})
		h.mu.Lock()
		for client := range rm.clients {
			if ev.ID != "" && ev.ID <= client.after {
				continue
			}
			select {
			case client.send <- msg:
			default:
				h.logger.Warn("Send queue overflow, dropping client",
					zap.String("campaign_id", campaignID), zap.String("participant_id", client.ParticipantID))
				h.removeLocked(client)
			}
		}
		h.mu.Unlock()
	}
	h.logger.Debug("Room subscription closed", zap.String("campaign_id", campaignID))
}

// leave убирает клиента; последняя отписка закрывает подписку комнаты.
func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	rm, ok := h.rooms[client.CampaignID]
	if !ok {
		return
	}
	if _, ok := rm.clients[client]; !ok {
		return
	}
	delete(rm.clients, client)
	close(client.send)
	connectedClients.Dec()
	h.closeIfEmptyLocked(client.CampaignID, rm)
}

func (h *Hub) closeIfEmptyLocked(campaignID string, rm *room) {
	if len(rm.clients) > 0 {
		return
	}
	rm.cancel()
	delete(h.rooms, campaignID)
}

// Clients возвращает число клиентов кампании.
func (h *Hub) Clients(campaignID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok := h.rooms[campaignID]; ok {
		return len(rm.clients)
	}
	return 0
}

func encode(m Message) []byte {
	data, _ := json.Marshal(m)
	return data
}

// readPump читает только управляющие кадры; входящие сообщения игнорируются.
func (c *Client) readPump(h *Hub, log *zap.Logger) {
	defer func() {
		h.leave(c)
		_ = c.conn.Close()
		log.Info("WebSocket connection closed")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		log.Debug("Ignoring client message")
	}
}

// writePump откачивает сообщения из канала send в WebSocket соединение, по одному на кадр.
func (c *Client) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
