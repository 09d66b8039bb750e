// cmd/stock-events-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"granary/internal/pkg/bootstrap"
	"granary/internal/pkg/logger"
	"granary/internal/pkg/mq"
	"granary/internal/service/stock/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "stock-events-gateway"

var (
	nodeID   = serviceName + "-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // 简化处理，允许所有跨域
	}
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub 维护所有活跃的 WebSocket 连接，并把库存变更事件广播出去。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.StockChanged
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan domain.StockChanged, 64),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Client registered on node %s (watching %q)", nodeID, client.productID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			for client := range h.clients {
				// 空 productID 表示订阅全部商品
				if client.productID != "" && client.productID != event.ProductID {
					continue
				}
				select {
				case client.send <- payload:
				default:
					// 慢客户端：直接断开，不拖累其他连接
					delete(h.clients, client)
					close(client.send)
				}
			}
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return
		}
	}
}

// Client 代表一个 WebSocket 连接。
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	productID string // 可选的商品过滤
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 客户端只订阅不发言，读循环用来处理 pong 和关闭
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		productID: r.URL.Query().Get("product_id"),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeEvents 消费变更主题并灌入 Hub。
func consumeEvents(ctx context.Context, hub *Hub) error {
	cfg := bootstrap.GetCurrentConfig()
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Stock.Topics.Events, nodeID)
	defer reader.Close()

	logger.Ctx(ctx).Info().Str("topic", cfg.Stock.Topics.Events).Msg("Event consumer started")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Could not read change event, retrying")
			time.Sleep(1 * time.Second)
			continue
		}

		var event domain.StockChanged
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Skipping undecodable change event")
			continue
		}

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	hub := newHub()
	g.Go(func() error {
		hub.run(gctx)
		return nil
	})
	g.Go(func() error {
		return consumeEvents(gctx, hub)
	})

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.GatewayPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, w, r)
			})
		},
		OnShutdown: func(shutdownCtx context.Context) {
			cancel()
			if err := g.Wait(); err != nil {
				log.Printf("Error during event pipeline shutdown: %v", err)
			}
		},
	})
}
