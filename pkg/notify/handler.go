package notify

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"starnotary/pkg/accounts"
	"starnotary/pkg/response"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    hub,
		logger: logger.Named("notify"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browsers on other origins are already filtered by CORS
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the feed behind requireCaller, which must record the
// subscriber with accounts.SetCaller.
func (h *Handler) RegisterRoutes(router *gin.Engine, requireCaller gin.HandlerFunc) {
	router.GET("/ws/events", requireCaller, h.HandleEvents)
	router.GET("/events/status", h.GetStatus)
}

// HandleEvents godoc
// @Summary Subscribe to ledger events
// @Description Upgrades to a WebSocket that receives every event the caller is a party to
// @Tags events
// @Security BasicAuth
// @Failure 401 {object} response.APIResponse
// @Router /ws/events [get]
func (h *Handler) HandleEvents(c *gin.Context) {
	accountID := accounts.CallerID(c)
	if accountID == "" {
		response.SendAPIResponse(c, http.StatusUnauthorized, false, "authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.AddClient(accountID, conn)
	h.logger.Info("feed connected", zap.String("account", accountID))

	go h.readLoop(client)
	go h.writeLoop(client)
}

// GetStatus godoc
// @Summary Online feed subscribers
// @Tags events
// @Produce json
// @Success 200 {object} response.APIResponse{data=statusResponse}
// @Router /events/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	online := h.hub.OnlineAccounts()
	response.SendAPIResponse(c, http.StatusOK, true, "online status", statusResponse{
		OnlineAccounts: online,
		Count:          len(online),
	})
}

// readLoop drains the connection so control frames are processed. The feed
// is push-only; anything the client sends gets an error frame.
func (h *Handler) readLoop(client *Client) {
	defer func() {
		h.hub.RemoveClient(client)
		h.logger.Info("feed disconnected", zap.String("account", client.AccountID))
	}()

	client.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("feed read failed", zap.String("account", client.AccountID), zap.Error(err))
			}
			return
		}

		select {
		case client.Send <- ErrorResponse{Error: "event feed is read-only"}:
		case <-client.Done:
			return
		default:
		}
	}
}

func (h *Handler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done:
			return

		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Conn.WriteJSON(message); err != nil {
				h.logger.Warn("feed write failed", zap.String("account", client.AccountID), zap.Error(err))
				h.hub.RemoveClient(client)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.RemoveClient(client)
				return
			}
		}
	}
}
