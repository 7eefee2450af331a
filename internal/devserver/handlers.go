package devserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/chatclient/internal/domain"
	livews "github.com/nfrund/chatclient/internal/websocket"
)

type handler struct {
	store *Store
	hub   *Hub
}

func currentUser(c echo.Context) domain.User {
	user, _ := c.Get(userContextKey).(domain.User)
	return user
}

// ListUsers handles GET /api/messages/users.
func (h *handler) ListUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.UsersExcept(currentUser(c).ID))
}

// ListMessages handles GET /api/messages/:id.
func (h *handler) ListMessages(c echo.Context) error {
	me := currentUser(c)
	return c.JSON(http.StatusOK, h.store.Conversation(me.ID, c.Param("id")))
}

// SendMessage handles POST /api/messages/send/:id.
func (h *handler) SendMessage(c echo.Context) error {
	me := currentUser(c)
	receiverID := c.Param("id")
	if _, ok := h.store.User(receiverID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Receiver not found")
	}

	var payload domain.SendPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Message must have text or an image")
	}

	msg := h.store.AddMessage(me.ID, receiverID, payload)

	delivered, err := h.hub.Emit(receiverID, livews.EventNewMessage, msg)
	if err != nil {
		FromContext(c.Request().Context()).Error("Failed to push message", "error", err)
	}
	FromContext(c.Request().Context()).Debug("Message stored",
		"message_id", msg.ID, "receiver_id", receiverID, "pushed", delivered)

	return c.JSON(http.StatusCreated, msg)
}

// CheckAuth handles GET /api/auth/check and returns the caller.
func (h *handler) CheckAuth(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}
