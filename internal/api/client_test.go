package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/chatclient/internal/api"
	"github.com/nfrund/chatclient/internal/domain"
)

// newBackend starts an echo server with the given routes registered.
func newBackend(t *testing.T, register func(e *echo.Echo)) *api.Client {
	t.Helper()
	e := echo.New()
	register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL+"/api/", api.WithAuthToken("secret-token"), api.WithTimeout(2*time.Second))
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := api.NewClient("localhost")
	assert.Error(t, err)

	_, err = api.NewClient("://bad")
	assert.Error(t, err)
}

func TestClient_ListUsers(t *testing.T) {
	client := newBackend(t, func(e *echo.Echo) {
		e.GET("/api/messages/users", func(c echo.Context) error {
			cookie, err := c.Cookie(api.AuthCookie)
			if err != nil || cookie.Value != "secret-token" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized - No Token Provided")
			}
			return c.JSON(http.StatusOK, []map[string]string{
				{"_id": "u1", "fullName": "Alice"},
				{"_id": "u2", "fullName": "Bob"},
			})
		})
	})

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.User{{ID: "u1", FullName: "Alice"}, {ID: "u2", FullName: "Bob"}}, users)
}

func TestClient_ListMessages(t *testing.T) {
	var gotID string
	client := newBackend(t, func(e *echo.Echo) {
		e.GET("/api/messages/:id", func(c echo.Context) error {
			gotID = c.Param("id")
			return c.JSON(http.StatusOK, []map[string]string{
				{"_id": "m1", "senderId": "u1", "receiverId": "me", "text": "hi"},
			})
		})
	})

	messages, err := client.ListMessages(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", gotID)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Text)

	_, err = client.ListMessages(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingUserID)
}

func TestClient_SendMessage(t *testing.T) {
	client := newBackend(t, func(e *echo.Echo) {
		e.POST("/api/messages/send/:id", func(c echo.Context) error {
			var payload domain.SendPayload
			if err := c.Bind(&payload); err != nil {
				return err
			}
			switch c.Param("id") {
			case "empty":
				return c.NoContent(http.StatusCreated)
			case "null":
				return c.JSONBlob(http.StatusCreated, []byte("null"))
			}
			return c.JSON(http.StatusCreated, map[string]string{
				"id": "m1", "senderId": "me", "receiverId": c.Param("id"), "content": payload.Text,
			})
		})
	})

	t.Run("returns the stored message", func(t *testing.T) {
		msg, err := client.SendMessage(context.Background(), "u2", domain.SendPayload{Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, &domain.Message{ID: "m1", SenderID: "me", ReceiverID: "u2", Text: "hi"}, msg)
	})

	t.Run("empty body", func(t *testing.T) {
		msg, err := client.SendMessage(context.Background(), "empty", domain.SendPayload{Text: "hi"})
		assert.ErrorIs(t, err, domain.ErrEmptyResponse)
		assert.Nil(t, msg)
	})

	t.Run("null body", func(t *testing.T) {
		_, err := client.SendMessage(context.Background(), "null", domain.SendPayload{Text: "hi"})
		assert.ErrorIs(t, err, domain.ErrEmptyResponse)
	})
}

func TestClient_ErrorResponses(t *testing.T) {
	client := newBackend(t, func(e *echo.Echo) {
		e.GET("/api/messages/users", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		})
		e.GET("/api/messages/:id", func(c echo.Context) error {
			return c.String(http.StatusBadGateway, "upstream down")
		})
	})

	_, err := client.ListUsers(context.Background())
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Internal server error", apiErr.Message)
	assert.Equal(t, "Internal server error", api.ErrorMessage(err, "Failed to fetch users"))

	_, err = client.ListMessages(context.Background(), "u1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
	assert.Equal(t, "Failed to fetch messages", api.ErrorMessage(err, "Failed to fetch messages"))
}

func TestError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &api.Error{StatusCode: http.StatusUnauthorized}, domain.ErrUnauthorized)
	assert.ErrorIs(t, &api.Error{StatusCode: http.StatusNotFound, Message: "User not found"}, domain.ErrNotFound)
	assert.NotErrorIs(t, &api.Error{StatusCode: http.StatusInternalServerError}, domain.ErrNotFound)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := api.NewClient(url)
	require.NoError(t, err)

	_, err = client.ListUsers(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch users", api.ErrorMessage(err, "Failed to fetch users"))
}
