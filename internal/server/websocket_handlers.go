package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"beacon/internal/models"
	"beacon/internal/observability"
)

// FeedSocketHandler streams content events: new posts, likes, comments,
// and deletions. Every connected client receives every feed event.
func (s *Server) FeedSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(string)
		if !ok || userID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Full ordered snapshot on connect and after every content
		// change, alongside the per-event notifications.
		unsubscribe := s.contents.SubscribeToAll(context.Background(), func(posts []*models.Post) {
			payload, err := json.Marshal(fiber.Map{"type": "feed_snapshot", "posts": posts})
			if err != nil {
				return
			}
			client.TrySend(payload)
		})
		defer unsubscribe()

		observability.GlobalLogger.Info("feed subscriber connected", slog.String("user_id", userID))

		go client.WritePump()
		client.ReadPump()
	})
}

// ChatSocketHandler streams one chat's messages to a participant.
func (s *Server) ChatSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(string)
		if !ok || userID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		chatID, _ := conn.Locals("chatID").(string)
		if chatID == "" {
			chatID = conn.Params("id")
		}

		// Membership check before any stream is attached.
		if _, err := s.chats.GetChat(context.Background(), chatID, userID); err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"forbidden"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		s.hub.JoinRoom(chatID, client)

		observability.GlobalLogger.Info("chat subscriber connected",
			slog.String("user_id", userID), slog.String("chat_id", chatID))

		go client.WritePump()
		client.ReadPump()
	})
}
