package server

import (
	"github.com/gofiber/fiber/v2"

	"beacon/internal/models"
)

type createChatRequest struct {
	Type         models.ChatType `json:"type"`
	Participants []string        `json:"participants"`
	Name         string          `json:"name"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// CreateChat starts a conversation for the caller. Personal chats with the
// same partner are deduplicated, so repeated creates return the existing
// chat.
func (s *Server) CreateChat(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	var req createChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}
	if req.Type == "" {
		req.Type = models.ChatTypePersonal
	}

	chat, err := s.chats.CreateChat(c.UserContext(), req.Type, userID, req.Participants, req.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

// GetChats returns the caller's chats, most recently active first.
func (s *Server) GetChats(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	chats, err := s.chats.GetUserChats(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats})
}

// GetChat returns one chat the caller participates in.
func (s *Server) GetChat(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	chatID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	chat, err := s.chats.GetChat(c.UserContext(), chatID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(chat)
}

// GetMessages returns a chat's messages, oldest first.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	chatID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	messages, err := s.chats.GetMessages(c.UserContext(), chatID, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// SendMessage appends a message from the caller to a chat.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	chatID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}

	message, err := s.chats.SendMessage(c.UserContext(), chatID, userID, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

// MarkMessageRead records the caller as having read a message.
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	chatID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	messageID, err := s.requireParam(c, "messageId")
	if err != nil {
		return nil
	}
	if err := s.chats.MarkRead(c.UserContext(), chatID, messageID, userID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
