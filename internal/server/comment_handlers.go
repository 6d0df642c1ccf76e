package server

import (
	"github.com/gofiber/fiber/v2"

	"beacon/internal/models"
)

type createCommentRequest struct {
	Text string `json:"text"`
}

// CreateComment adds a comment by the caller to a post.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	postID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}

	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}

	comment, err := s.contents.AddComment(c.UserContext(), postID, userID, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetComments returns a post's comments, oldest first.
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	comments, err := s.contents.GetComments(c.UserContext(), postID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"comments": comments})
}

// DeleteComment removes the caller's comment from a post.
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	postID, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := s.requireParam(c, "commentId")
	if err != nil {
		return nil
	}
	if err := s.contents.DeleteComment(c.UserContext(), postID, userID, commentID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunReconcile triggers one reconciliation sweep and returns its report.
func (s *Server) RunReconcile(c *fiber.Ctx) error {
	if _, err := s.currentUserID(c); err != nil {
		return nil
	}
	report, err := s.reconciler.Run(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}
