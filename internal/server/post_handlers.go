package server

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"beacon/internal/images"
	"beacon/internal/models"
)

type createPostRequest struct {
	Caption string `json:"caption"`
}

// CreatePost creates a post for the caller. JSON bodies carry a caption
// only; multipart bodies may attach an image under the "image" field.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	caption := ""
	var imageData []byte

	if form, err := c.MultipartForm(); err == nil && form != nil {
		caption = c.FormValue("caption")
		if fileHeader, err := c.FormFile("image"); err == nil {
			if fileHeader.Size > images.MaxUploadBytes {
				return fail(c, models.NewValidationError("image exceeds the upload size limit"))
			}
			file, err := fileHeader.Open()
			if err != nil {
				return fail(c, models.NewValidationError("could not read uploaded file"))
			}
			defer file.Close()
			imageData, err = io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
			if err != nil {
				return fail(c, models.NewInternalError(err))
			}
		}
	} else {
		var req createPostRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, models.NewValidationError("invalid request body"))
		}
		caption = req.Caption
	}

	post, err := s.contents.CreatePost(c.UserContext(), userID, caption, imageData)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts returns all posts, newest first.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts, err := s.contents.GetPosts(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// GetPost returns a single post.
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.contents.GetPost(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}

// GetUserPosts returns one user's posts, newest first.
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	id, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	posts, err := s.contents.GetUserPosts(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"posts": posts})
}

// DeletePost removes the caller's post.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	if err := s.contents.DeletePost(c.UserContext(), id, userID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike flips the caller's like on a post and returns the updated
// post.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.contents.ToggleLike(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(post)
}
