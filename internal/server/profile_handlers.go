package server

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"beacon/internal/images"
	"beacon/internal/models"
	"beacon/internal/profile"
)

// GetMyProfile returns the caller's profile.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	prof, err := s.directory.Get(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	if prof == nil {
		return fail(c, models.NewNotFoundError("profile", userID))
	}
	return c.JSON(prof)
}

// GetProfile returns any user's profile by id.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	id, err := s.requireParam(c, "id")
	if err != nil {
		return nil
	}
	prof, err := s.directory.Get(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	if prof == nil {
		return fail(c, models.NewNotFoundError("profile", id))
	}
	return c.JSON(prof)
}

// UpdateMyProfile applies a partial edit to the caller's profile. Username
// and avatar changes also rewrite the denormalized copies in posts and
// comments before this returns.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	var update models.ProfileUpdate
	if err := c.BodyParser(&update); err != nil {
		return fail(c, models.NewValidationError("invalid request body"))
	}

	prof, err := s.directory.Update(c.UserContext(), userID, update)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(prof)
}

// CheckUsername reports whether a username is still free.
func (s *Server) CheckUsername(c *fiber.Ctx) error {
	candidate := c.Query("username")
	if candidate == "" {
		return fail(c, models.NewValidationError("username query parameter is required"))
	}
	taken, err := s.directory.UsernameExists(c.UserContext(), candidate)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"username": candidate, "available": !taken})
}

// SearchProfiles finds profiles by username or display name.
func (s *Server) SearchProfiles(c *fiber.Ctx) error {
	results, err := s.directory.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"profiles": results})
}

// UploadProfileImage accepts a multipart image upload for the caller's
// avatar or header ("kind" form field, default avatar).
func (s *Server) UploadProfileImage(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return fail(c, models.NewValidationError("an image file is required"))
	}
	if fileHeader.Size > images.MaxUploadBytes {
		return fail(c, models.NewValidationError("image exceeds the upload size limit"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fail(c, models.NewValidationError("could not read uploaded file"))
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
	if err != nil {
		return fail(c, models.NewInternalError(err))
	}
	if int64(len(data)) > images.MaxUploadBytes {
		return fail(c, models.NewValidationError("image exceeds the upload size limit"))
	}

	kind := profile.ImageKind(c.FormValue("kind", string(profile.ImageKindAvatar)))
	url, err := s.directory.UploadImage(c.UserContext(), userID, data, kind)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url, "kind": kind})
}

// AddFriend links the caller with another user.
func (s *Server) AddFriend(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	friendID, err := s.requireParam(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.directory.AddFriend(c.UserContext(), userID, friendID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveFriend unlinks the caller from another user.
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	friendID, err := s.requireParam(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.directory.RemoveFriend(c.UserContext(), userID, friendID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
