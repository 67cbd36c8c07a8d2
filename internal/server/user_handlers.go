package server

import (
	"threads/internal/cache"
	"threads/internal/models"
	"threads/internal/service"
	"threads/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// ProfileRequest is the onboarding and edit profile form body.
type ProfileRequest struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	Bio          string `json:"bio"`
	ProfilePhoto string `json:"profile_photo"`
}

// ProfilePrefill seeds the onboarding form from the auth provider.
type ProfilePrefill struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
}

// MeResponse is the caller's own profile state.
type MeResponse struct {
	Onboarded bool            `json:"onboarded"`
	User      *models.User    `json:"user,omitempty"`
	Prefill   *ProfilePrefill `json:"prefill,omitempty"`
}

// GetMe returns the caller's profile, or provider data to prefill onboarding.
func (s *Server) GetMe(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}

	user, err := s.userService.FetchUser(c.UserContext(), id.ExternalID)
	if err != nil && !models.IsNotFound(err) {
		return models.RespondWithAppError(c, err)
	}

	resp := MeResponse{}
	if user != nil {
		resp.Onboarded = user.Onboarded
		resp.User = user
	}
	if !resp.Onboarded {
		resp.Prefill = &ProfilePrefill{ExternalID: id.ExternalID, Name: id.Name, Image: id.Picture}
		if user != nil {
			resp.Prefill.Name = user.Name
			resp.Prefill.Image = user.Image
		}
	}
	return c.JSON(resp)
}

// SubmitOnboarding completes the caller's profile.
func (s *Server) SubmitOnboarding(c *fiber.Ctx) error {
	return s.submitProfile(c, cache.OnboardingPath)
}

// UpdateProfile edits the caller's profile.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	return s.submitProfile(c, cache.ProfileEditPath)
}

func (s *Server) submitProfile(c *fiber.Ctx, path string) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}
	var req ProfileRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.profileWorkflow.Submit(c.UserContext(), service.ProfileSubmission{
		ExternalID: id.ExternalID,
		Form: validation.ProfileForm{
			Name:         req.Name,
			Username:     req.Username,
			Bio:          req.Bio,
			ProfilePhoto: req.ProfilePhoto,
		},
		Path: path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// GetProfile returns a user with their threads.
func (s *Server) GetProfile(c *fiber.Ctx) error {
	user, err := s.userService.FetchProfile(c.UserContext(), c.Params("externalId"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(user)
}

// GetProfileThreads pages through a user's top-level threads.
func (s *Server) GetProfileThreads(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPageSize)
	threads, err := s.userService.ListUserThreads(c.UserContext(), c.Params("externalId"), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(threads)
}

// SearchUsers finds other users by username or name.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}
	page := parsePage(c)

	result, err := s.userService.SearchUsers(c.UserContext(), service.SearchUsersInput{
		CurrentExternalID: id.ExternalID,
		Query:             c.Query("q"),
		PageNumber:        page.Number,
		PageSize:          page.Size,
		Sort:              c.Query("sort"),
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// GetActivity lists replies other users left on the caller's threads.
func (s *Server) GetActivity(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}
	p := parsePagination(c, defaultPageSize)

	replies, err := s.userService.GetActivity(c.UserContext(), id.ExternalID, p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(replies)
}
