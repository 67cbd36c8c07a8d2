package server

import (
	"threads/internal/models"
	"threads/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateThreadRequest is the create thread form body.
type CreateThreadRequest struct {
	Thread      string  `json:"thread"`
	CommunityID *string `json:"community_id"`
	// Path is the page the form was submitted from.
	Path string `json:"path"`
}

// CommentRequest is the reply form body.
type CommentRequest struct {
	Thread string `json:"thread"`
}

// GetFeed returns one page of top-level threads, newest first.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	page := parsePage(c)
	result, err := s.threadService.FetchPosts(c.UserContext(), page.Number, page.Size)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// CreateThread posts a new top-level thread.
func (s *Server) CreateThread(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}
	var req CreateThreadRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.threadWorkflow.Submit(c.UserContext(), service.ThreadSubmission{
		ExternalID:  id.ExternalID,
		Text:        req.Thread,
		CommunityID: req.CommunityID,
		Path:        req.Path,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetThread returns a thread with two levels of replies.
func (s *Server) GetThread(c *fiber.Ctx) error {
	threadID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	thread, err := s.threadService.FetchThreadByID(c.UserContext(), threadID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(thread)
}

// AddComment replies to a thread.
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return nil
	}
	threadID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req CommentRequest
	if err := s.parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.commentWorkflow.Submit(c.UserContext(), service.CommentSubmission{
		ExternalID: id.ExternalID,
		ThreadID:   threadID,
		Text:       req.Thread,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
