package service

import (
	"context"

	"threads/internal/cache"
	"threads/internal/models"
	"threads/internal/repository"
)

type ThreadService struct {
	threadRepo repository.ThreadRepository
	userRepo   repository.UserRepository
	pages      PageCache
}

type CreateThreadInput struct {
	Text     string
	AuthorID uint
	// CommunityID is accepted for form compatibility and always stored as nil.
	CommunityID *string
	Path        string
}

type AddCommentInput struct {
	ThreadID uint
	Text     string
	AuthorID uint
	Path     string
}

func NewThreadService(threadRepo repository.ThreadRepository, userRepo repository.UserRepository, pages PageCache) *ThreadService {
	return &ThreadService{threadRepo: threadRepo, userRepo: userRepo, pages: pages}
}

// CreateThread posts a top-level thread and appends it to the author's threads.
func (s *ThreadService) CreateThread(ctx context.Context, in CreateThreadInput) (*models.Thread, error) {
	thread := &models.Thread{Text: in.Text, AuthorID: in.AuthorID}
	if err := s.threadRepo.Create(ctx, thread); err != nil {
		return nil, err
	}

	paths := []string{cache.FeedPath, in.Path}
	if author, err := s.userRepo.GetByID(ctx, in.AuthorID); err == nil {
		paths = append(paths, cache.ProfilePath(author.ExternalID))
	}
	invalidateAll(ctx, s.pages, paths...)
	return thread, nil
}

// AddComment replies to ThreadID.
func (s *ThreadService) AddComment(ctx context.Context, in AddCommentInput) (*models.Thread, error) {
	comment := &models.Thread{Text: in.Text, AuthorID: in.AuthorID}
	ancestors, err := s.threadRepo.AddChild(ctx, in.ThreadID, comment)
	if err != nil {
		return nil, err
	}

	invalidateAll(ctx, s.pages, replyPaths(in.Path, in.ThreadID, ancestors)...)
	return comment, nil
}

// replyPaths lists the pages that render a new reply or its parent's
// children count. A thread page shows two levels of replies; the feed and a
// profile show top-level threads with their direct replies.
func replyPaths(current string, parentID uint, ancestors []repository.Ancestor) []string {
	paths := []string{current, cache.ThreadPath(parentID)}
	for _, a := range ancestors {
		paths = append(paths, cache.ThreadPath(a.ID))
	}
	paths = append(paths, cache.FeedPath)
	for i, a := range ancestors {
		if i < 2 && a.ParentID == nil {
			paths = append(paths, cache.ProfilePath(a.AuthorExternalID))
		}
	}
	return paths
}

// FetchPosts returns one page of the main feed.
func (s *ThreadService) FetchPosts(ctx context.Context, pageNumber, pageSize int) (*models.ThreadPage, error) {
	var page *models.ThreadPage
	key := cache.PageKey(cache.FeedPath, pageQuery(pageNumber, pageSize))
	err := s.pages.Aside(ctx, key, &page, func() error {
		var err error
		page, err = s.threadRepo.ListTopLevel(ctx, pageNumber, pageSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// FetchThreadByID returns a thread with two levels of replies.
func (s *ThreadService) FetchThreadByID(ctx context.Context, id uint) (*models.Thread, error) {
	var thread *models.Thread
	err := s.pages.Aside(ctx, cache.PageKey(cache.ThreadPath(id), ""), &thread, func() error {
		var err error
		thread, err = s.threadRepo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return thread, nil
}
