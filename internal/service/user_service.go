package service

import (
	"context"
	"strings"

	"threads/internal/cache"
	"threads/internal/models"
	"threads/internal/repository"
)

type UserService struct {
	userRepo   repository.UserRepository
	threadRepo repository.ThreadRepository
	pages      PageCache
}

// UpdateUserInput is a validated profile submission.
type UpdateUserInput struct {
	ExternalID string
	Username   string
	Name       string
	Bio        string
	Image      string
	// Path is the page the form was submitted from.
	Path string
}

type SearchUsersInput struct {
	CurrentExternalID string
	Query             string
	PageNumber        int
	PageSize          int
	Sort              string
}

func NewUserService(userRepo repository.UserRepository, threadRepo repository.ThreadRepository, pages PageCache) *UserService {
	return &UserService{userRepo: userRepo, threadRepo: threadRepo, pages: pages}
}

// FetchUser returns the user owning externalID.
func (s *UserService) FetchUser(ctx context.Context, externalID string) (*models.User, error) {
	return s.userRepo.GetByExternalID(ctx, externalID)
}

// IsOnboarded reports whether externalID has completed onboarding. An
// unknown user is not onboarded.
func (s *UserService) IsOnboarded(ctx context.Context, externalID string) (bool, error) {
	user, err := s.userRepo.GetByExternalID(ctx, externalID)
	if models.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Onboarded, nil
}

// UpdateUser creates or updates the caller's profile and marks it onboarded.
func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*models.User, error) {
	if strings.TrimSpace(in.ExternalID) == "" {
		return nil, models.NewUnauthorizedError("authentication required")
	}

	prev, prevErr := s.userRepo.GetByExternalID(ctx, in.ExternalID)

	user, err := s.userRepo.Upsert(ctx, repository.UpsertUserParams{
		ExternalID: in.ExternalID,
		Username:   in.Username,
		Name:       in.Name,
		Bio:        in.Bio,
		Image:      in.Image,
	})
	if err != nil {
		return nil, err
	}

	paths := []string{cache.ProfilePath(user.ExternalID)}
	if in.Path == cache.ProfileEditPath {
		paths = append(paths, in.Path)
	}
	invalidateAll(ctx, s.pages, paths...)

	// Author cards appear in the feed, on thread pages and on other profiles.
	if authorCardChanged(prev, prevErr, user) {
		s.pages.Invalidate(ctx, cache.FeedPath)
		s.pages.InvalidateTree(ctx, cache.ThreadPrefix)
		s.pages.InvalidateTree(ctx, cache.ProfilePrefix)
	}
	return user, nil
}

// authorCardChanged reports whether pages rendering the user as an author
// may show stale data. A user who did not exist before has authored nothing.
func authorCardChanged(prev *models.User, prevErr error, next *models.User) bool {
	if models.IsNotFound(prevErr) {
		return false
	}
	if prevErr != nil || prev == nil {
		return true
	}
	return prev.Username != next.Username ||
		prev.Name != next.Name ||
		prev.Image != next.Image ||
		prev.Bio != next.Bio
}

// FetchProfile returns a user with their threads and the replies to them.
func (s *UserService) FetchProfile(ctx context.Context, externalID string) (*models.User, error) {
	var user *models.User
	err := s.pages.Aside(ctx, cache.PageKey(cache.ProfilePath(externalID), ""), &user, func() error {
		var err error
		user, err = s.userRepo.GetWithThreads(ctx, externalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers finds other users by username or name.
func (s *UserService) SearchUsers(ctx context.Context, in SearchUsersInput) (*models.UserPage, error) {
	sort := strings.ToLower(strings.TrimSpace(in.Sort))
	switch sort {
	case "", "asc", "desc":
	default:
		return nil, models.NewValidationError("sort must be asc or desc")
	}

	return s.userRepo.Search(ctx, repository.SearchUsersParams{
		ExcludeExternalID: in.CurrentExternalID,
		Query:             strings.TrimSpace(in.Query),
		PageNumber:        in.PageNumber,
		PageSize:          in.PageSize,
		Sort:              sort,
	})
}

// GetActivity returns replies other users left on the caller's threads.
func (s *UserService) GetActivity(ctx context.Context, externalID string, limit, offset int) ([]*models.Thread, error) {
	user, err := s.userRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.threadRepo.ListReplies(ctx, user.ID, limit, offset)
}

// ListUserThreads returns a page of a user's top-level threads.
func (s *UserService) ListUserThreads(ctx context.Context, externalID string, limit, offset int) ([]*models.Thread, error) {
	user, err := s.userRepo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.threadRepo.ListByAuthor(ctx, user.ID, limit, offset)
}
