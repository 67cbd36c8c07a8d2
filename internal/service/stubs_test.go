package service

import (
	"context"
	"errors"
	"testing"

	"threads/internal/models"
	"threads/internal/repository"
	"threads/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	upsertFn          func(context.Context, repository.UpsertUserParams) (*models.User, error)
	getByExternalIDFn func(context.Context, string) (*models.User, error)
	getByIDFn         func(context.Context, uint) (*models.User, error)
	getWithThreadsFn  func(context.Context, string) (*models.User, error)
	searchFn          func(context.Context, repository.SearchUsersParams) (*models.UserPage, error)
}

func (s *userRepoStub) Upsert(ctx context.Context, params repository.UpsertUserParams) (*models.User, error) {
	return s.upsertFn(ctx, params)
}
func (s *userRepoStub) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getByExternalIDFn(ctx, externalID)
}
func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetWithThreads(ctx context.Context, externalID string) (*models.User, error) {
	return s.getWithThreadsFn(ctx, externalID)
}
func (s *userRepoStub) Search(ctx context.Context, params repository.SearchUsersParams) (*models.UserPage, error) {
	return s.searchFn(ctx, params)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		upsertFn: func(_ context.Context, p repository.UpsertUserParams) (*models.User, error) {
			return &models.User{ID: 1, ExternalID: p.ExternalID, Username: p.Username, Name: p.Name, Bio: p.Bio, Image: p.Image, Onboarded: true}, nil
		},
		getByExternalIDFn: func(_ context.Context, id string) (*models.User, error) {
			return &models.User{ID: 1, ExternalID: id, Onboarded: true}, nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, ExternalID: "user_1", Onboarded: true}, nil
		},
		getWithThreadsFn: func(_ context.Context, id string) (*models.User, error) {
			return &models.User{ID: 1, ExternalID: id}, nil
		},
		searchFn: func(_ context.Context, _ repository.SearchUsersParams) (*models.UserPage, error) {
			return &models.UserPage{Users: []models.User{}}, nil
		},
	}
}

// threadRepoStub is a stub for repository.ThreadRepository.
type threadRepoStub struct {
	createFn       func(context.Context, *models.Thread) error
	listTopLevelFn func(context.Context, int, int) (*models.ThreadPage, error)
	getByIDFn      func(context.Context, uint) (*models.Thread, error)
	addChildFn     func(context.Context, uint, *models.Thread) ([]repository.Ancestor, error)
	listByAuthorFn func(context.Context, uint, int, int) ([]*models.Thread, error)
	listRepliesFn  func(context.Context, uint, int, int) ([]*models.Thread, error)
}

func (s *threadRepoStub) Create(ctx context.Context, thread *models.Thread) error {
	return s.createFn(ctx, thread)
}
func (s *threadRepoStub) ListTopLevel(ctx context.Context, pageNumber, pageSize int) (*models.ThreadPage, error) {
	return s.listTopLevelFn(ctx, pageNumber, pageSize)
}
func (s *threadRepoStub) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	return s.getByIDFn(ctx, id)
}
func (s *threadRepoStub) AddChild(ctx context.Context, parentID uint, child *models.Thread) ([]repository.Ancestor, error) {
	return s.addChildFn(ctx, parentID, child)
}
func (s *threadRepoStub) ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error) {
	return s.listByAuthorFn(ctx, authorID, limit, offset)
}
func (s *threadRepoStub) ListReplies(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error) {
	return s.listRepliesFn(ctx, authorID, limit, offset)
}

func noopThreadRepo() *threadRepoStub {
	return &threadRepoStub{
		createFn: func(_ context.Context, t *models.Thread) error {
			t.ID = 10
			return nil
		},
		listTopLevelFn: func(_ context.Context, _, _ int) (*models.ThreadPage, error) {
			return &models.ThreadPage{Threads: []*models.Thread{}}, nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Thread, error) {
			return &models.Thread{ID: id}, nil
		},
		addChildFn: func(_ context.Context, parentID uint, t *models.Thread) ([]repository.Ancestor, error) {
			t.ID = 11
			t.ParentID = &parentID
			return []repository.Ancestor{{ID: parentID, AuthorExternalID: "user_1"}}, nil
		},
		listByAuthorFn: func(_ context.Context, _ uint, _, _ int) ([]*models.Thread, error) { return nil, nil },
		listRepliesFn:  func(_ context.Context, _ uint, _, _ int) ([]*models.Thread, error) { return nil, nil },
	}
}

// pagesStub records invalidated paths and serves Aside from fetch.
type pagesStub struct {
	invalidated []string
	trees       []string
	keys        []string
}

func (p *pagesStub) Aside(_ context.Context, key string, _ any, fetch func() error) error {
	p.keys = append(p.keys, key)
	return fetch()
}

func (p *pagesStub) Invalidate(_ context.Context, path string) {
	if path == "" {
		return
	}
	p.invalidated = append(p.invalidated, path)
}

func (p *pagesStub) InvalidateTree(_ context.Context, prefix string) {
	p.trees = append(p.trees, prefix)
}

// uploaderStub is a stub for upload.Uploader.
type uploaderStub struct {
	calls    int
	uploadFn func(context.Context, string, []upload.File) ([]upload.Result, error)
}

func (u *uploaderStub) Upload(ctx context.Context, policy string, files []upload.File) ([]upload.Result, error) {
	u.calls++
	return u.uploadFn(ctx, policy, files)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}
