package repository

import (
	"context"
	"errors"
	"time"

	"threads/internal/database"
	"threads/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ThreadRepository defines persistence operations for threads and comments.
type ThreadRepository interface {
	Create(ctx context.Context, thread *models.Thread) error
	ListTopLevel(ctx context.Context, pageNumber, pageSize int) (*models.ThreadPage, error)
	GetByID(ctx context.Context, id uint) (*models.Thread, error)
	AddChild(ctx context.Context, parentID uint, child *models.Thread) ([]Ancestor, error)
	ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error)
	ListReplies(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error)
}

// Ancestor is a thread above a new reply, with its author's external id.
type Ancestor struct {
	ID               uint
	ParentID         *uint
	AuthorExternalID string
}

// ancestorLevels is how far up a reply shows: thread pages render two
// levels of replies, and each of those carries its own children count.
const ancestorLevels = 3

type threadRepository struct {
	store
}

// NewThreadRepository returns a new ThreadRepository implementation.
func NewThreadRepository(conn database.Provider, timeout time.Duration) ThreadRepository {
	return &threadRepository{store: newStore(conn, timeout, "threads")}
}

// Create inserts a top-level thread and appends it to its author's threads
// in one transaction.
func (r *threadRepository) Create(ctx context.Context, thread *models.Thread) error {
	thread.ParentID = nil
	thread.CommunityID = nil

	err := r.run(ctx, "Create", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := requireUser(tx, thread.AuthorID); err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(thread).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).
				Where("id = ?", thread.AuthorID).
				UpdateColumn("threads_count", gorm.Expr("threads_count + ?", 1)).Error
		})
	})
	if err != nil {
		return err
	}

	r.log.LogWrite(ctx, "create", map[string]interface{}{
		"thread_id": thread.ID,
		"author_id": thread.AuthorID,
	})
	return nil
}

// ListTopLevel returns one page of the feed, newest first.
func (r *threadRepository) ListTopLevel(ctx context.Context, pageNumber, pageSize int) (*models.ThreadPage, error) {
	offset, limit := pageWindow(pageNumber, pageSize)
	page := &models.ThreadPage{Threads: []*models.Thread{}}

	err := r.run(ctx, "ListTopLevel", func(db *gorm.DB) error {
		var total int64
		if err := db.Model(&models.Thread{}).Scopes(topLevel).Count(&total).Error; err != nil {
			return err
		}
		if err := feedExpansion.Apply(db).
			Scopes(topLevel).
			Order("created_at DESC, id DESC").
			Offset(offset).
			Limit(limit).
			Find(&page.Threads).Error; err != nil {
			return err
		}
		page.IsNext = total > int64(offset+len(page.Threads))
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.LogRead(ctx, "list_top_level", map[string]interface{}{"offset": offset, "results": len(page.Threads)})
	return page, nil
}

// GetByID loads a thread with two levels of replies.
func (r *threadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.run(ctx, "GetByID", func(db *gorm.DB) error {
		if err := detailExpansion.Apply(db).First(&thread, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Thread", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// AddChild stores child as a reply to parentID and returns the nearest
// ancestors of the reply, parent first. A missing parent or author aborts the
// transaction before anything is written.
func (r *threadRepository) AddChild(ctx context.Context, parentID uint, child *models.Thread) ([]Ancestor, error) {
	child.CommunityID = nil

	var ancestors []Ancestor
	err := r.run(ctx, "AddChild", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			q := tx.Select("id")
			if tx.Dialector.Name() == "postgres" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var parent models.Thread
			if err := q.First(&parent, parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return models.NewNotFoundError("Thread", parentID)
				}
				return err
			}
			if err := requireUser(tx, child.AuthorID); err != nil {
				return err
			}

			child.ParentID = &parent.ID
			if err := tx.Omit(clause.Associations).Create(child).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Thread{}).
				Where("id = ?", parent.ID).
				UpdateColumn("children_count", gorm.Expr("children_count + ?", 1)).Error; err != nil {
				return err
			}

			var err error
			ancestors, err = loadAncestors(tx, parent.ID, ancestorLevels)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	r.log.LogWrite(ctx, "add_child", map[string]interface{}{
		"thread_id": child.ID,
		"parent_id": parentID,
		"author_id": child.AuthorID,
	})
	return ancestors, nil
}

// loadAncestors walks up from id, id itself included, for at most levels threads.
func loadAncestors(tx *gorm.DB, id uint, levels int) ([]Ancestor, error) {
	out := make([]Ancestor, 0, levels)
	for next := &id; next != nil && len(out) < levels; {
		var a Ancestor
		res := tx.Table("threads").
			Select("threads.id, threads.parent_id, users.external_id AS author_external_id").
			Joins("JOIN users ON users.id = threads.author_id").
			Where("threads.id = ?", *next).
			Scan(&a)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			break
		}
		out = append(out, a)
		next = a.ParentID
	}
	return out, nil
}

// ListByAuthor returns a user's top-level threads, newest first.
func (r *threadRepository) ListByAuthor(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error) {
	limit, offset = clampWindow(limit, offset)
	threads := []*models.Thread{}

	err := r.run(ctx, "ListByAuthor", func(db *gorm.DB) error {
		return profileExpansion.Apply(db).
			Scopes(topLevel).
			Where("author_id = ?", authorID).
			Order("created_at DESC, id DESC").
			Offset(offset).
			Limit(limit).
			Find(&threads).Error
	})
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// ListReplies returns comments other users left on authorID's threads,
// newest first.
func (r *threadRepository) ListReplies(ctx context.Context, authorID uint, limit, offset int) ([]*models.Thread, error) {
	limit, offset = clampWindow(limit, offset)
	replies := []*models.Thread{}

	err := r.run(ctx, "ListReplies", func(db *gorm.DB) error {
		parents := db.Model(&models.Thread{}).Select("id").Where("author_id = ?", authorID)
		return preloadAuthor(db, "Author", ProjectionSummary).
			Where("parent_id IN (?)", parents).
			Where("author_id <> ?", authorID).
			Order("created_at DESC, id DESC").
			Offset(offset).
			Limit(limit).
			Find(&replies).Error
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func requireUser(tx *gorm.DB, id uint) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func topLevel(db *gorm.DB) *gorm.DB {
	return db.Where("parent_id IS NULL")
}

// pageWindow turns a 1-based page into an offset and limit.
func pageWindow(pageNumber, pageSize int) (offset, limit int) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return (pageNumber - 1) * pageSize, pageSize
}

func clampWindow(limit, offset int) (int, int) {
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
