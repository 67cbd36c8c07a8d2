package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"threads/internal/database"
	"threads/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Upsert(ctx context.Context, params UpsertUserParams) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetWithThreads(ctx context.Context, externalID string) (*models.User, error)
	Search(ctx context.Context, params SearchUsersParams) (*models.UserPage, error)
}

// UpsertUserParams is the profile written by Upsert.
type UpsertUserParams struct {
	ExternalID string
	Username   string
	Name       string
	Bio        string
	Image      string
}

// SearchUsersParams controls a user search.
type SearchUsersParams struct {
	ExcludeExternalID string
	Query             string
	PageNumber        int
	PageSize          int
	// Sort orders by creation time, "asc" or "desc" (default).
	Sort string
}

type userRepository struct {
	store
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(conn database.Provider, timeout time.Duration) UserRepository {
	return &userRepository{store: newStore(conn, timeout, "users")}
}

// Upsert creates the user for params.ExternalID or overwrites its profile,
// marking it onboarded either way.
func (r *userRepository) Upsert(ctx context.Context, params UpsertUserParams) (*models.User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	var user models.User

	err := r.run(ctx, "Upsert", func(db *gorm.DB) error {
		for attempt := 0; attempt < upsertAttempts; attempt++ {
			err := db.Transaction(func(tx *gorm.DB) error {
				return upsertUser(tx, username, params, &user)
			})
			if !errors.Is(err, errCreateRace) {
				return err
			}
		}
		// Both attempts collided on insert and the pre-check saw no other
		// owner, so the username is the remaining contender.
		return usernameTakenError()
	})
	if err != nil {
		return nil, err
	}

	r.log.LogWrite(ctx, "upsert", map[string]interface{}{"user_id": user.ID})
	return &user, nil
}

// upsertAttempts covers one lost race for a new user's first insert.
const upsertAttempts = 2

// errCreateRace marks an insert that hit a unique index after the lookup
// found no row; the transaction is retried once.
var errCreateRace = errors.New("user insert raced")

func upsertUser(tx *gorm.DB, username string, params UpsertUserParams, user *models.User) error {
	externalID := params.ExternalID
	var taken int64
	if err := tx.Model(&models.User{}).
		Where("username = ? AND external_id <> ?", username, externalID).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return usernameTakenError()
	}

	var existing models.User
	err := tx.Where(models.User{ExternalID: externalID}).
		Assign(map[string]interface{}{
			"username":  username,
			"name":      params.Name,
			"bio":       params.Bio,
			"image":     params.Image,
			"onboarded": true,
		}).
		FirstOrCreate(&existing).Error
	if err != nil {
		if isUniqueViolation(err) {
			return errCreateRace
		}
		return err
	}

	if err := tx.Where("external_id = ?", externalID).First(user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewPersistenceError("user upsert did not return a record")
		}
		return err
	}
	return nil
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "GetByExternalID", func(db *gorm.DB) error {
		if err := db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", externalID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "GetByID", func(db *gorm.DB) error {
		if err := db.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetWithThreads loads a user with their top-level threads, each with its
// direct replies.
func (r *userRepository) GetWithThreads(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "GetWithThreads", func(db *gorm.DB) error {
		q := profileExpansion.ApplyAt(db, "Threads", topLevel)
		if err := q.Where("external_id = ?", externalID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", externalID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Search matches query against username and name, case-insensitively.
func (r *userRepository) Search(ctx context.Context, params SearchUsersParams) (*models.UserPage, error) {
	offset, limit := pageWindow(params.PageNumber, params.PageSize)
	direction := "DESC"
	if strings.EqualFold(params.Sort, "asc") {
		direction = "ASC"
	}

	page := &models.UserPage{Users: []models.User{}}
	err := r.run(ctx, "Search", func(db *gorm.DB) error {
		matching := func() *gorm.DB {
			q := db.Model(&models.User{}).Where("external_id <> ?", params.ExcludeExternalID)
			if query := strings.TrimSpace(params.Query); query != "" {
				q = matchName(q, query)
			}
			return q
		}

		var total int64
		if err := matching().Count(&total).Error; err != nil {
			return err
		}
		if err := matching().
			Order("created_at " + direction).
			Order("id " + direction).
			Offset(offset).
			Limit(limit).
			Find(&page.Users).Error; err != nil {
			return err
		}
		page.IsNext = total > int64(offset+len(page.Users))
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.LogRead(ctx, "search", map[string]interface{}{"offset": offset, "results": len(page.Users)})
	return page, nil
}

// matchName filters q to users whose username or name contains query,
// ignoring case. Postgres folds case with ILIKE; SQLite's LOWER only folds
// ASCII letters, so non-ASCII names match case-sensitively there.
func matchName(q *gorm.DB, query string) *gorm.DB {
	if q.Dialector.Name() == "postgres" {
		pattern := "%" + escapeLike(query) + "%"
		return q.Where(`(username ILIKE ? ESCAPE '\' OR name ILIKE ? ESCAPE '\')`, pattern, pattern)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return q.Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`, pattern, pattern)
}

func usernameTakenError() *models.AppError {
	return models.NewFieldValidationError(map[string]string{
		"username": "Username is already taken",
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
