package repository

import (
	"strings"

	"gorm.io/gorm"
)

// Projection selects which user columns are loaded for an expanded author.
type Projection int

const (
	// ProjectionFull loads every user column.
	ProjectionFull Projection = iota
	// ProjectionSummary loads only what a thread card shows.
	ProjectionSummary
)

var summaryColumns = []string{"id", "external_id", "name", "username", "image"}

// Expansion describes a bounded-depth population of a thread tree. Depth is
// the number of children levels loaded below the root; children past that
// depth are left unloaded and only their count is known.
type Expansion struct {
	Depth       int
	Author      Projection
	ChildAuthor Projection
}

var (
	// feedExpansion backs the top-level feed: full author, one level of replies.
	feedExpansion = Expansion{Depth: 1, Author: ProjectionFull, ChildAuthor: ProjectionSummary}
	// detailExpansion backs a single thread page: replies and their replies.
	detailExpansion = Expansion{Depth: 2, Author: ProjectionFull, ChildAuthor: ProjectionSummary}
	// profileExpansion backs a profile's thread list, whose author is already known.
	profileExpansion = Expansion{Depth: 1, Author: ProjectionSummary, ChildAuthor: ProjectionSummary}
)

// Apply adds the preloads for e to a query rooted at threads.
func (e Expansion) Apply(db *gorm.DB) *gorm.DB {
	return e.ApplyAt(db, "")
}

// ApplyAt adds the preloads for e to the thread relation at prefix, such as
// "Threads" when the query is rooted at users, filtering that relation with
// scopes. An empty prefix means the query itself selects threads.
func (e Expansion) ApplyAt(db *gorm.DB, prefix string, scopes ...func(*gorm.DB) *gorm.DB) *gorm.DB {
	if prefix != "" {
		db = db.Preload(prefix, func(tx *gorm.DB) *gorm.DB {
			return orderThreads(tx.Scopes(scopes...))
		})
	}
	db = preloadAuthor(db, join(prefix, "Author"), e.Author)

	path := prefix
	for level := 0; level < e.Depth; level++ {
		path = join(path, "Children")
		db = db.Preload(path, orderThreads)
		db = preloadAuthor(db, join(path, "Author"), e.ChildAuthor)
	}
	return db
}

func preloadAuthor(db *gorm.DB, path string, p Projection) *gorm.DB {
	if p == ProjectionSummary {
		return db.Preload(path, func(tx *gorm.DB) *gorm.DB {
			return tx.Select(summaryColumns)
		})
	}
	return db.Preload(path)
}

// orderThreads keeps children in insertion order.
func orderThreads(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC, id ASC")
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return strings.Join([]string{prefix, field}, ".")
}
