// Package models contains data structures for the application's domain models.
package models

import "time"

// User is a profile owned by an identity from the external auth provider.
type User struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"size:128;not null;uniqueIndex" json:"external_id"`
	Username   string `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Name       string `gorm:"size:128;not null" json:"name"`
	Bio        string `gorm:"type:text" json:"bio,omitempty"`
	Image      string `json:"image,omitempty"`
	Onboarded  bool   `gorm:"not null;default:false" json:"onboarded"`
	// ThreadsCount mirrors len(Threads), the user's top-level threads, and is
	// bumped in the thread insert transaction.
	ThreadsCount int       `gorm:"not null;default:0" json:"threads_count"`
	Threads      []*Thread `gorm:"foreignKey:AuthorID" json:"threads,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPage is one offset page of a user search.
type UserPage struct {
	Users  []User `json:"users"`
	IsNext bool   `json:"is_next"`
}
