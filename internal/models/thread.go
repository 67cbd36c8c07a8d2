package models

import "time"

// Thread is a user-authored post. Threads with a ParentID are comments.
type Thread struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Text     string `gorm:"type:text;not null" json:"text"`
	AuthorID uint   `gorm:"not null;index" json:"author_id"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	ParentID *uint  `gorm:"index" json:"parent_id"`
	// CommunityID is always nil until communities exist.
	CommunityID   *string   `gorm:"size:64" json:"community"`
	ChildrenCount int       `gorm:"not null;default:0" json:"children_count"`
	Children      []*Thread `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ThreadPage is one offset page of top-level threads.
type ThreadPage struct {
	Threads []*Thread `json:"threads"`
	IsNext  bool      `json:"is_next"`
}
