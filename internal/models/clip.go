package models

import "time"

// Clip is a posted video clip link.
type Clip struct {
	ID          int       `db:"id" json:"id"`
	URL         string    `db:"url" json:"url"`
	Description string    `db:"description" json:"description"`
	PostedByID  int       `db:"posted_by" json:"posted_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ClipVote records one user's vote on one clip. Uniqueness per
// (user, clip) is enforced by the database.
type ClipVote struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	ClipID    int       `db:"clip_id" json:"clip_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
