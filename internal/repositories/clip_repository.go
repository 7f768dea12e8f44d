package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"clips-service/internal/models"
)

var ErrClipNotFound = errors.New("clip not found")

// ClipRepository abstracts clip persistence.
type ClipRepository interface {
	CreateClip(ctx context.Context, url, description string, postedBy int) (models.Clip, error)
	GetClip(ctx context.Context, clipID int) (models.Clip, error)
	ListClips(ctx context.Context, search string, first, skip int) ([]models.Clip, error)
	ListClipsForUser(ctx context.Context, userID int) ([]models.Clip, error)
	ListVotesForClip(ctx context.Context, clipID int) ([]models.ClipVote, error)
	CountVotesForClip(ctx context.Context, clipID int) (int, error)
}

// ClipRepo is a sqlx implementation of ClipRepository.
type ClipRepo struct {
	db *sqlx.DB
}

// NewClipRepo constructs a ClipRepo.
func NewClipRepo(db *sqlx.DB) *ClipRepo {
	return &ClipRepo{db: db}
}

// CreateClip inserts a clip owned by the given user.
func (r *ClipRepo) CreateClip(ctx context.Context, url, description string, postedBy int) (models.Clip, error) {
	var clip models.Clip
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO clips (url, description, posted_by) VALUES ($1, $2, $3)
         RETURNING id, url, description, posted_by, created_at`,
		url, description, postedBy).StructScan(&clip)
	return clip, err
}

// GetClip fetches a clip by id.
func (r *ClipRepo) GetClip(ctx context.Context, clipID int) (models.Clip, error) {
	var clip models.Clip
	err := r.db.GetContext(ctx, &clip,
		`SELECT id, url, description, posted_by, created_at FROM clips WHERE id=$1`, clipID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Clip{}, ErrClipNotFound
	}
	return clip, err
}

// ListClips returns clips, optionally filtered by a case-insensitive search
// over url and description, with skip applied before first.
func (r *ClipRepo) ListClips(ctx context.Context, search string, first, skip int) ([]models.Clip, error) {
	query := `SELECT id, url, description, posted_by, created_at FROM clips`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE url ILIKE $1 OR description ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY id`
	if skip > 0 {
		query += ` OFFSET ` + placeholder(len(args)+1)
		args = append(args, skip)
	}
	if first > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, first)
	}

	var clips []models.Clip
	err := r.db.SelectContext(ctx, &clips, query, args...)
	return clips, err
}

// ListClipsForUser returns the clips posted by a user.
func (r *ClipRepo) ListClipsForUser(ctx context.Context, userID int) ([]models.Clip, error) {
	var clips []models.Clip
	err := r.db.SelectContext(ctx, &clips,
		`SELECT id, url, description, posted_by, created_at FROM clips WHERE posted_by=$1 ORDER BY id`, userID)
	return clips, err
}

// ListVotesForClip returns the votes cast on a clip.
func (r *ClipRepo) ListVotesForClip(ctx context.Context, clipID int) ([]models.ClipVote, error) {
	var votes []models.ClipVote
	err := r.db.SelectContext(ctx, &votes,
		`SELECT id, user_id, clip_id, created_at FROM clip_votes WHERE clip_id=$1 ORDER BY id`, clipID)
	return votes, err
}

// CountVotesForClip returns the number of votes cast on a clip.
func (r *ClipRepo) CountVotesForClip(ctx context.Context, clipID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM clip_votes WHERE clip_id=$1`, clipID)
	return count, err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
