package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"clips-service/internal/models"
)

var (
	ErrAlreadyVoted = errors.New("user already voted for this clip")
	ErrVoteNotFound = errors.New("vote not found")
)

// VoteRepository abstracts clip vote persistence.
type VoteRepository interface {
	CreateVote(ctx context.Context, userID, clipID int) (models.ClipVote, error)
	FindVote(ctx context.Context, userID, clipID int) (models.ClipVote, error)
	ListVotes(ctx context.Context) ([]models.ClipVote, error)
}

// VoteRepo is a sqlx implementation of VoteRepository.
type VoteRepo struct {
	db *sqlx.DB
}

// NewVoteRepo constructs a VoteRepo.
func NewVoteRepo(db *sqlx.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

// CreateVote inserts a vote. The UNIQUE(user_id, clip_id) constraint maps a
// duplicate vote to ErrAlreadyVoted, so there is no check-then-act race.
func (r *VoteRepo) CreateVote(ctx context.Context, userID, clipID int) (models.ClipVote, error) {
	var vote models.ClipVote
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO clip_votes (user_id, clip_id) VALUES ($1, $2)
         RETURNING id, user_id, clip_id, created_at`,
		userID, clipID).StructScan(&vote)
	if isUniqueViolation(err) {
		return models.ClipVote{}, ErrAlreadyVoted
	}
	return vote, err
}

// FindVote fetches a vote by (user, clip).
func (r *VoteRepo) FindVote(ctx context.Context, userID, clipID int) (models.ClipVote, error) {
	var vote models.ClipVote
	err := r.db.GetContext(ctx, &vote,
		`SELECT id, user_id, clip_id, created_at FROM clip_votes WHERE user_id=$1 AND clip_id=$2`,
		userID, clipID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ClipVote{}, ErrVoteNotFound
	}
	return vote, err
}

// ListVotes returns all votes.
func (r *VoteRepo) ListVotes(ctx context.Context) ([]models.ClipVote, error) {
	var votes []models.ClipVote
	err := r.db.SelectContext(ctx, &votes,
		`SELECT id, user_id, clip_id, created_at FROM clip_votes ORDER BY id`)
	return votes, err
}
