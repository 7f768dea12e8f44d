package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"clips-service/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, passwordHash, email string) (models.User, error) {
	args := m.Called(ctx, username, passwordHash, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ClipRepositoryMock struct {
	mock.Mock
}

func (m *ClipRepositoryMock) CreateClip(ctx context.Context, url, description string, postedBy int) (models.Clip, error) {
	args := m.Called(ctx, url, description, postedBy)
	var clip models.Clip
	if val := args.Get(0); val != nil {
		clip = val.(models.Clip)
	}
	return clip, args.Error(1)
}

func (m *ClipRepositoryMock) GetClip(ctx context.Context, clipID int) (models.Clip, error) {
	args := m.Called(ctx, clipID)
	var clip models.Clip
	if val := args.Get(0); val != nil {
		clip = val.(models.Clip)
	}
	return clip, args.Error(1)
}

func (m *ClipRepositoryMock) ListClips(ctx context.Context, search string, first, skip int) ([]models.Clip, error) {
	args := m.Called(ctx, search, first, skip)
	var clips []models.Clip
	if val := args.Get(0); val != nil {
		clips = val.([]models.Clip)
	}
	return clips, args.Error(1)
}

func (m *ClipRepositoryMock) ListClipsForUser(ctx context.Context, userID int) ([]models.Clip, error) {
	args := m.Called(ctx, userID)
	var clips []models.Clip
	if val := args.Get(0); val != nil {
		clips = val.([]models.Clip)
	}
	return clips, args.Error(1)
}

func (m *ClipRepositoryMock) ListVotesForClip(ctx context.Context, clipID int) ([]models.ClipVote, error) {
	args := m.Called(ctx, clipID)
	var votes []models.ClipVote
	if val := args.Get(0); val != nil {
		votes = val.([]models.ClipVote)
	}
	return votes, args.Error(1)
}

func (m *ClipRepositoryMock) CountVotesForClip(ctx context.Context, clipID int) (int, error) {
	args := m.Called(ctx, clipID)
	return args.Int(0), args.Error(1)
}

type VoteRepositoryMock struct {
	mock.Mock
}

func (m *VoteRepositoryMock) CreateVote(ctx context.Context, userID, clipID int) (models.ClipVote, error) {
	args := m.Called(ctx, userID, clipID)
	var vote models.ClipVote
	if val := args.Get(0); val != nil {
		vote = val.(models.ClipVote)
	}
	return vote, args.Error(1)
}

func (m *VoteRepositoryMock) FindVote(ctx context.Context, userID, clipID int) (models.ClipVote, error) {
	args := m.Called(ctx, userID, clipID)
	var vote models.ClipVote
	if val := args.Get(0); val != nil {
		vote = val.(models.ClipVote)
	}
	return vote, args.Error(1)
}

func (m *VoteRepositoryMock) ListVotes(ctx context.Context) ([]models.ClipVote, error) {
	args := m.Called(ctx)
	var votes []models.ClipVote
	if val := args.Get(0); val != nil {
		votes = val.([]models.ClipVote)
	}
	return votes, args.Error(1)
}
