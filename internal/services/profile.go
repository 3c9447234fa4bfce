package services

import (
	"context"

	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/repos"
)

// ProfileService is the learner variable store: read by templates and goto
// blocks, written by input/options blocks.
type ProfileService interface {
	Get(ctx context.Context, userBID, shifuBID string, keys []string) (map[string]string, error)
	GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error)
	Set(ctx context.Context, userBID, shifuBID string, vars map[string]string) error
}

type profileService struct {
	repo repos.ProfileRepo
	log  *logger.Logger
}

func NewProfileService(repo repos.ProfileRepo, baseLog *logger.Logger) ProfileService {
	return &profileService{
		repo: repo,
		log:  baseLog.With("service", "ProfileService"),
	}
}

func (s *profileService) Get(ctx context.Context, userBID, shifuBID string, keys []string) (map[string]string, error) {
	return s.repo.Get(ctx, nil, userBID, shifuBID, keys)
}

func (s *profileService) GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error) {
	return s.repo.GetAll(ctx, nil, userBID, shifuBID)
}

func (s *profileService) Set(ctx context.Context, userBID, shifuBID string, vars map[string]string) error {
	if len(vars) == 0 {
		return nil
	}
	return s.repo.Set(ctx, nil, userBID, shifuBID, vars)
}
