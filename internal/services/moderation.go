package services

import (
	"context"
	"os"
	"strings"

	"github.com/ai-shifu/shifu-backend/internal/logger"
)

const (
	VerdictPass         = "pass"
	VerdictReview       = "review"
	VerdictReject       = "reject"
	VerdictUnknown      = "unknown"
	VerdictUnconfigured = "unconfigured"
)

type ModerationResult struct {
	Verdict    string   `json:"verdict"`
	RiskLabels []string `json:"risk_labels,omitempty"`
}

// ModerationService checks learner input against a content-moderation
// vendor. Only the contract matters to the run engine: reject blocks
// advancement, everything else passes through.
type ModerationService interface {
	Check(ctx context.Context, content, userBID, contextID string) (ModerationResult, error)
}

type moderationService struct {
	log      *logger.Logger
	provider string
}

// NewModerationService returns the configured vendor adapter, or an
// unconfigured pass-through when MODERATION_PROVIDER is unset.
func NewModerationService(log *logger.Logger) ModerationService {
	provider := strings.TrimSpace(os.Getenv("MODERATION_PROVIDER"))
	return &moderationService{
		log:      log.With("service", "ModerationService"),
		provider: provider,
	}
}

func (s *moderationService) Check(ctx context.Context, content, userBID, contextID string) (ModerationResult, error) {
	if s.provider == "" {
		return ModerationResult{Verdict: VerdictUnconfigured}, nil
	}
	// Vendor adapters are wired out-of-tree; an unrecognized provider is
	// reported as unknown rather than blocking the learner.
	s.log.Warn("Unknown moderation provider, passing content through", "provider", s.provider)
	return ModerationResult{Verdict: VerdictUnknown}, nil
}
