package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ai-shifu/shifu-backend/internal/clients/openai"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

const defaultAskHistoryLen = 10

type AskTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	User       *types.User
	ShifuBID   string
	OutlineBID string
	Preview    bool
	Question   string
	History    []AskTurn
}

// AskService is the free-form Q&A side channel, distinct from the scripted
// block sequence. Read-only: no progress writes, no run lock.
type AskService interface {
	Ask(ctx context.Context, req AskRequest, onDelta func(delta string)) (string, error)
}

type askService struct {
	resolver StructResolver
	llm      openai.Client
	log      *logger.Logger
}

func NewAskService(resolver StructResolver, llm openai.Client, baseLog *logger.Logger) AskService {
	return &askService{
		resolver: resolver,
		llm:      llm,
		log:      baseLog.With("service", "AskService"),
	}
}

func (s *askService) Ask(ctx context.Context, req AskRequest, onDelta func(delta string)) (string, error) {
	shifu, err := s.resolver.GetShifu(ctx, req.ShifuBID, req.Preview)
	if err != nil {
		return "", err
	}

	system := shifu.AskPrompt
	var currentOutline *types.OutlineItem
	if req.OutlineBID != "" {
		currentOutline, err = s.resolver.GetOutlineItem(ctx, req.OutlineBID, req.Preview)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(currentOutline.AskPrompt) != "" {
			system = currentOutline.AskPrompt
		}
	}

	// Lesson summaries up to the learner's position give the model course
	// context without replaying whole transcripts.
	paid := req.User != nil && req.User.Paid
	tree, err := s.resolver.GetStruct(ctx, req.ShifuBID, req.Preview, paid)
	if err != nil {
		return "", err
	}
	var summaries []string
	for _, leaf := range tree.Leaves() {
		if strings.TrimSpace(leaf.Item.Summary) != "" {
			summaries = append(summaries, fmt.Sprintf("%s: %s", leaf.Item.Title, leaf.Item.Summary))
		}
		if currentOutline != nil && leaf.Item.BID == currentOutline.BID {
			break
		}
	}
	if len(summaries) > 0 {
		system = system + "\n\nCourse context so far:\n" + strings.Join(summaries, "\n")
	}

	historyLen := shifu.AskHistoryLen
	if historyLen <= 0 {
		historyLen = defaultAskHistoryLen
	}
	history := req.History
	if len(history) > historyLen {
		history = history[len(history)-historyLen:]
	}

	var user strings.Builder
	for _, turn := range history {
		user.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}
	user.WriteString("student: " + req.Question)

	model := shifu.AskModel
	if model == "" {
		model = shifu.Model
	}
	return s.llm.StreamText(ctx, model, system, user.String(), shifu.Temperature, onDelta)
}
