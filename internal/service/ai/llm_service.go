package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/paper-tribunal/backend/internal/analysis/rubric"
	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	sessionmodel "github.com/zhouzirui/paper-tribunal/backend/internal/model/session"
)

// Limiter bounds concurrent outbound model calls. Acquire blocks until a
// slot is free or the context expires; the returned func releases the slot.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
}

// debateWindow is how many recent turns each reply prompt sees.
const debateWindow = 12

// Service runs every reviewer-facing generation through a single compiled
// eino chain: persona system prompt, optional transcript history, query.
type Service struct {
	chatModel model.ChatModel
	limiter   Limiter
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the chat chain against the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig, limiter Limiter) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		limiter:   limiter,
		chain:     runnable,
	}, nil
}

// AnalyzePaper asks one reviewer persona for its structured analysis of
// the paper and parses the reply into concerns, severity and confidence.
func (s *Service) AnalyzePaper(ctx context.Context, profile review.Profile, paper sessionmodel.Paper) (review.Analysis, error) {
	raw, err := s.invoke(ctx, map[string]any{
		"system":  BuildAnalysisPrompt(profile, paper.Language),
		"history": nil,
		"query":   analysisQuery(paper),
	})
	if err != nil {
		return review.Analysis{}, fmt.Errorf("analysis generation for %s: %w", profile.Key, err)
	}

	parsed := rubric.ParseAnalysis(profile.Key, raw)
	log.Printf("[ai] analysis reviewer=%s severity=%s concerns=%d", profile.Key, parsed.Severity, len(parsed.Concerns))
	return parsed, nil
}

// OpeningStatement produces the reviewer's one-or-two sentence opening,
// grounded in its own analysis.
func (s *Service) OpeningStatement(ctx context.Context, profile review.Profile, analysis review.Analysis) (string, error) {
	query := fmt.Sprintf(
		"Your written analysis concluded %s (confidence %d). Deliver your opening statement to the tribunal: "+
			"one or two spoken sentences naming your single gravest finding. No preamble, no bullet points.",
		analysis.Severity, analysis.Confidence,
	)

	raw, err := s.invoke(ctx, map[string]any{
		"system":  BuildDebatePrompt(profile, analysis),
		"history": nil,
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("opening statement for %s: %w", profile.Key, err)
	}
	return strings.TrimSpace(raw), nil
}

// DebateReply produces the reviewer's in-character reply to the user's
// latest message, given a window of recent transcript.
func (s *Service) DebateReply(ctx context.Context, profile review.Profile, transcript []sessionmodel.Turn, userText string) (string, error) {
	raw, err := s.invoke(ctx, map[string]any{
		"system":  BuildReplyPrompt(profile),
		"history": s.buildHistory(profile, transcript),
		"query":   userText,
	})
	if err != nil {
		return "", fmt.Errorf("debate reply for %s: %w", profile.Key, err)
	}
	return strings.TrimSpace(raw), nil
}

// VerdictNarrative turns the aggregated verdict structure into a spoken
// summary and a one-line recommendation, separated by a blank line.
func (s *Service) VerdictNarrative(ctx context.Context, verdict review.Verdict) (summary, recommendation string, err error) {
	raw, err := s.invoke(ctx, map[string]any{
		"system":  BuildNarratorPrompt(),
		"history": nil,
		"query":   narrativeQuery(verdict),
	})
	if err != nil {
		return "", "", fmt.Errorf("verdict narrative: %w", err)
	}

	summary, recommendation = splitNarrative(raw)
	return summary, recommendation, nil
}

func (s *Service) invoke(ctx context.Context, input map[string]any) (string, error) {
	if s.limiter != nil {
		release, err := s.limiter.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("model limiter: %w", err)
		}
		defer release()
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	return response.Content, nil
}

// buildHistory maps transcript turns onto chat roles: the reviewer's own
// turns become assistant messages, everything else (the user and the
// other three reviewers, prefixed by role) becomes user messages.
func (s *Service) buildHistory(profile review.Profile, transcript []sessionmodel.Turn) []*schema.Message {
	if len(transcript) == 0 {
		return nil
	}

	startIdx := 0
	if len(transcript) > debateWindow {
		startIdx = len(transcript) - debateWindow
	}

	history := make([]*schema.Message, 0, len(transcript)-startIdx)
	for _, turn := range transcript[startIdx:] {
		switch turn.Speaker {
		case string(profile.Key):
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		case review.UserSpeaker:
			history = append(history, schema.UserMessage(turn.Text))
		default:
			history = append(history, schema.UserMessage(fmt.Sprintf("[%s] %s", turn.Speaker, turn.Text)))
		}
	}
	return history
}

func analysisQuery(paper sessionmodel.Paper) string {
	var b strings.Builder
	b.WriteString("Review the following paper.\n\nTitle: ")
	b.WriteString(paper.Title)
	b.WriteString("\n\n")
	b.WriteString(paper.Text)
	return b.String()
}

func narrativeQuery(verdict review.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Final score: %d/100. Concerns raised: %d total, %d critical. Debate rounds: %d.\n",
		verdict.Score, verdict.TotalConcerns, verdict.CriticalCount, verdict.DebateRounds)
	if len(verdict.CriticalIssues) > 0 {
		b.WriteString("Critical issues:\n")
		for _, issue := range verdict.CriticalIssues {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", issue.Reviewer, issue.Title, issue.Severity)
		}
	}
	b.WriteString("Write the tribunal's closing narration.")
	return b.String()
}

// splitNarrative separates the narration from the recommendation line.
// The narrator prompt asks for summary, blank line, recommendation; a
// reply without the blank line becomes all summary.
func splitNarrative(raw string) (summary, recommendation string) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "\n\n"); idx >= 0 {
		return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+2:])
	}
	return raw, ""
}
