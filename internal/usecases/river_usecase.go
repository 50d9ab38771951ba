// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelzeko/riverflow/internal/conditions"
	"github.com/abelzeko/riverflow/internal/entities"
	"github.com/abelzeko/riverflow/internal/integration/openai"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/rs/zerolog"
)

// RiverUseCase answers questions about the latest river status
type RiverUseCase struct {
	repo          repository.StatusRepository
	openAIService openai.OpenAIService // optional
	logger        zerolog.Logger
}

// NewRiverUseCase creates a new river use case. openAIService may be nil.
func NewRiverUseCase(repo repository.StatusRepository, openAIService openai.OpenAIService, logger zerolog.Logger) *RiverUseCase {
	return &RiverUseCase{
		repo:          repo,
		openAIService: openAIService,
		logger:        logger,
	}
}

// GetStatus returns the latest status
func (uc *RiverUseCase) GetStatus(ctx context.Context) (entities.Status, error) {
	return uc.repo.GetStatus(ctx)
}

// GetAvailableRivers returns the names of all rivers in the latest status, in display order
func (uc *RiverUseCase) GetAvailableRivers(ctx context.Context) ([]string, error) {
	status, err := uc.repo.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(status.Rivers))
	for _, r := range status.Rivers {
		names = append(names, r.Name)
	}
	return names, nil
}

// FindRiver looks up a river by site ID, then by exact name, then by name fragment (case-insensitive)
func (uc *RiverUseCase) FindRiver(ctx context.Context, query string) (entities.RiverView, bool, error) {
	status, err := uc.repo.GetStatus(ctx)
	if err != nil {
		return entities.RiverView{}, false, err
	}
	river, ok := findRiver(status.Rivers, query)
	return river, ok, nil
}

func findRiver(rivers []entities.RiverView, query string) (entities.RiverView, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return entities.RiverView{}, false
	}
	for _, r := range rivers {
		if r.SiteID == q {
			return r, true
		}
	}
	for _, r := range rivers {
		if strings.EqualFold(r.Name, q) {
			return r, true
		}
	}
	lower := strings.ToLower(q)
	for _, r := range rivers {
		if strings.Contains(strings.ToLower(r.Name), lower) {
			return r, true
		}
	}
	return entities.RiverView{}, false
}

// HandleNaturalLanguageQuery interprets a user's free-text query and returns a reply.
// Without an assistant configured it falls back to name matching.
func (uc *RiverUseCase) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	status, err := uc.repo.GetStatus(ctx)
	if err != nil {
		uc.logger.Error().Err(err).Msg("failed to load status")
		return "Sorry, I couldn't load the river list right now.", nil
	}
	if status.State != entities.StateReady {
		return StatusMessage(status), nil
	}

	if uc.openAIService == nil {
		if river, ok := findRiver(status.Rivers, query); ok {
			return FormatRiverInfo(river), nil
		}
		return "I don't understand. Use /rivers to see the list or /help for commands.", nil
	}

	names := make([]string, 0, len(status.Rivers))
	for _, r := range status.Rivers {
		names = append(names, r.Name)
	}

	uc.logger.Debug().Str("query", query).Msg("interpreting natural language query")
	agentResp, err := uc.openAIService.InterpretUserQuery(ctx, query, names)
	if err != nil {
		uc.logger.Error().Err(err).Msg("failed to interpret query")
		return "Sorry, I'm having trouble understanding right now. Please try again later or use /help.", nil
	}

	uc.logger.Debug().
		Str("command", agentResp.CommandName).
		Str("river", agentResp.RiverName).
		Msg("agent response")

	switch agentResp.CommandName {
	case openai.CommandGetRiver:
		if agentResp.RiverName == "" {
			return agentResp.UserMessage, nil
		}
		msg := agentResp.UserMessage
		if msg != "" {
			msg += "\n\n"
		}
		river, ok := findRiver(status.Rivers, agentResp.RiverName)
		if !ok {
			return msg + fmt.Sprintf("I couldn't find a reading for '%s'. Use /rivers to see available ones.", agentResp.RiverName), nil
		}
		return msg + FormatRiverInfo(river), nil
	case openai.CommandGeneralQuery:
		return agentResp.UserMessage, nil
	default:
		uc.logger.Warn().Str("command", agentResp.CommandName).Msg("unexpected agent command")
		return "I'm not sure how to respond to that. You can use /help for commands.", nil
	}
}

// StatusMessage describes a non-ready status for text front ends
func StatusMessage(status entities.Status) string {
	switch status.State {
	case entities.StateLoading:
		return "River data is loading. Please try again in a minute."
	case entities.StateError:
		if status.Reason == entities.ReasonNoData {
			return "No river data available right now."
		}
		return "Error fetching river data. Please try again later."
	default:
		return ""
	}
}

// FormatRiverList renders the river list, one line per river
func FormatRiverList(status entities.Status) string {
	if status.State != entities.StateReady {
		return StatusMessage(status)
	}
	if len(status.Rivers) == 0 {
		return "No rivers are reporting right now."
	}

	var result strings.Builder
	result.WriteString("Current river flows:\n\n")
	for _, r := range status.Rivers {
		result.WriteString(fmt.Sprintf("%s %s: %d cfs%s\n", levelIcon(r.Level), r.Name, r.CurrentFlow, trendArrow(r)))
	}
	result.WriteString("\nUse /river [name] to get detailed information.")
	result.WriteString(fmt.Sprintf("\n\n🕒 Last update: %s", status.UpdatedAt.Format("2006-01-02 15:04:05")))
	return result.String()
}

// FormatRiverInfo formats one river for display
func FormatRiverInfo(r entities.RiverView) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s (%s)\n\n", r.Name, r.SiteID))
	result.WriteString(fmt.Sprintf("🌊 Flow: %d cfs (was %d)%s\n", r.CurrentFlow, r.PreviousFlow, trendArrow(r)))
	if r.RisingFast {
		result.WriteString("⚠️ Rising fast\n")
	}
	result.WriteString(fmt.Sprintf("%s Condition: %s (%s)\n", levelIcon(r.Level), r.Condition, conditions.Level(r.Level)))
	if r.Class != "" {
		result.WriteString(fmt.Sprintf("🛶 Class: %s\n", r.Class))
	}
	reading := r.DisplayTime
	if r.DisplayDate != "" {
		reading = r.DisplayDate + " " + r.DisplayTime
	}
	result.WriteString(fmt.Sprintf("🕒 Reading: %s\n", reading))
	result.WriteString(fmt.Sprintf("📍 Map: %s", r.MapLink))
	return result.String()
}

func trendArrow(r entities.RiverView) string {
	switch {
	case r.Rising:
		return " ↑"
	case r.CurrentFlow < r.PreviousFlow:
		return " ↓"
	default:
		return ""
	}
}

func levelIcon(level int) string {
	switch {
	case level <= 1:
		return "⚪"
	case level == 2:
		return "🟡"
	case level <= 4:
		return "🟢"
	case level == 5:
		return "🟠"
	default:
		return "🔴"
	}
}
