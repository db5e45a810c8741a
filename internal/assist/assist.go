package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/squadsync/squadsync/internal/model"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	temperature    = 0.7

	requestBaseDelay = time.Second
	requestMaxTries  = 2
)

// Canned replies, matching what the group is used to seeing.
const (
	// FallbackReply is returned when the model call fails outright.
	FallbackReply = "Sor9ry 我跌咗個腦。用唔到住"
	// EmptyReply is returned when the model answers with no text.
	EmptyReply = "I'm sorry, I couldn't process that request."
	// BusyReply is returned while another question is still in flight.
	BusyReply = "One sec, still thinking about the last question."
	// UnconfiguredReply is returned when no API key is set.
	UnconfiguredReply = "The schedule assistant isn't set up yet. Ask whoever runs the server to add an API key."
)

// Config holds assistant configuration from environment variables.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Service answers natural-language questions about the schedule by sending the
// full roster and event list as context to a Gemini model. One question is in
// flight at a time.
type Service struct {
	config Config
	client *http.Client
	logger *slog.Logger
	busy   atomic.Bool
}

// NewService creates the assistant service.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Configured reports whether an API key is present.
func (s *Service) Configured() bool {
	return s.config.APIKey != ""
}

// Ask answers a question about the schedule. It never propagates model
// failures to the caller; every path yields a displayable reply.
func (s *Service) Ask(ctx context.Context, users []model.User, events []model.ScheduleEvent, query string) string {
	if !s.Configured() {
		return UnconfiguredReply
	}
	if !s.busy.CompareAndSwap(false, true) {
		return BusyReply
	}
	defer s.busy.Store(false)

	answer, err := s.generate(ctx, buildPrompt(users, events, query))
	if err != nil {
		s.logger.Warn("assistant call failed", "error", err)
		return FallbackReply
	}
	if answer == "" {
		return EmptyReply
	}
	return answer
}

// buildPrompt renders the roster and schedule into the guru persona prompt.
func buildPrompt(users []model.User, events []model.ScheduleEvent, query string) string {
	byID := make(map[string]model.User, len(users))
	names := make([]string, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		names = append(names, u.Name+" "+u.Icon)
	}

	var schedule strings.Builder
	for _, e := range events {
		u := byID[e.UserID]
		dateInfo := "on " + e.Date
		if e.EndDate != "" && e.EndDate != e.Date {
			dateInfo = fmt.Sprintf("from %s to %s", e.Date, e.EndDate)
		}
		detailInfo := ""
		if e.Description != "" {
			detailInfo = fmt.Sprintf(" (Notes: %s)", e.Description)
		}
		fmt.Fprintf(&schedule, "%s (%s) has an event: %q %s%s.\n", u.Name, u.Icon, e.Title, dateInfo, detailInfo)
	}

	return fmt.Sprintf(`You are the "SquadSync Guru", an AI assistant for a group of friends using the SquadSync app.
The users are: %s.

Current Schedule:
%s
User Question: %q

Rules:
- Answer the question accurately based on the provided schedule.
- If someone has an event, they are "busy". If they don't have an event on a date, they are "free".
- Events starting with 👨‍👩‍👧‍👦 are "Group Events" where everyone is attending.
- Be concise, friendly, and use the friends' emojis in your response.
- If details like specific times, train numbers, or locations are provided in the (Notes: ...), use that information to answer specific questions.
- If you don't know the answer or the date is outside the schedule, say so gracefully.`,
		strings.Join(names, ", "), schedule.String(), query)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate calls the generateContent endpoint, retrying rate limits and server
// errors with backoff.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.config.BaseURL, s.config.Model)

	var answer string
	backoff := retry.WithMaxRetries(requestMaxTries, retry.NewExponential(requestBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", s.config.APIKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("model request: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("model returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model returned status %d", resp.StatusCode)
		}

		var parsed generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode model response: %w", err)
		}
		if len(parsed.Candidates) > 0 && len(parsed.Candidates[0].Content.Parts) > 0 {
			answer = parsed.Candidates[0].Content.Parts[0].Text
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
