package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/llm"
)

const systemPrompt = "You are a precise SOC assistant."

const userPromptPrefix = "You are a SOC assistant. Using the ML pre-summary and samples, produce 4-6 concise bullets. " +
	"Mention volumes, geos, and notable IPs. End with a one-line risk verdict.\n\n" +
	"ML pre-summary:\n"

// promptContext is the JSON document handed to the model.
type promptContext struct {
	Verdict      analytics.Verdict        `json:"ml_features"`
	SampleFailed []analytics.LoginFailure `json:"sample_failed"`
	Sample5xx    []string                 `json:"sample_5xx"`
}

// buildPrompt renders the user prompt, capping the JSON context at maxBytes.
func buildPrompt(a analytics.Assessment, samples, maxBytes int) (string, error) {
	pc := promptContext{
		Verdict:      a.Verdict,
		SampleFailed: head(a.Window.FailedLogins, samples),
		Sample5xx:    head(a.Window.ServerErrors, samples),
	}
	data, err := json.Marshal(pc)
	if err != nil {
		return "", fmt.Errorf("encode prompt context: %w", err)
	}
	return userPromptPrefix + truncateUTF8(string(data), maxBytes), nil
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// llmSummary asks the provider to phrase the assessment.
func llmSummary(ctx context.Context, p llm.Provider, a analytics.Assessment, cfg ReportConfig) (string, error) {
	prompt, err := buildPrompt(a, cfg.SampleLimit, cfg.PromptMaxBytes)
	if err != nil {
		return "", err
	}
	resp, err := p.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.WithTemperature(cfg.Temperature), llm.WithMaxTokens(cfg.MaxTokens))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
