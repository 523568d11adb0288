package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/pcastell/mend/internal/config"
)

// OpenAIGenerator calls an OpenAI-compatible /chat/completions
// endpoint. Most hosted providers (and local gateways) speak this
// dialect, so a base URL plus model name is the whole integration.
type OpenAIGenerator struct {
	cfg    config.GeneratorConfig
	client *http.Client
}

// NewOpenAIGenerator creates a generator for the configured provider.
func NewOpenAIGenerator(cfg config.GeneratorConfig) *OpenAIGenerator {
	return &OpenAIGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt and parses the candidate out of the
// response text.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Candidate, error) {
	body := chatRequest{
		Model:     g.cfg.Model,
		MaxTokens: g.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: prompt},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Candidate{}, genErr(fmt.Errorf("encoding request: %w", err))
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return Candidate{}, genErr(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKeyEnv != "" {
		if key := os.Getenv(g.cfg.APIKeyEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Candidate{}, genErr(fmt.Errorf("calling provider: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Rate limits, auth failures and server errors all collapse
		// into the one GenerationError kind; the status is only logged.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Debug("provider returned non-200", "status", resp.StatusCode, "body", string(snippet))
		return Candidate{}, genErr(fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Candidate{}, genErr(fmt.Errorf("decoding response: %w", err))
	}
	if parsed.Error != nil {
		return Candidate{}, genErr(fmt.Errorf("provider error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Candidate{}, genErr(fmt.Errorf("empty response"))
	}

	cand := ParseResponse(parsed.Choices[0].Message.Content)
	if cand.Code == "" {
		return Candidate{}, genErr(fmt.Errorf("response contains no code"))
	}
	return cand, nil
}

var (
	thinkingRe = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	codeRe     = regexp.MustCompile("(?s)```(?:python)?\n?(.*?)```")
)

// ParseResponse extracts the rationale and code from a raw completion.
// The rationale lives in <thinking> tags; the code in a fenced block.
// When no fence is present, everything after </thinking> is treated as
// code, matching how lenient models format their answers.
func ParseResponse(text string) Candidate {
	var cand Candidate

	if m := thinkingRe.FindStringSubmatch(text); m != nil {
		cand.Rationale = strings.TrimSpace(m[1])
	}

	if m := codeRe.FindStringSubmatch(text); m != nil {
		cand.Code = strings.TrimSpace(m[1])
		return cand
	}

	rest := text
	if i := strings.LastIndex(text, "</thinking>"); i >= 0 {
		rest = text[i+len("</thinking>"):]
	}
	cand.Code = strings.TrimSpace(rest)
	return cand
}
