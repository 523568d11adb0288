package generator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pcastell/mend/internal/config"
	"github.com/pcastell/mend/internal/generator"
	"github.com/pcastell/mend/internal/models"
)

func TestParseResponseThinkingAndFence(t *testing.T) {
	text := "<thinking>\nThe loop is off by one.\n</thinking>\n```python\nprint(\"hi\")\n```"

	cand := generator.ParseResponse(text)
	if cand.Rationale != "The loop is off by one." {
		t.Errorf("unexpected rationale: %q", cand.Rationale)
	}
	if cand.Code != `print("hi")` {
		t.Errorf("unexpected code: %q", cand.Code)
	}
}

func TestParseResponseBareFence(t *testing.T) {
	cand := generator.ParseResponse("```\nx = 1\n```")
	if cand.Code != "x = 1" {
		t.Errorf("unexpected code: %q", cand.Code)
	}
	if cand.Rationale != "" {
		t.Errorf("expected empty rationale, got %q", cand.Rationale)
	}
}

func TestParseResponseFallbackAfterThinking(t *testing.T) {
	text := "<thinking>reasoning here</thinking>\nprint(\"no fence\")\n"

	cand := generator.ParseResponse(text)
	if cand.Rationale != "reasoning here" {
		t.Errorf("unexpected rationale: %q", cand.Rationale)
	}
	if cand.Code != `print("no fence")` {
		t.Errorf("fallback should treat trailing text as code, got %q", cand.Code)
	}
}

func TestParseResponsePlainText(t *testing.T) {
	cand := generator.ParseResponse("x = 2\nprint(x)")
	if cand.Code != "x = 2\nprint(x)" {
		t.Errorf("unexpected code: %q", cand.Code)
	}
}

func TestBuildPromptFirstIteration(t *testing.T) {
	task := &models.Task{
		Name:      "t",
		Statement: "Add two numbers.",
		TestCases: "assert add(1, 2) == 3\n",
	}

	prompt := generator.BuildPrompt(task, nil)
	if !strings.Contains(prompt, "Add two numbers.") {
		t.Error("prompt missing statement")
	}
	if !strings.Contains(prompt, "assert add(1, 2) == 3") {
		t.Error("prompt missing test cases")
	}
	if strings.Contains(prompt, "previous attempts") {
		t.Error("first prompt should not mention prior attempts")
	}
}

func TestBuildPromptHistoryOldestFirst(t *testing.T) {
	task := &models.Task{Name: "t", Statement: "Do it."}
	triples := []models.Triple{
		{
			Attempt:   models.Attempt{Iteration: 0, Code: "v0"},
			Diagnosis: models.Diagnosis{Category: models.CodeError, Feedback: "NameError: first"},
		},
		{
			Attempt:   models.Attempt{Iteration: 1, Code: "v1"},
			Diagnosis: models.Diagnosis{Category: models.AssertionFailure, Feedback: "wrong output: second"},
		},
	}

	prompt := generator.BuildPrompt(task, triples)

	first := strings.Index(prompt, "NameError: first")
	second := strings.Index(prompt, "wrong output: second")
	if first < 0 || second < 0 {
		t.Fatalf("prompt missing feedback lines:\n%s", prompt)
	}
	if first > second {
		t.Error("history should be ordered oldest first")
	}
	if !strings.Contains(prompt, "v1") {
		t.Error("prompt should include the latest attempt's code")
	}
	if strings.Contains(prompt, "```python\nv0\n```") {
		t.Error("prompt should not include code of older attempts")
	}
	if !strings.Contains(prompt, "**Latest execution feedback:**\nwrong output: second") {
		t.Error("prompt should end history with the latest feedback")
	}
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	task := &models.Task{Name: "t", Statement: "Do it."}
	triples := []models.Triple{
		{
			Attempt:   models.Attempt{Iteration: 0, Code: "v0"},
			Diagnosis: models.Diagnosis{Category: models.Timeout, Feedback: "execution exceeded time limit"},
		},
	}

	if generator.BuildPrompt(task, triples) != generator.BuildPrompt(task, triples) {
		t.Error("prompt construction should be deterministic")
	}
}

func serverConfig(url string) config.GeneratorConfig {
	return config.GeneratorConfig{
		BaseURL:    url,
		Model:      "test-model",
		TimeoutSec: 5,
	}
}

func TestOpenAIGeneratorParsesCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"<thinking>plan</thinking>\n` +
			"```python\\nprint(1)\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	gen := generator.NewOpenAIGenerator(serverConfig(srv.URL))
	cand, err := gen.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if cand.Code != "print(1)" {
		t.Errorf("unexpected code: %q", cand.Code)
	}
	if cand.Rationale != "plan" {
		t.Errorf("unexpected rationale: %q", cand.Rationale)
	}
}

func TestOpenAIGeneratorNon200IsGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen := generator.NewOpenAIGenerator(serverConfig(srv.URL))
	_, err := gen.Generate(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("expected GenerationError, got %T: %v", err, err)
	}
}

func TestOpenAIGeneratorEmptyChoicesIsGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen := generator.NewOpenAIGenerator(serverConfig(srv.URL))
	_, err := gen.Generate(context.Background(), "prompt")
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("expected GenerationError, got %T: %v", err, err)
	}
}

func TestOpenAIGeneratorNoCodeIsGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"<thinking>only thoughts</thinking>"}}]}`))
	}))
	defer srv.Close()

	gen := generator.NewOpenAIGenerator(serverConfig(srv.URL))
	_, err := gen.Generate(context.Background(), "prompt")
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("expected GenerationError, got %T: %v", err, err)
	}
}

func TestOpenAIGeneratorUnreachableIsGenerationError(t *testing.T) {
	gen := generator.NewOpenAIGenerator(serverConfig("http://127.0.0.1:1"))
	_, err := gen.Generate(context.Background(), "prompt")
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("expected GenerationError, got %T: %v", err, err)
	}
}
