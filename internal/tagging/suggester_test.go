package tagging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/policyvoice/server/internal/config"
	"github.com/policyvoice/server/internal/llm"
	"github.com/policyvoice/server/internal/logger"
)

type fakeInvoker struct {
	content  string
	err      error
	requests []llm.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func newTestSuggester(t *testing.T, invoker llm.Invoker) *Suggester {
	t.Helper()

	var log *logger.Logger
	if testing.Verbose() {
		log = logger.New(logger.Config{Level: slog.LevelDebug})
	} else {
		log = logger.New(logger.Config{Level: slog.LevelError})
	}

	task := config.LLMTaskConfig{Model: "gpt-4o-mini", MaxTokens: 400, Temperature: 0.3}
	return NewSuggester(invoker, task, log)
}

func sampleMessages() []Message {
	return []Message{
		{Role: "user", Content: "Does GDPR apply to our voice assistant transcripts?"},
		{Role: "assistant", Content: "Yes, transcripts of identifiable users are personal data under GDPR."},
	}
}

func TestSuggestEmptyMessages(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), nil, nil)

	if result.Success {
		t.Error("expected Success=false")
	}
	if result.Error != "No messages to analyze" {
		t.Errorf("unexpected error message: %q", result.Error)
	}
	if len(result.Suggestions) != 0 {
		t.Errorf("expected no suggestions, got %d", len(result.Suggestions))
	}
	if len(invoker.requests) != 0 {
		t.Errorf("expected no LLM calls, got %d", len(invoker.requests))
	}
}

func TestSuggestParsesAndValidates(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[
		{"name":"  Tag With Spaces  ","confidence":0.8,"reason":"topic"},
		{"name":"","confidence":0.9,"reason":"dropped, empty name"},
		{"name":"Missing Confidence","reason":"dropped, no score"},
		{"name":"Clamped High","confidence":1.5,"reason":"topic"},
		{"name":"Clamped Low","confidence":-0.1,"reason":"topic"}
	]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), sampleMessages(), nil)

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(result.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(result.Suggestions))
	}

	if result.Suggestions[0].Name != "Clamped High" || result.Suggestions[0].Confidence != 1.0 {
		t.Errorf("expected clamped-to-1.0 suggestion first, got %+v", result.Suggestions[0])
	}
	if result.Suggestions[1].Name != "Tag With Spaces" {
		t.Errorf("expected trimmed name, got %q", result.Suggestions[1].Name)
	}
	if result.Suggestions[2].Confidence != 0.0 {
		t.Errorf("expected negative confidence clamped to 0, got %v", result.Suggestions[2].Confidence)
	}
}

func TestSuggestSortsByConfidence(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[
		{"name":"Low","confidence":0.3,"reason":""},
		{"name":"High","confidence":0.9,"reason":""},
		{"name":"Mid","confidence":0.6,"reason":""}
	]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), sampleMessages(), nil)

	want := []string{"High", "Mid", "Low"}
	for i, name := range want {
		if result.Suggestions[i].Name != name {
			t.Errorf("position %d: expected %q, got %q", i, name, result.Suggestions[i].Name)
		}
	}
}

func TestSuggestCapsAtFive(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[
		{"name":"A","confidence":0.1,"reason":""},
		{"name":"B","confidence":0.2,"reason":""},
		{"name":"C","confidence":0.3,"reason":""},
		{"name":"D","confidence":0.4,"reason":""},
		{"name":"E","confidence":0.5,"reason":""},
		{"name":"F","confidence":0.6,"reason":""},
		{"name":"G","confidence":0.7,"reason":""}
	]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), sampleMessages(), nil)

	if len(result.Suggestions) != maxSuggestions {
		t.Fatalf("expected %d suggestions, got %d", maxSuggestions, len(result.Suggestions))
	}
	// The cap keeps the highest-confidence entries.
	if result.Suggestions[0].Name != "G" || result.Suggestions[4].Name != "C" {
		t.Errorf("cap did not keep the top suggestions: %+v", result.Suggestions)
	}
}

func TestSuggestTruncatesLongFields(t *testing.T) {
	longName := strings.Repeat("n", 50)
	longReason := strings.Repeat("r", 150)
	invoker := &fakeInvoker{content: `{"suggestions":[{"name":"` + longName + `","confidence":0.5,"reason":"` + longReason + `"}]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), sampleMessages(), nil)

	if len(result.Suggestions[0].Name) != maxNameLength {
		t.Errorf("expected name length %d, got %d", maxNameLength, len(result.Suggestions[0].Name))
	}
	if len(result.Suggestions[0].Reason) != maxReasonLength {
		t.Errorf("expected reason length %d, got %d", maxReasonLength, len(result.Suggestions[0].Reason))
	}
}

func TestSuggestTruncatesMultibyteFields(t *testing.T) {
	longName := strings.Repeat("ü", 50)
	longReason := strings.Repeat("é", 150)
	invoker := &fakeInvoker{content: `{"suggestions":[{"name":"` + longName + `","confidence":0.5,"reason":"` + longReason + `"}]}`}
	s := newTestSuggester(t, invoker)

	result := s.Suggest(context.Background(), sampleMessages(), nil)

	name := result.Suggestions[0].Name
	reason := result.Suggestions[0].Reason
	if !utf8.ValidString(name) || !utf8.ValidString(reason) {
		t.Fatalf("truncated fields are not valid UTF-8: %q / %q", name, reason)
	}
	if n := utf8.RuneCountInString(name); n != maxNameLength {
		t.Errorf("expected name rune count %d, got %d", maxNameLength, n)
	}
	if n := utf8.RuneCountInString(reason); n != maxReasonLength {
		t.Errorf("expected reason rune count %d, got %d", maxReasonLength, n)
	}
}

func TestSuggestErrorResults(t *testing.T) {
	tests := []struct {
		name      string
		invoker   *fakeInvoker
		wantError string
	}{
		{"invoke failure", &fakeInvoker{err: errors.New("upstream unavailable")}, "upstream unavailable"},
		{"empty response", &fakeInvoker{content: "   "}, "Empty response from LLM"},
		{"malformed json", &fakeInvoker{content: "not json"}, "parse suggestions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSuggester(t, tt.invoker)
			result := s.Suggest(context.Background(), sampleMessages(), nil)

			if result.Success {
				t.Error("expected Success=false")
			}
			if len(result.Suggestions) != 0 {
				t.Errorf("expected no suggestions, got %d", len(result.Suggestions))
			}
			if !strings.Contains(result.Error, tt.wantError) {
				t.Errorf("expected error containing %q, got %q", tt.wantError, result.Error)
			}
		})
	}
}

func TestSuggestPromptIncludesExistingTags(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[]}`}
	s := newTestSuggester(t, invoker)

	existing := []ExistingTag{
		{ID: "1", Name: "GDPR", Color: "purple"},
		{ID: "2", Name: "Privacy", Color: "pink"},
	}
	s.Suggest(context.Background(), sampleMessages(), existing)

	system := invoker.requests[0].Messages[0].Content
	if !strings.Contains(system, "GDPR, Privacy") {
		t.Errorf("system prompt missing existing tag names: %q", system)
	}
}

func TestSuggestRequestsStructuredOutput(t *testing.T) {
	invoker := &fakeInvoker{content: `{"suggestions":[]}`}
	s := newTestSuggester(t, invoker)

	s.Suggest(context.Background(), sampleMessages(), nil)

	format := invoker.requests[0].ResponseFormat
	if format == nil {
		t.Fatal("expected a response format on the request")
	}
	if format.Name != "tag_suggestions" {
		t.Errorf("unexpected schema name %q", format.Name)
	}
}

func TestConversationContext(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}

	got := conversationContext(messages)
	want := "User: hello\nAI: hi there"
	if got != want {
		t.Errorf("conversationContext() = %q, want %q", got, want)
	}
}

func TestConversationContextCapsLength(t *testing.T) {
	messages := []Message{{Role: "user", Content: strings.Repeat("a", 5000)}}
	if got := len(conversationContext(messages)); got != maxContextChars {
		t.Errorf("expected capped length %d, got %d", maxContextChars, got)
	}
}

func TestConversationContextTruncatesOnRuneBoundary(t *testing.T) {
	messages := []Message{{Role: "user", Content: strings.Repeat("ß", 5000)}}
	got := conversationContext(messages)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated context is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != maxContextChars {
		t.Errorf("expected capped rune count %d, got %d", maxContextChars, n)
	}
}

func TestFindMatchingExistingTag(t *testing.T) {
	existing := []ExistingTag{
		{ID: "1", Name: "GDPR", Color: "purple"},
		{ID: "2", Name: "Privacy Policy", Color: "pink"},
	}

	tests := []struct {
		name       string
		suggestion string
		wantID     string
	}{
		{"case-insensitive match", "gdpr", "1"},
		{"trimmed match", "  privacy policy  ", "2"},
		{"no substring match", "GDP", ""},
		{"no superstring match", "GDPR Rules", ""},
		{"no match", "Compliance", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindMatchingExistingTag(tt.suggestion, existing)
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a match, got nil")
			}
			if got.ID != tt.wantID {
				t.Errorf("expected tag %q, got %q", tt.wantID, got.ID)
			}
		})
	}
}

func TestFindMatchingExistingTagReturnsCopy(t *testing.T) {
	existing := []ExistingTag{{ID: "1", Name: "GDPR", Color: "purple"}}

	got := FindMatchingExistingTag("GDPR", existing)
	got.Name = "mutated"

	if existing[0].Name != "GDPR" {
		t.Error("match mutation leaked into the source slice")
	}
}
