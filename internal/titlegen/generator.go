package titlegen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/policyvoice/server/internal/config"
	"github.com/policyvoice/server/internal/llm"
	"github.com/policyvoice/server/internal/logger"
	"github.com/policyvoice/server/internal/metrics"
)

const (
	// DefaultTitle is returned when no better title can be produced.
	DefaultTitle = "New Conversation"

	// maxContextMessages bounds the prompt size; older turns beyond this are dropped.
	maxContextMessages = 10

	// maxTitleLength is the hard cap on a returned title.
	maxTitleLength = 60

	// fallbackLength caps the first-user-message fallback.
	fallbackLength = 50

	// regenerateAttempts bounds sequential retries when a current title must be avoided.
	regenerateAttempts = 3
)

// focusAngles rotate across regeneration attempts to steer the model toward
// a different aspect of the conversation.
var focusAngles = []string{"topic", "action", "outcome", "context"}

// descriptorWords are appended during deterministic synthesis when the
// transcript offers too few usable words.
var descriptorWords = []string{"Overview", "Summary", "Notes", "Recap", "Details"}

var parentheticalRe = regexp.MustCompile(`\([^)]*\)`)

// Message is one conversation turn supplied to the generator.
type Message struct {
	Role    string
	Content string
}

// Generator produces short, distinguishing conversation titles.
type Generator struct {
	invoker llm.Invoker
	task    config.LLMTaskConfig
	logger  *logger.Logger
}

// NewGenerator creates a title generator backed by the given LLM invoker.
func NewGenerator(invoker llm.Invoker, task config.LLMTaskConfig, log *logger.Logger) *Generator {
	return &Generator{
		invoker: invoker,
		task:    task,
		logger:  log.WithComponent("title_generator"),
	}
}

// Generate turns a transcript into a 3-6 word title. When currentTitle is
// supplied the result is guaranteed to differ from it; the function never
// errors and never returns an empty string.
func (g *Generator) Generate(ctx context.Context, messages []Message, currentTitle string) string {
	if len(messages) == 0 {
		metrics.CountTitleGenerated("default")
		return DefaultTitle
	}

	// Any supplied title, the default included, must not come back verbatim.
	// The avoid-words prompt additions only make sense for a real title.
	avoidCurrent := currentTitle != ""
	regenerating := avoidCurrent && currentTitle != DefaultTitle

	attempts := 1
	if avoidCurrent {
		attempts = regenerateAttempts
	}

	log := g.logger.WithContext(ctx)

	for attempt := 0; attempt < attempts; attempt++ {
		angle := focusAngles[attempt%len(focusAngles)]

		resp, err := g.invoker.Invoke(ctx, llm.Request{
			Task:        "title",
			Model:       g.task.Model,
			MaxTokens:   g.task.MaxTokens,
			Temperature: g.task.Temperature,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: g.systemPrompt(currentTitle, regenerating, angle)},
				{Role: llm.RoleUser, Content: g.userPrompt(messages, regenerating)},
			},
		})
		if err != nil {
			log.Error("title generation attempt failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}

		title := CleanTitle(resp.Content)
		if title == "" {
			continue
		}

		if avoidCurrent && normalizeForComparison(title) == normalizeForComparison(currentTitle) {
			log.Debug("model repeated the current title, retrying",
				slog.Int("attempt", attempt+1),
				slog.String("next_angle", focusAngles[(attempt+1)%len(focusAngles)]))
			continue
		}

		metrics.CountTitleGenerated("llm")
		return title
	}

	if avoidCurrent {
		metrics.CountTitleGenerated("synthesized")
		return g.synthesizeVariation(messages, currentTitle)
	}

	// No current title to vary from: fall back to the first user message.
	for _, m := range messages {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			metrics.CountTitleGenerated("fallback")
			content := strings.TrimSpace(m.Content)
			if runes := []rune(content); len(runes) > fallbackLength {
				return string(runes[:fallbackLength]) + "..."
			}
			return content
		}
	}

	metrics.CountTitleGenerated("default")
	return DefaultTitle
}

// HasEnoughContext reports whether a transcript can yield a meaningful title:
// at least one user message and one assistant response.
func HasEnoughContext(messages []Message) bool {
	if len(messages) < 2 {
		return false
	}

	hasUser := false
	hasAssistant := false
	for _, m := range messages {
		switch m.Role {
		case "user":
			hasUser = true
		case "assistant":
			hasAssistant = true
		}
	}

	return hasUser && hasAssistant
}

func (g *Generator) systemPrompt(currentTitle string, regenerating bool, angle string) string {
	var b strings.Builder

	b.WriteString(`You are a creative title generator for conversation histories. Your task is to create short, descriptive titles that capture the essence of conversations.

RULES:
1. Title MUST be 3-6 words only
2. NO filler words (like "Discussion about", "Conversation on", "Help with")
3. NO full sentences or punctuation at the end
4. Capture the PRIMARY intent or outcome
5. Make it SEARCHABLE - use specific keywords
6. Differentiate from similar topics
7. Be CREATIVE and VARIED in your word choices

EXAMPLES:
- Good: "AI Policy Compliance Check"
- Good: "GDPR Data Retention Rules"
- Good: "Model Training Guidelines"
- Good: "Voice Assistant Setup"
- Good: "Platform Terms Analysis"
- Bad: "Discussion about calendar issues" (too long, has filler)
- Bad: "Help" (too vague)
- Bad: "A conversation about AI policies and regulations" (too long, sentence format)`)

	if regenerating {
		avoid := significantWords(currentTitle)
		fmt.Fprintf(&b, `

IMPORTANT: The current title is %q. You MUST generate a COMPLETELY DIFFERENT title that:
- Uses different words and phrasing
- Approaches the content from the %s angle
- Is NOT similar to the current title
- Provides a fresh perspective on the conversation

DO NOT reuse these words: %s. Be creative!`, currentTitle, angle, strings.Join(avoid, ", "))
	}

	fmt.Fprintf(&b, "\n\nOutput ONLY the title, nothing else. (Seed: %s)", randomSeed())

	return b.String()
}

func (g *Generator) userPrompt(messages []Message, regenerating bool) string {
	context := messages
	if len(context) > maxContextMessages {
		context = context[:maxContextMessages]
	}

	lines := make([]string, 0, len(context))
	for _, m := range context {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}

	prefix := "Generate a title for this conversation:"
	if regenerating {
		prefix = "Generate a NEW and DIFFERENT title for this conversation:"
	}

	return prefix + "\n\n" + strings.Join(lines, "\n\n")
}

// CleanTitle normalizes a raw model completion into a presentable title:
// surrounding quotes, trailing sentence punctuation, parenthetical asides and
// leading "Title:" labels are stripped, and the result is length-capped.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)

	// One layer of surrounding quotes
	if len(title) >= 2 {
		first := title[0]
		last := title[len(title)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			title = title[1 : len(title)-1]
		}
	}

	title = strings.TrimSpace(title)
	if len(title) > 0 {
		switch title[len(title)-1] {
		case '.', '!', '?':
			title = title[:len(title)-1]
		}
	}

	// Parenthetical asides, including any leaked seed marker
	title = parentheticalRe.ReplaceAllString(title, "")

	lower := strings.ToLower(title)
	for _, label := range []string{"new title:", "title:"} {
		if strings.HasPrefix(lower, label) {
			title = title[len(label):]
			break
		}
	}

	title = strings.Join(strings.Fields(title), " ")

	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength-3]) + "..."
	}

	return title
}

// normalizeForComparison lowercases and strips non-alphanumerics so that
// cosmetic differences don't count as a new title.
func normalizeForComparison(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// synthesizeVariation deterministically produces a title that differs from
// currentTitle when the model keeps repeating itself. Best-effort wording;
// the only guarantee is difference.
func (g *Generator) synthesizeVariation(messages []Message, currentTitle string) string {
	lowerTitle := strings.ToLower(currentTitle)

	seen := make(map[string]bool)
	var candidates []string
	for _, m := range messages {
		for _, word := range splitWords(m.Content) {
			if len(word) <= 4 {
				continue
			}
			lower := strings.ToLower(word)
			if seen[lower] || strings.Contains(lowerTitle, lower) {
				continue
			}
			seen[lower] = true
			candidates = append(candidates, capitalize(lower))
		}
	}

	if len(candidates) >= 2 {
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		count := 2 + rand.Intn(2)
		if count > len(candidates) {
			count = len(candidates)
		}
		title := CleanTitle(strings.Join(candidates[:count], " "))
		if normalizeForComparison(title) != normalizeForComparison(currentTitle) {
			return title
		}
	}

	// Too few usable words: truncate the current title and append a descriptor.
	words := strings.Fields(currentTitle)
	if len(words) > 3 {
		words = words[:3]
	}
	descriptor := descriptorWords[rand.Intn(len(descriptorWords))]
	return CleanTitle(strings.Join(append(words, descriptor), " "))
}

func significantWords(title string) []string {
	var words []string
	for _, w := range splitWords(title) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// randomSeed returns an opaque nonce embedded in the prompt to discourage the
// model from repeating itself across regeneration attempts.
func randomSeed() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 6)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
