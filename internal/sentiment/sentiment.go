// Package sentiment reads the emotional state of the latest customer message.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/rules"
)

const historyTurns = 6

var (
	positiveWords = []string{"thank", "thanks", "great", "awesome", "perfect", "excellent", "happy", "love", "appreciate"}
	negativeWords = []string{"frustrated", "angry", "upset", "terrible", "awful", "worst", "hate", "disappointed"}
)

const (
	positiveWeight = 0.3
	negativeWeight = -0.4
	empathyBelow   = -0.2
)

type Analyzer struct {
	logger *zap.Logger
}

func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger}
}

type llmAnalysis struct {
	Level              domain.SentimentLevel `json:"level"`
	Score              *float64              `json:"score"`
	PrimaryEmotion     string                `json:"primaryEmotion"`
	SecondaryEmotions  []string              `json:"secondaryEmotions"`
	Indicators         []string              `json:"indicators"`
	Trend              domain.Trend          `json:"trend"`
	EmpathyNeeded      *bool                 `json:"empathyNeeded"`
	EscalationRisk     domain.Risk           `json:"escalationRisk"`
	ContextualInsights string                `json:"contextualInsights"`
	RecommendedTone    string                `json:"recommendedTone"`
}

func validateAnalysis(a llmAnalysis) error {
	if a.Level != "" && !a.Level.Valid() {
		return fmt.Errorf("unknown sentiment level %q", a.Level)
	}
	if a.Score != nil && (math.IsNaN(*a.Score) || math.IsInf(*a.Score, 0)) {
		return fmt.Errorf("score is not a finite number")
	}
	return nil
}

// Analyze asks the model for a structured read and falls back to the keyword
// heuristic on any gateway or decode failure.
func (a *Analyzer) Analyze(ctx context.Context, client llm.Client, message string, history []domain.Message) domain.SentimentAnalysis {
	if client == nil {
		return Heuristic(message)
	}
	text, err := client.Generate(ctx, buildPrompt(message, history))
	if err != nil {
		a.logger.Warn("sentiment llm failed, using heuristic", zap.String("model", client.Model()), zap.Error(err))
		return Heuristic(message)
	}
	parsed, err := llm.DecodeJSON(text, validateAnalysis)
	if err != nil {
		a.logger.Warn("sentiment parse failed, using heuristic", zap.String("model", client.Model()), zap.Error(err))
		return Heuristic(message)
	}
	return fromLLM(parsed)
}

func fromLLM(p llmAnalysis) domain.SentimentAnalysis {
	out := domain.SentimentAnalysis{
		Level:              p.Level,
		Trend:              p.Trend,
		Indicators:         p.Indicators,
		PrimaryEmotion:     p.PrimaryEmotion,
		SecondaryEmotions:  p.SecondaryEmotions,
		ContextualInsights: p.ContextualInsights,
		RecommendedTone:    p.RecommendedTone,
	}
	if p.Score != nil {
		out.Score = clamp(*p.Score)
	}
	if out.Level == "" {
		out.Level = domain.SentimentNeutral
	}
	if !out.Trend.Valid() {
		out.Trend = domain.TrendStable
	}
	if out.Indicators == nil {
		out.Indicators = []string{}
	}
	if p.EmpathyNeeded != nil {
		out.EmpathyNeeded = *p.EmpathyNeeded
	}
	if p.EscalationRisk.Valid() {
		out.EscalationRisk = p.EscalationRisk
	}
	return out
}

// Heuristic scores the message against fixed lexicons. Trend is always stable
// since it only sees one message.
func Heuristic(message string) domain.SentimentAnalysis {
	pos := rules.MatchedWordPrefixes(message, positiveWords)
	neg := rules.MatchedWordPrefixes(message, negativeWords)

	score := clamp(float64(len(pos))*positiveWeight + float64(len(neg))*negativeWeight)
	// Keep two decimals so 0.3+0.3 reads as 0.6 in responses.
	score = math.Round(score*100) / 100

	indicators := make([]string, 0, len(pos)+len(neg))
	indicators = append(indicators, pos...)
	indicators = append(indicators, neg...)

	return domain.SentimentAnalysis{
		Level:         LevelForScore(score),
		Score:         score,
		Indicators:    indicators,
		Trend:         domain.TrendStable,
		EmpathyNeeded: score < empathyBelow,
	}
}

func LevelForScore(score float64) domain.SentimentLevel {
	switch {
	case score >= 0.3:
		return domain.SentimentPositive
	case score >= -0.1:
		return domain.SentimentNeutral
	case score >= -0.4:
		return domain.SentimentConcerned
	case score >= -0.7:
		return domain.SentimentFrustrated
	default:
		return domain.SentimentAngry
	}
}

func clamp(score float64) float64 {
	return math.Max(-1, math.Min(1, score))
}

func buildPrompt(message string, history []domain.Message) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}

	var b strings.Builder
	b.WriteString("You are an expert emotional intelligence analyzer for customer support conversations.\n\n")
	b.WriteString("Analyze the following customer support conversation and the latest customer message. Provide a detailed emotional analysis.\n\n")
	b.WriteString("CONVERSATION HISTORY:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nLATEST CUSTOMER MESSAGE:\n")
	fmt.Fprintf(&b, "%q\n\n", message)
	b.WriteString(`Analyze and respond with ONLY a JSON object (no markdown, no explanation):
{
    "level": "positive" | "neutral" | "concerned" | "frustrated" | "angry",
    "score": <number from -1.0 (very negative) to 1.0 (very positive)>,
    "primaryEmotion": "<main emotion: happy, grateful, confused, anxious, impatient, frustrated, angry, disappointed, hopeful, neutral>",
    "secondaryEmotions": ["<other detected emotions>"],
    "indicators": ["<specific phrases/signals that indicate the emotion>"],
    "trend": "improving" | "stable" | "declining",
    "empathyNeeded": <boolean>,
    "escalationRisk": "low" | "medium" | "high",
    "contextualInsights": "<brief insight about why the customer feels this way>",
    "recommendedTone": "<warm, professional, apologetic, reassuring, celebratory>"
}

ANALYSIS GUIDELINES:
- Consider sarcasm ("Oh great, another delay" is negative despite "great")
- Consider negation ("I'm not happy" is negative)
- Consider context (a returning customer with repeated issues is more frustrated)
- Each unanswered concern increases frustration
- Detect passive aggression and frustration masked by politeness`)
	return b.String()
}
