package domain

type SentimentLevel string

const (
	SentimentPositive   SentimentLevel = "positive"
	SentimentNeutral    SentimentLevel = "neutral"
	SentimentConcerned  SentimentLevel = "concerned"
	SentimentFrustrated SentimentLevel = "frustrated"
	SentimentAngry      SentimentLevel = "angry"
)

func (l SentimentLevel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNeutral, SentimentConcerned, SentimentFrustrated, SentimentAngry:
		return true
	}
	return false
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

func (t Trend) Valid() bool {
	return t == TrendImproving || t == TrendStable || t == TrendDeclining
}

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// SentimentAnalysis is the emotional read of the latest customer message.
// The extended fields are only filled by the model-backed analyzer.
type SentimentAnalysis struct {
	Level         SentimentLevel `json:"level"`
	Score         float64        `json:"score"`
	Indicators    []string       `json:"indicators"`
	Trend         Trend          `json:"trend"`
	EmpathyNeeded bool           `json:"empathyNeeded"`

	PrimaryEmotion     string   `json:"primaryEmotion,omitempty"`
	SecondaryEmotions  []string `json:"secondaryEmotions,omitempty"`
	EscalationRisk     Risk     `json:"escalationRisk,omitempty"`
	ContextualInsights string   `json:"contextualInsights,omitempty"`
	RecommendedTone    string   `json:"recommendedTone,omitempty"`
}

type ActionType string

const (
	ActionRefund           ActionType = "refund"
	ActionDiscount         ActionType = "discount"
	ActionReplacement      ActionType = "replacement"
	ActionExpediteShipping ActionType = "expedite_shipping"
	ActionCallback         ActionType = "callback"
	ActionManualReview     ActionType = "manual_review"
)

var ActionTypes = []ActionType{
	ActionRefund,
	ActionDiscount,
	ActionReplacement,
	ActionExpediteShipping,
	ActionCallback,
	ActionManualReview,
}

func ParseActionType(s string) (ActionType, bool) {
	for _, t := range ActionTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

type QuickAction struct {
	ID             string     `json:"id"`
	Type           ActionType `json:"type"`
	Label          string     `json:"label"`
	Description    string     `json:"description"`
	Eligible       bool       `json:"eligible"`
	Reason         string     `json:"reason,omitempty"`
	EstimatedValue *float64   `json:"estimatedValue,omitempty"`
	AutoApproved   bool       `json:"autoApproved"`
}

type ResolutionSuggestion struct {
	PrimaryAction      QuickAction   `json:"primaryAction"`
	AlternativeActions []QuickAction `json:"alternativeActions"`
	Confidence         float64       `json:"confidence"`
	Reasoning          string        `json:"reasoning"`
}

type ProactiveAlert struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Priority        Priority `json:"priority"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	SuggestedAction string   `json:"suggestedAction"`
	RelatedOrderID  string   `json:"relatedOrderId,omitempty"`
}

type SourceCitation struct {
	ArticleID      string  `json:"articleId"`
	ArticleTitle   string  `json:"articleTitle"`
	RelevanceScore float64 `json:"relevanceScore"`
	Excerpt        string  `json:"excerpt"`
}
