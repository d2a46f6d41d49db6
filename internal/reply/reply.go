// Package reply drafts the assistant's answer to a customer message and
// estimates how much to trust it.
package reply

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/integrations/llm"
	"supportbot/internal/knowledge"
	"supportbot/internal/rules"
)

const (
	historyTurns    = 6
	maxArticles     = 3
	maxSuggestions  = 3
	longMessageRune = 200

	HumanSuggestion = "Connect me with a human agent"

	degradedContent    = "I apologize, but I'm experiencing technical difficulties. Let me connect you with a human agent who can assist you right away."
	degradedConfidence = 0.3
)

const systemPrompt = `You are ShopAI, an empathetic and intelligent customer support assistant for an e-commerce platform.

CORE CAPABILITIES:
1. Help customers with orders, returns, payments, and inquiries
2. Detect and respond to emotional cues with appropriate empathy
3. Proactively identify and address potential issues
4. Suggest concrete resolutions, not just information

EMOTIONAL INTELLIGENCE GUIDELINES:
- If customer seems frustrated: Lead with empathy, acknowledge their feelings, then solve
- If customer is confused: Be patient, use simple language, offer step-by-step guidance
- If customer is happy: Match their energy, thank them for positive feedback
- If customer is angry: De-escalate first, apologize sincerely, offer immediate resolution

RESPONSE STYLE:
- Keep responses concise (2-4 sentences max)
- Always acknowledge the customer's concern FIRST
- Offer specific next steps or resolutions
- When possible, propose concrete actions (refund, discount, replacement)

You have access to customer order information and a knowledge base of FAQs.`

var (
	uncertaintyPhrases = []string{"not sure", "might", "possibly", "i think", "may not"}
	handoffWords       = []string{"human", "specialist"}
	orderWords         = []string{"order", "track"}
	returnWords        = []string{"return", "refund"}
)

var errEmptyReply = errors.New("empty reply from model")

// Searcher is the knowledge lookup the generator grounds replies on.
type Searcher interface {
	Search(query string, limit int) []knowledge.Match
}

type Reply struct {
	Content            string
	ConfidenceScore    float64
	SuggestedResponses []string
	// Matches are the articles placed in the prompt, reused for citations.
	Matches []knowledge.Match
	// Degraded is set when the model could not be reached and the canned
	// apology was returned instead.
	Degraded bool
}

type Generator struct {
	kb     Searcher
	logger *zap.Logger
}

func NewGenerator(kb Searcher, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{kb: kb, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, client llm.Client, message string, history []domain.Message, customer *domain.CustomerContext) Reply {
	var matches []knowledge.Match
	if g.kb != nil {
		matches = g.kb.Search(message, maxArticles)
	}

	if client == nil {
		return Degraded(matches)
	}
	text, err := client.Generate(ctx, buildPrompt(message, history, customer, matches))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyReply
	}
	if err != nil {
		g.logger.Warn("reply generation failed", zap.String("model", client.Model()), zap.Error(err))
		return Degraded(matches)
	}

	text = strings.TrimSpace(text)
	return Reply{
		Content:            text,
		ConfidenceScore:    Confidence(text, message, len(matches)),
		SuggestedResponses: Suggestions(message),
		Matches:            matches,
	}
}

// Degraded is the reply used whenever the model is unavailable.
func Degraded(matches []knowledge.Match) Reply {
	return Reply{
		Content:            degradedContent,
		ConfidenceScore:    degradedConfidence,
		SuggestedResponses: []string{HumanSuggestion},
		Matches:            matches,
		Degraded:           true,
	}
}

// Confidence scores a reply heuristically. The result is always in [0.1, 0.95].
func Confidence(reply, message string, articles int) float64 {
	score := 0.7
	if articles > 0 {
		score += 0.1
	}
	score -= 0.1 * float64(len(rules.MatchedSubstrings(reply, uncertaintyPhrases)))
	if len([]rune(message)) > longMessageRune {
		score -= 0.1
	}
	if rules.ContainsAny(reply, handoffWords) {
		score -= 0.15
	}
	score = math.Round(score*100) / 100
	return math.Max(0.1, math.Min(0.95, score))
}

// Suggestions returns up to three quick replies for the customer, always
// ending with the offer of a human agent.
func Suggestions(message string) []string {
	var out []string
	if rules.ContainsAny(message, orderWords) {
		out = append(out, "Where is my order now?", "Send me the tracking link")
	}
	if rules.ContainsAny(message, returnWords) {
		out = append(out, "How do I start a return?", "What's your refund policy?")
	}
	if len(out) == 0 {
		out = append(out, "Is there anything else I can help with?", "Thank you for your help!")
	}
	out = append(out, HumanSuggestion)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func buildPrompt(message string, history []domain.Message, customer *domain.CustomerContext, matches []knowledge.Match) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")

	if customer != nil {
		email := customer.Customer.Email
		if email == "" {
			email = "Not provided"
		}
		fmt.Fprintf(&b, "Customer Information:\n- Name: %s\n- Email: %s\n", customer.Customer.Name, email)
		if len(customer.RecentOrders) > 0 {
			b.WriteString("- Recent Orders:\n")
			for _, o := range customer.RecentOrders {
				fmt.Fprintf(&b, "  • Order %s: %s ($%.2f)\n", o.ID, o.Status, o.Amount)
			}
		}
		b.WriteString("\n")
	}

	if len(matches) > 0 {
		b.WriteString("Relevant Knowledge Base Articles:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- %s: %s\n", m.Article.Title, m.Article.Content)
		}
		b.WriteString("\n")
	}

	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		speaker := "AI"
		if m.Role == domain.RoleCustomer {
			speaker = "Customer"
		}
		lines = append(lines, speaker+": "+m.Content)
	}

	fmt.Fprintf(&b, "\nPrevious conversation:\n%s\n\nCustomer: %s\n\n", strings.Join(lines, "\n"), message)
	b.WriteString("Respond helpfully and concisely. If the issue requires human intervention (complex disputes, large refunds, or frustrated customers), mention that you'll connect them with a specialist.")
	return b.String()
}
