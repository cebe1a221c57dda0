package contextbuilder

import (
	"fmt"
	"strings"
)

const truncationMarker = "\n...[truncated to fit token budget]...\n"

// Builder assembles the nine-stage prompt pipeline (§4.3) and manages its
// token budget. A Builder is stateless and safe for concurrent use; all
// per-call data flows through BuildInput.
type Builder struct {
	counter *TokenCounter
}

// NewBuilder creates a Builder whose token counting is aware of modelName
// (falling back to the ⌈len/4⌉ estimator when no tokenizer encoding is
// available for it).
func NewBuilder(modelName string) *Builder {
	return &Builder{counter: NewTokenCounter(modelName)}
}

// Output is the Builder's result: the assembled prompt string and the
// (possibly shuffled) skill presentation order the caller must keep in
// sync with the parser's skillIDsInOrder argument (tier 5 of §4.4).
type Output struct {
	Prompt          string
	SkillsInOrder   []SkillPresentation
	Truncated       bool
	PromptTokens    int
}

// Build renders in.BuildInput into one prompt string, applying token-budget
// degradation if needed. Build never returns an error for an over-budget
// prompt — graceful degradation is mandatory (§4.3); a non-nil error only
// signals a malformed TokenBudget, which is a config error surfaced before
// any LLM call is attempted.
func (b *Builder) Build(in BuildInput) (Output, error) {
	if err := in.Budget.Validate(); err != nil {
		return Output{}, err
	}

	shuffled := shuffleSkills(in.Skills, in.ShuffleSeedAgent, in.ShuffleSeedYear)
	social := in.Social

	for attempt := 0; attempt < 5; attempt++ {
		prompt := render(in, social, shuffled)
		tokens := b.counter.Count(prompt)

		if tokens <= in.Budget.Total {
			return Output{Prompt: prompt, SkillsInOrder: shuffled, PromptTokens: tokens}, nil
		}

		switch attempt {
		case 0:
			social = trimSocial(social, 3, -1)
		case 1:
			social = trimSocial(social, 3, 2)
		case 2:
			in.Environment.Institutional = truncateLines(in.Environment.Institutional, 1)
		default:
			return Output{
				Prompt:        hardTruncate(prompt, in.Budget.Total, b.counter),
				SkillsInOrder: shuffled,
				Truncated:     true,
				PromptTokens:  in.Budget.Total,
			}, nil
		}
	}

	// Unreachable in practice (the default branch above always returns),
	// kept so the compiler sees every path return.
	prompt := render(in, social, shuffled)
	return Output{Prompt: prompt, SkillsInOrder: shuffled, PromptTokens: b.counter.Count(prompt)}, nil
}

// trimSocial trims gossip to gossipMax items and, if newsMax >= 0, global
// news to newsMax items (the fixed degradation order: gossip first, then
// news, §4.3).
func trimSocial(s SocialObservation, gossipMax, newsMax int) SocialObservation {
	if len(s.Gossip) > gossipMax {
		s.Gossip = s.Gossip[:gossipMax]
	}
	if newsMax >= 0 && len(s.GlobalNews) > newsMax {
		s.GlobalNews = s.GlobalNews[:newsMax]
	}
	return s
}

func truncateLines(lines []string, keep int) []string {
	if len(lines) <= keep {
		return lines
	}
	return lines[:keep]
}

// hardTruncate is the last-resort degradation step: truncate the assembled
// string to fit the token budget (approximated via character count) and
// append an explicit marker, rather than raising a runtime error.
func hardTruncate(prompt string, totalTokens int, counter *TokenCounter) string {
	if totalTokens <= 0 {
		return truncationMarker
	}
	// Cut to totalTokens*4 characters, then back off once to the last line
	// break, and append the marker. The result is sized by that estimate,
	// not re-counted; a prompt within that many characters is returned
	// unchanged, without the marker.
	budgetChars := totalTokens * 4
	if budgetChars >= len(prompt) {
		return prompt
	}
	truncated := prompt[:budgetChars]
	if idx := strings.LastIndexByte(truncated, '\n'); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + truncationMarker
}

func render(in BuildInput, social SocialObservation, skills []SkillPresentation) string {
	var sb strings.Builder

	// (1) system prompt
	if in.SystemPrompt != "" {
		sb.WriteString(in.SystemPrompt)
		sb.WriteString("\n\n")
	}

	// (2) agent attributes — physical/priority fields first (§4.3)
	sb.WriteString("## Agent\n")
	fmt.Fprintf(&sb, "id: %s, type: %s\n", in.Attributes.AgentID, in.Attributes.Type)
	for _, k := range sortedKeys(in.Attributes.Physical) {
		fmt.Fprintf(&sb, "%s: %s\n", k, in.Attributes.Physical[k])
	}
	for _, k := range sortedKeys(in.Attributes.Social) {
		fmt.Fprintf(&sb, "%s: %s\n", k, in.Attributes.Social[k])
	}
	sb.WriteString("\n")

	// (3) environmental perception
	if len(in.Environment.Global) > 0 || len(in.Environment.Spatial) > 0 || len(in.Environment.Institutional) > 0 {
		sb.WriteString("## Environment\n")
		writeLines(&sb, "global", in.Environment.Global)
		writeLines(&sb, "spatial", in.Environment.Spatial)
		writeLines(&sb, "institutional", in.Environment.Institutional)
		sb.WriteString("\n")
	}

	// (4) events
	if len(in.Events) > 0 {
		sb.WriteString("## Events\n")
		for _, e := range in.Events {
			sb.WriteString("- ")
			sb.WriteString(e.Description)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// (5) observable metrics
	if len(in.Metrics) > 0 {
		sb.WriteString("## Metrics\n")
		for _, m := range in.Metrics {
			fmt.Fprintf(&sb, "%s: %s\n", m.Name, m.Value)
		}
		sb.WriteString("\n")
	}

	// (6) social observation — passive only
	if len(social.VisibleAttributes)+len(social.VisibleActions)+len(social.AggregateMetrics)+len(social.Gossip)+len(social.GlobalNews) > 0 {
		sb.WriteString("## Social (observed, not messaged)\n")
		writeLines(&sb, "visible attributes", social.VisibleAttributes)
		writeLines(&sb, "visible actions", social.VisibleActions)
		writeLines(&sb, "aggregate metrics", social.AggregateMetrics)
		writeLines(&sb, "gossip", social.Gossip)
		writeLines(&sb, "news", social.GlobalNews)
		sb.WriteString("\n")
	}

	// (7) memory (already stratified upstream by the caller)
	if len(in.MemoryItems) > 0 {
		sb.WriteString("## Memory\n")
		for _, m := range in.MemoryItems {
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	// construct anchors (inline semantic anchoring, §4.3): "TP=M (Medium)"
	if len(in.Constructs) > 0 {
		sb.WriteString("## Constructs\n")
		for _, c := range in.Constructs {
			fmt.Fprintf(&sb, "%s=%s (%s)\n", c.Name, c.Label, c.Definition)
		}
		sb.WriteString("\n")
	}

	// REPROMPT banner, if this is a retry
	if in.Replay != nil {
		sb.WriteString("## Retry guidance\n")
		if in.Replay.ParseFailure {
			sb.WriteString("your previous reply could not be parsed. Respond using the documented format.\n")
		}
		if len(in.Replay.ViolatedRules) > 0 {
			fmt.Fprintf(&sb, "the following rule(s) were violated: %s\n", strings.Join(in.Replay.ViolatedRules, ", "))
		}
		if len(in.Replay.RemainingValidSkills) > 0 {
			fmt.Fprintf(&sb, "the following actions remain valid: %s\n", strings.Join(in.Replay.RemainingValidSkills, ", "))
		}
		sb.WriteString("\n")
	}

	// (8) available skills, shuffled
	if len(skills) > 0 {
		sb.WriteString("## Available actions\n")
		for _, s := range skills {
			fmt.Fprintf(&sb, "- %s: %s\n", s.ID, s.Description)
		}
		sb.WriteString("\n")
	}

	// (9) response-format instructions
	if in.ResponseFormat != "" {
		sb.WriteString(in.ResponseFormat)
	}

	return sb.String()
}

func writeLines(sb *strings.Builder, label string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, strings.Join(lines, "; "))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Small maps, simple insertion sort keeps this allocation-free enough
	// and the builder isn't a hot path.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
