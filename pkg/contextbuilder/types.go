package contextbuilder

// AgentAttributes is stage (2): the agent's own state, rendered with
// priority ordering so physical-reality fields precede social/preference
// fields (§4.3's anchoring rule on recency bias).
type AgentAttributes struct {
	AgentID  string
	Type     string
	Physical map[string]string // e.g. "elevated: true", "funds: 5000" — rendered first
	Social   map[string]string // e.g. "marginalized: false" — rendered after Physical
}

// EnvironmentalPerception is stage (3): global, spatial, and institutional
// observable state.
type EnvironmentalPerception struct {
	Global        []string
	Spatial       []string
	Institutional []string
}

// Event is one stage-(4) observable event (e.g. "a flood occurred this
// year").
type Event struct {
	Description string
}

// ObservableMetric is a stage-(5) named numeric or textual signal (e.g.
// "community flood risk index: 0.62").
type ObservableMetric struct {
	Name  string
	Value string
}

// SocialObservation is stage (6): passive observation only — visible
// attributes, visible actions, and aggregate metrics of other agents. The
// core contract forbids active messaging here (§4.3).
type SocialObservation struct {
	VisibleAttributes []string
	VisibleActions    []string
	AggregateMetrics  []string
	Gossip            []string // trimmed to 3 items under degradation
	GlobalNews        []string // trimmed to 2 items under degradation
}

// ConstructAnchor renders one construct as "NAME=LABEL (Definition)" per the
// inline semantic anchoring rule (§4.3): small models lose letter-to-
// definition binding over long prompts, so labels are never emitted bare.
type ConstructAnchor struct {
	Name       string
	Label      string
	Definition string
}

// SkillPresentation is one entry in stage (8)'s shuffled skill list.
type SkillPresentation struct {
	ID          string
	Description string
}

// ReplayBanner is the extra block injected on REPROMPT (§4.6): it names the
// violated rule(s) and lists suggested alternatives verbatim, phrased
// declaratively rather than prescriptively.
type ReplayBanner struct {
	ViolatedRules        []string
	RemainingValidSkills []string
	ParseFailure         bool // true for a re-prompt after an UNPARSEABLE attempt
}

// BuildInput is everything the Builder needs to assemble one prompt.
type BuildInput struct {
	SystemPrompt      string
	Attributes        AgentAttributes
	Environment       EnvironmentalPerception
	Events            []Event
	Metrics           []ObservableMetric
	Social            SocialObservation
	MemoryItems       []string // already retrieved (optionally stratified) by the caller
	Constructs        []ConstructAnchor
	Skills            []SkillPresentation
	ResponseFormat    string
	Replay            *ReplayBanner
	ShuffleSeedAgent  string
	ShuffleSeedYear   int64
	Budget            TokenBudget
	ModelName         string
}
