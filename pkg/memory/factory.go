package memory

import "fmt"

// Kind selects which Engine implementation an experiment binds.
type Kind string

const (
	KindWindow       Kind = "window"
	KindImportance   Kind = "importance"
	KindHumanCentric Kind = "humancentric"
)

// Config is the YAML-facing configuration for --memory-engine (§6).
type Config struct {
	Kind              Kind                `yaml:"kind"`
	WindowSize        int                 `yaml:"window_size,omitempty"`
	EmotionWeights    map[Emotion]float64 `yaml:"emotion_weights,omitempty"`
	SourceWeights     map[Source]float64  `yaml:"source_weights,omitempty"`
	DecayRate         float64             `yaml:"decay_rate,omitempty"`
	ConsolidationThr  float64             `yaml:"consolidation_threshold,omitempty"`
	WorkingCapacity   int                 `yaml:"working_capacity,omitempty"`
	RecencyWeight     float64             `yaml:"recency_weight,omitempty"`
	ImportanceWeight  float64             `yaml:"importance_weight,omitempty"`
	ContextWeight     float64             `yaml:"context_weight,omitempty"`
}

// SetDefaults applies §4.2's default weights/thresholds to zero fields.
func (c *Config) SetDefaults() {
	if c.Kind == "" {
		c.Kind = KindHumanCentric
	}
	if c.WindowSize == 0 {
		c.WindowSize = 10
	}
	if c.DecayRate == 0 {
		c.DecayRate = DefaultDecayLambda
	}
	if c.ConsolidationThr == 0 {
		c.ConsolidationThr = DefaultConsolidation
	}
	if c.WorkingCapacity == 0 {
		c.WorkingCapacity = DefaultWorkingCapacity
	}
	if c.RecencyWeight == 0 && c.ImportanceWeight == 0 && c.ContextWeight == 0 {
		c.RecencyWeight = DefaultRecencyWeight
		c.ImportanceWeight = DefaultImportanceWeight
		c.ContextWeight = DefaultContextWeight
	}
}

// New builds the Engine implementation named by cfg.Kind. Exactly one
// implementation is bound per experiment (§4.2).
func New(cfg Config) (Engine, error) {
	cfg.SetDefaults()

	switch cfg.Kind {
	case KindWindow:
		return NewWindowEngine(cfg.WindowSize), nil
	case KindImportance:
		return NewImportanceEngine(cfg.EmotionWeights, cfg.SourceWeights), nil
	case KindHumanCentric:
		return NewHumanCentricEngine(
			cfg.EmotionWeights,
			cfg.SourceWeights,
			WithWeights(HumanCentricWeights{Recency: cfg.RecencyWeight, Importance: cfg.ImportanceWeight, Context: cfg.ContextWeight}),
			WithDecayLambda(cfg.DecayRate),
			WithConsolidationThreshold(cfg.ConsolidationThr),
			WithWorkingCapacity(cfg.WorkingCapacity),
		), nil
	default:
		return nil, fmt.Errorf("memory: unknown engine kind %q", cfg.Kind)
	}
}
