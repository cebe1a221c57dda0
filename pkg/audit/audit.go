// Package audit implements the Intervention Report sink (SPEC_FULL.md §6):
// the single append-only writer (guarded by one mutex, per §5's shared-
// resource rule) that produces simulation_log.csv, governance_audit.csv,
// governance_summary.json, traces/<agent_type>_traces.jsonl,
// reflection_log.jsonl, and config_snapshot.yaml.
package audit

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/WenyuChiou/WAGF-sub002/pkg/broker"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/reflection"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// Sink owns every audit output file for one experiment run. All writes go
// through mu, matching §5's "audit sink is a single append-only writer
// protected by a mutex".
type Sink struct {
	mu sync.Mutex
	dir string

	// RunID uniquely identifies this experiment run, the same way the
	// teacher's session/task packages stamp a uuid.NewString() identity on
	// creation. It is surfaced in config_snapshot.yaml and
	// governance_summary.json so two runs' audit trails are never confused.
	RunID string

	simLog     *os.File
	simWriter  *csv.Writer
	govLog     *os.File
	govWriter  *csv.Writer
	reflection *os.File

	traceFiles map[string]*os.File // keyed by agent type

	summary Summary
}

// Summary is the aggregate §7 end-of-run failure surface: counts of each
// outcome, per rule id, and per agent type, plus cache/LLM totals used for
// the operator-visible run report.
type Summary struct {
	OutcomeCounts   map[string]int `json:"outcome_counts"`
	RuleFireCounts  map[string]int `json:"rule_fire_counts"`
	AgentTypeCounts map[string]int `json:"agent_type_counts"`
	TotalDecisions  int            `json:"total_decisions"`
	TotalLLMCalls   int            `json:"total_llm_invocations"`
	CacheHits       int            `json:"cache_hits"`
	EffectErrors    int            `json:"effect_errors"`
}

func newSummary() Summary {
	return Summary{
		OutcomeCounts:   make(map[string]int),
		RuleFireCounts:  make(map[string]int),
		AgentTypeCounts: make(map[string]int),
	}
}

// New creates a Sink writing under dir, creating dir and dir/traces if
// necessary and writing CSV headers for fresh files.
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Join(dir, "traces"), 0o755); err != nil {
		return nil, fmt.Errorf("audit: creating output dir %q: %w", dir, err)
	}

	simLog, err := os.OpenFile(filepath.Join(dir, "simulation_log.csv"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening simulation_log.csv: %w", err)
	}
	simWriter := csv.NewWriter(simLog)
	if err := simWriter.Write([]string{
		"year", "agent_id", "agent_type", "proposed_skill", "final_skill", "outcome",
		"constructs", "cost", "state_snapshot_digest", "prompt_tokens", "completion_tokens",
	}); err != nil {
		return nil, fmt.Errorf("audit: writing simulation_log.csv header: %w", err)
	}

	govLog, err := os.OpenFile(filepath.Join(dir, "governance_audit.csv"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening governance_audit.csv: %w", err)
	}
	govWriter := csv.NewWriter(govLog)
	if err := govWriter.Write([]string{
		"year", "agent_id", "attempt", "rule_id", "severity", "valid", "reason", "suggested_alternatives",
	}); err != nil {
		return nil, fmt.Errorf("audit: writing governance_audit.csv header: %w", err)
	}

	reflectionLog, err := os.OpenFile(filepath.Join(dir, "reflection_log.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: opening reflection_log.jsonl: %w", err)
	}

	return &Sink{
		dir:        dir,
		RunID:      uuid.NewString(),
		simLog:     simLog,
		simWriter:  simWriter,
		govLog:     govLog,
		govWriter:  govWriter,
		reflection: reflectionLog,
		traceFiles: make(map[string]*os.File),
		summary:    newSummary(),
	}, nil
}

// StateDigest hashes a state snapshot's rendered form into a short digest
// for the simulation_log.csv column, so two runs can be diffed without
// carrying full state in the audit trail.
func StateDigest(rendered string) string {
	sum := sha256.Sum256([]byte(rendered))
	return hex.EncodeToString(sum[:8])
}

// WriteDecision appends one row per (year, agent) to simulation_log.csv
// and folds the report into the running Summary (§6, §7).
func (s *Sink) WriteDecision(report broker.InterventionReport, cost float64, stateDigest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	constructs := make([]string, 0, len(report.InitialProposal.Constructs))
	for k, v := range report.InitialProposal.Constructs {
		constructs = append(constructs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(constructs)

	row := []string{
		strconv.FormatInt(report.Year, 10),
		report.AgentID,
		report.AgentType,
		report.InitialProposal.SkillID,
		report.FinalSkill,
		string(report.Outcome),
		joinComma(constructs),
		strconv.FormatFloat(cost, 'f', -1, 64),
		stateDigest,
		strconv.Itoa(report.PromptTokens),
		strconv.Itoa(report.CompletionTokens),
	}
	if err := s.simWriter.Write(row); err != nil {
		return fmt.Errorf("audit: writing simulation_log row: %w", err)
	}
	s.simWriter.Flush()

	s.summary.TotalDecisions++
	s.summary.OutcomeCounts[string(report.Outcome)]++
	s.summary.AgentTypeCounts[report.AgentType]++
	for _, attempt := range report.Attempts {
		if attempt.CacheReplay {
			s.summary.CacheHits++
		} else {
			s.summary.TotalLLMCalls++
		}
		for _, vr := range attempt.ValidationResults {
			if vr.Severity == validator.SeverityError {
				s.summary.RuleFireCounts[vr.RuleID]++
			}
		}
	}

	return s.simWriter.Error()
}

// WriteGovernanceAudit appends one governance_audit.csv row per
// (attempt, validation result) in report (§6).
func (s *Sink) WriteGovernanceAudit(report broker.InterventionReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, attempt := range report.Attempts {
		if len(attempt.ValidationResults) == 0 {
			continue
		}
		for _, vr := range attempt.ValidationResults {
			row := []string{
				strconv.FormatInt(report.Year, 10),
				report.AgentID,
				strconv.Itoa(attempt.Attempt),
				vr.RuleID,
				string(vr.Severity),
				strconv.FormatBool(vr.Valid),
				vr.Reason,
				joinComma(vr.SuggestedAlternatives),
			}
			if err := s.govWriter.Write(row); err != nil {
				return fmt.Errorf("audit: writing governance_audit row: %w", err)
			}
		}
	}
	s.govWriter.Flush()
	return s.govWriter.Error()
}

// traceRecord is one line of traces/<agent_type>_traces.jsonl: the full
// prompt, raw LLM text, parsed proposal, and validation results for one
// attempt, for offline re-evaluation (§6).
type traceRecord struct {
	Year              int64                       `json:"year"`
	AgentID           string                      `json:"agent_id"`
	Attempt           int                         `json:"attempt"`
	Prompt            string                      `json:"prompt"`
	RawText           string                      `json:"raw_text"`
	Proposal          llmadapter.SkillProposal    `json:"proposal"`
	ValidationResults []validator.ValidationResult `json:"validation_results"`
}

// WriteTrace appends one line to traces/<agentType>_traces.jsonl, opening
// the per-agent-type file on first use.
func (s *Sink) WriteTrace(agentType string, record traceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.traceFiles[agentType]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(s.dir, "traces", agentType+"_traces.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("audit: opening trace file for %q: %w", agentType, err)
		}
		s.traceFiles[agentType] = f
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: marshaling trace record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing trace record: %w", err)
	}
	return nil
}

// TraceRecordsFromReport emits one traceRecord per attempt in report,
// calling WriteTrace for each (the runner's post_step hook calls this once
// per decision).
func (s *Sink) TraceRecordsFromReport(agentType string, report broker.InterventionReport) error {
	for _, attempt := range report.Attempts {
		rec := traceRecord{
			Year:              report.Year,
			AgentID:           report.AgentID,
			Attempt:           attempt.Attempt,
			Prompt:            attempt.Prompt,
			RawText:           attempt.Proposal.RawText,
			Proposal:          attempt.Proposal,
			ValidationResults: attempt.ValidationResults,
		}
		if err := s.WriteTrace(agentType, rec); err != nil {
			return err
		}
	}
	return nil
}

// reflectionRecord is one reflection_log.jsonl line (§6).
type reflectionRecord struct {
	AgentID string             `json:"agent_id"`
	Year    int64              `json:"year"`
	Insight reflection.Insight `json:"insight"`
}

// WriteReflection appends one line to reflection_log.jsonl.
func (s *Sink) WriteReflection(agentID string, insight reflection.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(reflectionRecord{AgentID: agentID, Year: insight.YearCreated, Insight: insight})
	if err != nil {
		return fmt.Errorf("audit: marshaling reflection record: %w", err)
	}
	if _, err := s.reflection.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing reflection record: %w", err)
	}
	return nil
}

// WriteConfigSnapshot marshals snapshot (the merged effective
// configuration, including the resolved seed) to config_snapshot.yaml
// (§6).
func (s *Sink) WriteConfigSnapshot(snapshot interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("audit: marshaling config snapshot: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "config_snapshot.yaml"), data, 0o644)
}

// NoteEffectError records an Effect error (§7) in the running summary
// without aborting the run.
func (s *Sink) NoteEffectError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.EffectErrors++
}

// CurrentSummary returns a copy of the current aggregate counts.
func (s *Sink) CurrentSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSummary(s.summary)
}

func cloneSummary(in Summary) Summary {
	out := newSummary()
	out.TotalDecisions = in.TotalDecisions
	out.TotalLLMCalls = in.TotalLLMCalls
	out.CacheHits = in.CacheHits
	out.EffectErrors = in.EffectErrors
	for k, v := range in.OutcomeCounts {
		out.OutcomeCounts[k] = v
	}
	for k, v := range in.RuleFireCounts {
		out.RuleFireCounts[k] = v
	}
	for k, v := range in.AgentTypeCounts {
		out.AgentTypeCounts[k] = v
	}
	return out
}

// Finalize writes governance_summary.json and closes every open file
// (§4.8's finalize hook: "flush audit files"). Finalize is idempotent-safe
// to call once; calling it twice returns an error from the OS on the
// second file close, which callers should treat as already-finalized.
func (s *Sink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.summary, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshaling governance_summary.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "governance_summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("audit: writing governance_summary.json: %w", err)
	}

	s.simWriter.Flush()
	s.govWriter.Flush()

	var errs []error
	for _, f := range []*os.File{s.simLog, s.govLog, s.reflection} {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range s.traceFiles {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("audit: closing files: %v", errs)
	}
	return nil
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "; "
		}
		out += it
	}
	return out
}
