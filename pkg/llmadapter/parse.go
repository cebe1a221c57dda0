package llmadapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// jsonProposal is the wire shape the strict/repaired JSON tiers decode into.
type jsonProposal struct {
	Skill      string            `json:"skill"`
	Reasoning  string            `json:"reasoning"`
	Constructs map[string]string `json:"constructs"`
	Confidence *float64          `json:"confidence"`
}

// ParsingConfig is the subset of agenttype.ParsingConfig the parser needs,
// duplicated here (rather than imported) to keep llmadapter free of a
// dependency on agenttype; the broker passes the fields through.
type ParsingConfig struct {
	DecisionKeywords []string
	Synonyms         map[string][]string
	AliasMap         map[string]string
	Normalization    map[string]string
	ProximityWindow  int
}

// Parse runs the five ordered tiers (§4.4) against cleanedText, stopping at
// the first tier that succeeds. skillIDsInOrder is the presentation order
// used by the last-resort digit tier to resolve a lone integer into a skill.
func Parse(cleanedText string, cfg ParsingConfig, skillIDsInOrder []string) SkillProposal {
	if cfg.ProximityWindow <= 0 {
		cfg.ProximityWindow = 35
	}

	if p, ok := parseStrictJSON(cleanedText); ok {
		return normalize(p, cfg, "strict_json")
	}
	if p, ok := parseRepairedJSON(cleanedText); ok {
		return normalize(p, cfg, "repaired_json")
	}
	if p, ok := parseKeyValueRegex(cleanedText, cfg); ok {
		return normalize(p, cfg, "keyvalue_regex")
	}
	if p, ok := parseProximity(cleanedText, cfg); ok {
		return normalize(p, cfg, "proximity")
	}
	if p, ok := parseLastResortDigit(cleanedText, skillIDsInOrder); ok {
		return normalize(p, cfg, "last_resort_digit")
	}

	return SkillProposal{RawText: cleanedText, Unparseable: true, ParseTier: "none"}
}

// --- Tier 1: strict JSON between documented sentinels -----------------

func parseStrictJSON(text string) (jsonProposal, bool) {
	body, ok := ExtractBetweenSentinels(text, DefaultSentinels)
	if !ok {
		// Some models omit sentinels but still emit a bare JSON object.
		body = strings.TrimSpace(text)
	}
	var p jsonProposal
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return jsonProposal{}, false
	}
	if p.Skill == "" {
		return jsonProposal{}, false
	}
	return p, true
}

// --- Tier 2: repaired JSON (missing brace/quote, trailing commas) -----

var trailingCommaRE = regexp.MustCompile(`,(\s*[}\]])`)

func parseRepairedJSON(text string) (jsonProposal, bool) {
	body, ok := ExtractBetweenSentinels(text, DefaultSentinels)
	if !ok {
		body = strings.TrimSpace(text)
	}
	repaired := repairJSON(body)

	var p jsonProposal
	if err := json.Unmarshal([]byte(repaired), &p); err != nil {
		return jsonProposal{}, false
	}
	if p.Skill == "" {
		return jsonProposal{}, false
	}
	return p, true
}

func repairJSON(body string) string {
	body = trailingCommaRE.ReplaceAllString(body, "$1")

	opens := strings.Count(body, "{")
	closes := strings.Count(body, "}")
	for i := 0; i < opens-closes; i++ {
		body += "}"
	}

	quotes := strings.Count(body, `"`)
	if quotes%2 != 0 {
		body += `"`
		// Re-balance braces in case the missing quote swallowed a closer.
		opens = strings.Count(body, "{")
		closes = strings.Count(body, "}")
		for i := 0; i < opens-closes; i++ {
			body += "}"
		}
	}
	return body
}

// --- Tier 3: key-value regex over decision keyword + construct synonyms ---

func parseKeyValueRegex(text string, cfg ParsingConfig) (jsonProposal, bool) {
	skill := findAfterKeywords(text, cfg.DecisionKeywords)
	if skill == "" {
		return jsonProposal{}, false
	}

	constructs := map[string]string{}
	for canonical, synonyms := range cfg.Synonyms {
		for _, syn := range synonyms {
			re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(syn) + `\s*[:=]\s*([A-Za-z ]{1,12})`)
			if m := re.FindStringSubmatch(text); m != nil {
				constructs[canonical] = strings.TrimSpace(m[1])
				break
			}
		}
	}

	return jsonProposal{Skill: skill, Reasoning: text, Constructs: constructs}, true
}

// findAfterKeywords looks for a "key: value" style match immediately after
// one of keywords. A keyword that already ends in a key marker (":" or "=",
// e.g. "decision:") accepts the value directly; a bare natural-language
// keyword (e.g. "I will choose") requires an explicit separator, so free-form
// prose falls through to the proximity tier instead of being claimed here.
func findAfterKeywords(text string, keywords []string) string {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		idx := strings.Index(lower, strings.ToLower(kw))
		if idx < 0 {
			continue
		}
		rest := text[idx+len(kw):]
		trimmedKw := strings.TrimSpace(kw)
		var re *regexp.Regexp
		if strings.HasSuffix(trimmedKw, ":") || strings.HasSuffix(trimmedKw, "=") {
			re = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)`)
		} else {
			re = regexp.MustCompile(`^\s*[:=\-]\s*([A-Za-z_][A-Za-z0-9_]*)`)
		}
		if m := re.FindStringSubmatch(rest); m != nil {
			return m[1]
		}
	}
	return ""
}

// --- Tier 4: proximity extraction around a decision keyword -----------

func parseProximity(text string, cfg ParsingConfig) (jsonProposal, bool) {
	lower := strings.ToLower(text)
	for _, kw := range cfg.DecisionKeywords {
		idx := strings.Index(lower, strings.ToLower(kw))
		if idx < 0 {
			continue
		}
		anchor := idx + len(kw)
		start := idx - cfg.ProximityWindow
		if start < 0 {
			start = 0
		}
		end := anchor + cfg.ProximityWindow
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		tokenRE := regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)
		locs := tokenRE.FindAllStringIndex(window, -1)
		keywordLower := strings.ToLower(strings.Trim(kw, " :-"))

		bestDist := -1
		bestTok := ""
		for _, loc := range locs {
			tok := window[loc[0]:loc[1]]
			if strings.ToLower(tok) == keywordLower {
				continue
			}
			tokPos := start + loc[0]
			dist := tokPos - anchor
			if dist < 0 {
				dist = -dist
			}
			if bestDist == -1 || dist < bestDist {
				bestDist = dist
				bestTok = tok
			}
		}
		if bestTok != "" {
			return jsonProposal{Skill: bestTok, Reasoning: window}, true
		}
	}
	return jsonProposal{}, false
}

// --- Tier 5: last-resort digit, treated as an index into the skill list ---

var loneIntegerRE = regexp.MustCompile(`\b(\d{1,3})\b`)

func parseLastResortDigit(text string, skillIDsInOrder []string) (jsonProposal, bool) {
	m := loneIntegerRE.FindStringSubmatch(text)
	if m == nil {
		return jsonProposal{}, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 0 || idx >= len(skillIDsInOrder) {
		return jsonProposal{}, false
	}
	return jsonProposal{Skill: skillIDsInOrder[idx], Reasoning: text}, true
}

// --- Normalization: alias map + severity normalization -----------------

func normalize(p jsonProposal, cfg ParsingConfig, tier string) SkillProposal {
	skillID := p.Skill
	if alias, ok := cfg.AliasMap[strings.ToUpper(skillID)]; ok {
		skillID = alias
	} else if alias, ok := cfg.AliasMap[skillID]; ok {
		skillID = alias
	}

	constructs := make(map[string]ConstructLabel, len(p.Constructs))
	for construct, raw := range p.Constructs {
		constructs[construct] = normalizeLabel(raw, cfg.Normalization)
	}

	var confidence *float64
	if p.Confidence != nil {
		c := *p.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		confidence = &c
	}

	return SkillProposal{
		SkillID:    skillID,
		Reasoning:  p.Reasoning,
		Constructs: constructs,
		Confidence: confidence,
		ParseTier:  tier,
	}
}

func normalizeLabel(raw string, normalization map[string]string) ConstructLabel {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)
	switch upper {
	case "VL", "L", "M", "H", "VH":
		return ConstructLabel(upper)
	}
	if canon, ok := normalization[strings.ToLower(trimmed)]; ok {
		return ConstructLabel(strings.ToUpper(canon))
	}
	return ConstructLabel(upper)
}

// FormatProposal renders a proposal back into the wire JSON shape, wrapped
// in the documented sentinels. Used by tests asserting adapter
// self-consistency (R1: Parse(Format(proposal)) == proposal).
func FormatProposal(p SkillProposal) string {
	constructs := make(map[string]string, len(p.Constructs))
	for k, v := range p.Constructs {
		constructs[k] = string(v)
	}
	wire := jsonProposal{Skill: p.SkillID, Reasoning: p.Reasoning, Constructs: constructs, Confidence: p.Confidence}
	body, _ := json.Marshal(wire)
	return fmt.Sprintf("%s%s%s", DefaultSentinels.Start, string(body), DefaultSentinels.End)
}
