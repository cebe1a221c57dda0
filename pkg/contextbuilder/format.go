package contextbuilder

import "fmt"

// DefaultResponseFormat renders the shared response-format template (§6's
// `shared` block): explicit start/end sentinels the Model Adapter's strict-
// JSON tier looks for first.
func DefaultResponseFormat(sentinelStart, sentinelEnd string) string {
	return fmt.Sprintf(
		"Respond with exactly one JSON object between %s and %s, with keys "+
			"\"skill\", \"reasoning\", \"constructs\", and optionally \"confidence\".\n%s{...}%s\n",
		sentinelStart, sentinelEnd, sentinelStart, sentinelEnd,
	)
}
