package intent

import (
	"regexp"
	"strings"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// rule maps a transcript pattern to an intent. Rules are evaluated in order;
// the first match wins.
type rule struct {
	pattern    *regexp.Regexp
	intent     models.Intent
	confidence float64
}

// The grammar is deliberately small and closed: everything that does not
// match falls through to free_form with low confidence instead of failing.
var grammar = []rule{
	// Procedure navigation. Short, hands-free phrasings come first because
	// technicians speak them most often.
	{regexp.MustCompile(`^(next( step)?|continue|go on|move on|proceed)\b`), models.IntentNavigateNext, 0.95},
	{regexp.MustCompile(`^((say( that)?|repeat)( (that|it|again))?|again|what was that)\b`), models.IntentNavigateRepeat, 0.95},
	{regexp.MustCompile(`\b(procedure|checklist|job)\b.*\b(done|complete|completed|finished)\b|^(done|complete|completed|finished|confirm( completion)?|sign off)\b`), models.IntentNavigateComplete, 0.9},
	{regexp.MustCompile(`^(cancel|abort|stop)( (the )?(procedure|checklist|guide))?$`), models.IntentNavigateCancel, 0.9},
	{regexp.MustCompile(`^(goodbye|bye|close( the)? session|end( the)? session|we're done here)\b`), models.IntentCloseSession, 0.9},

	// Work order creation and status queries. These precede procedure start
	// so "open a maintenance work order" is not mistaken for navigation.
	{regexp.MustCompile(`\b(create|open|log|raise|file)\b.*\b(work ?order|ticket|task)\b`), models.IntentCreateTask, 0.9},
	{regexp.MustCompile(`\b(status|condition|state)\b.*\b(of|for)\b|^(what('s| is) the status|how is|is .+ (running|operational|up))\b`), models.IntentQueryStatus, 0.85},

	{regexp.MustCompile(`\b(start|begin|open|walk me through|guide me through)\b.*\b(procedure|checklist|inspection|maintenance)\b|\b(start|begin)\s+procedure\b`), models.IntentStartProcedure, 0.9},
}

// assetIDPattern matches maintenance asset tags like PUMP-001 or HVAC_12.
var assetIDPattern = regexp.MustCompile(`\b([A-Za-z]{2,12}[-_]\d{1,6})\b`)

// priorityPattern matches spoken priority levels.
var priorityPattern = regexp.MustCompile(`\b(critical|urgent|high|medium|normal|low)\b(\s+priority)?`)

// procedureNamePattern captures a procedure reference after a start phrase,
// e.g. "start the pump inspection procedure".
var procedureNamePattern = regexp.MustCompile(`(?:start|begin|open|walk me through|guide me through)\s+(?:the\s+)?(.+?)\s*(?:procedure|checklist|inspection)?$`)

// matchGrammar returns the first matching rule for a normalized transcript.
func matchGrammar(normalized string) (rule, bool) {
	for _, r := range grammar {
		if r.pattern.MatchString(normalized) {
			return r, true
		}
	}
	return rule{}, false
}

// extractEntities pulls the entity map for a matched intent out of the
// transcript. Asset ids are canonicalized to upper case.
func extractEntities(in models.Intent, raw, normalized string) map[string]string {
	entities := make(map[string]string)

	if m := assetIDPattern.FindString(raw); m != "" {
		entities[models.EntityAssetID] = strings.ToUpper(strings.ReplaceAll(m, "_", "-"))
	}

	switch in {
	case models.IntentCreateTask:
		if m := priorityPattern.FindStringSubmatch(normalized); m != nil {
			entities[models.EntityPriority] = canonicalPriority(m[1])
		}
	case models.IntentStartProcedure:
		if m := procedureNamePattern.FindStringSubmatch(normalized); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" {
				entities[models.EntityProcedure] = name
			}
		}
	case models.IntentQueryStatus, models.IntentFreeForm:
		entities[models.EntityQuery] = strings.TrimSpace(raw)
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

// canonicalPriority folds spoken synonyms onto the business layer's scale.
func canonicalPriority(spoken string) string {
	switch spoken {
	case "critical", "urgent":
		return "high"
	case "normal":
		return "medium"
	default:
		return spoken
	}
}
