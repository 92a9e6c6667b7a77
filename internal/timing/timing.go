// Package timing converts free-text "when" fields into a normalized
// trigger/deadline representation usable for ordering and grouping. The
// original text is never modified; normalization only annotates.
package timing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/relief-ops/checklist-cli/internal/model"
)

var (
	// "within 2 hours", "within 30 minutes", "no later than 3 days"
	relativePattern = regexp.MustCompile(`(?i)^(?:within|no later than|not later than)\s+(\d+)\s+(minute|hour|day|week|month)s?\b`)

	// "by the end of October", "by 31 December", "by 2026-10-31"
	absolutePattern = regexp.MustCompile(`(?i)^by\s+(.+)$`)

	// "upon declaration of Code Red", "on activation of ...", "when ..."
	eventPattern = regexp.MustCompile(`(?i)^(?:upon|on|when|after|following)\s+(.+)$`)
)

// minutesPerUnit canonicalizes relative deadlines to minutes so "2 hours"
// and "120 minutes" compare equal.
var minutesPerUnit = map[string]int{
	"minute": 1,
	"hour":   60,
	"day":    60 * 24,
	"week":   60 * 24 * 7,
	"month":  60 * 24 * 30,
}

// Normalize parses when into a Timing. Unrecognized text is preserved
// verbatim as an event trigger; nothing is discarded and nothing is
// fabricated.
func Normalize(when string) model.Timing {
	trimmed := strings.TrimSpace(when)

	switch strings.ToLower(trimmed) {
	case "immediately", "at once", "without delay":
		return model.Timing{Kind: model.TriggerRelativeDeadline, Value: "0m"}
	}

	if m := relativePattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			unit := strings.ToLower(m[2])
			return model.Timing{
				Kind:  model.TriggerRelativeDeadline,
				Value: fmt.Sprintf("%dm", n*minutesPerUnit[unit]),
			}
		}
	}

	if m := absolutePattern.FindStringSubmatch(trimmed); m != nil {
		return model.Timing{
			Kind:  model.TriggerAbsoluteTime,
			Value: strings.ToLower(strings.TrimSpace(m[1])),
		}
	}

	if m := eventPattern.FindStringSubmatch(trimmed); m != nil {
		return model.Timing{
			Kind:  model.TriggerEvent,
			Value: strings.TrimSpace(m[1]),
		}
	}

	return model.Timing{Kind: model.TriggerEvent, Value: trimmed}
}

// Compatible reports whether two when fields are non-contradictory for
// dedup purposes. Event triggers are free text and never contradict; two
// comparable deadlines contradict when their normalized values differ.
func Compatible(a, b string) bool {
	ta, tb := Normalize(a), Normalize(b)
	if ta.Kind == model.TriggerEvent || tb.Kind == model.TriggerEvent {
		return true
	}
	if ta.Kind != tb.Kind {
		return false
	}
	return ta.Value == tb.Value
}

// Annotate returns a copy of the action with its Timing field set.
func Annotate(a model.Action) model.Action {
	t := Normalize(a.When)
	a.Timing = &t
	return a
}
