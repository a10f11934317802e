package updateagent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// aggregate folds per-script outcomes into one consolidated notification and
// returns the count of silently successful updates. Outcomes without a text
// contribute only to the count; a single error outcome flips the title to
// the error variant. No notification is issued when nothing carries a text.
func (c *Checker) aggregate(ctx context.Context, outcomes []*Outcome) int {
	var (
		updated int
		lines   []string
		ids     []int64
		hasErr  bool
	)
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		if out.Text == "" {
			if out.Updated {
				updated++
			}
			continue
		}
		lines = append(lines, out.Text)
		ids = append(ids, out.ScriptID)
		if out.Err {
			hasErr = true
		}
	}

	if len(lines) > 0 {
		title := c.localizer.Translate(TitleUpdateCheckComplete)
		if hasErr {
			title = c.localizer.Translate(TitleUpdateErrors)
		}
		c.notifier.NotifyBulkResult(ctx, title, strings.Join(lines, "\n"), ids)
	}

	log.Info().
		Int("outcomes", len(outcomes)).
		Int("reported", len(lines)).
		Int("updated", updated).
		Bool("errors", hasErr).
		Msg("update check settled")
	return updated
}
