package notifier

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"PriceHistory/internal/model"
	"PriceHistory/internal/updater"
)

// maxListed caps how many failed symbols one message lists per granularity.
const maxListed = 30

// FormatRunReport renders an update run for Telegram. err is the error that
// aborted the run, if any; r may be nil when the run never started.
func FormatRunReport(r *updater.RunReport, err error) string {
	var b strings.Builder

	switch {
	case err != nil:
		b.WriteString("❌ <b>PriceHistory update aborted</b>")
	case r != nil && r.OK():
		b.WriteString("✅ <b>PriceHistory update finished</b>")
	default:
		b.WriteString("⚠️ <b>PriceHistory update finished with fails</b>")
	}
	if r != nil {
		b.WriteString(fmt.Sprintf(" | %s\n", r.AsOf.Format(model.DateLayout)))
		b.WriteString(fmt.Sprintf("run %s, %s\n\n", shortID(r.ID), r.Duration().Round(1e9)))
		for _, batch := range r.Batches {
			b.WriteString(formatBatch(batch))
		}
	} else {
		b.WriteString("\n")
	}

	if err != nil {
		var abort *updater.AbortError
		if errors.As(err, &abort) {
			b.WriteString(fmt.Sprintf("\nStopped at <code>%s</code> (%s)\n", html.EscapeString(abort.Symbol), abort.Granularity))
		}
		b.WriteString(fmt.Sprintf("<pre>%s</pre>\n", html.EscapeString(err.Error())))
	}
	return b.String()
}

func formatBatch(batch *updater.BatchReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> (since %s)\n", batch.Granularity, batch.Boundary.Format(model.DateLayout)))
	b.WriteString(fmt.Sprintf("  stale: %d | updated: %d | records: %d | rounds: %d\n",
		batch.Stale, len(batch.Succeeded), batch.Records, batch.Rounds))
	if len(batch.Failed) > 0 {
		listed := batch.Failed
		more := 0
		if len(listed) > maxListed {
			more = len(listed) - maxListed
			listed = listed[:maxListed]
		}
		b.WriteString(fmt.Sprintf("  failed (%d): <code>%s</code>", len(batch.Failed), html.EscapeString(strings.Join(listed, " "))))
		if more > 0 {
			b.WriteString(fmt.Sprintf(" and %d more", more))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "Available commands:\n" +
		"• /status: last update report\n" +
		"• /update [periods]: run an update now, e.g. /update d\n" +
		"• /help"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
