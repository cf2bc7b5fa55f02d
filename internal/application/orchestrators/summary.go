package orchestrators

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	domain "repsync/internal/domain/draft"
)

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in set notes is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// BuildWorkoutSummary renders the coach summary for a finished workout:
// a subject line and an HTML body listing every exercise with its recorded
// sets, completion marks, and notes.
func BuildWorkoutSummary(d domain.Draft, now time.Time) (subject, html string) {
	subject = fmt.Sprintf("Workout summary: %s (%s)", d.DayID, now.Format("2 Jan 2006"))

	var md strings.Builder
	fmt.Fprintf(&md, "# Workout %s\n\n", d.DayID)

	for _, ex := range d.Exercises {
		fmt.Fprintf(&md, "## %s\n\n", ex.Name)

		sets := d.ExerciseSets(ex.ID)
		numbers := make([]int, 0, len(sets))
		for n := range sets {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		completed := 0
		for _, n := range numbers {
			entry := sets[n]
			mark := "–"
			if entry.Completed {
				mark = "✓"
				completed++
			}
			fmt.Fprintf(&md, "- %s Set %d: %s × %d", mark, n, formatWeight(entry.Weight), entry.Reps)
			if entry.RPE > 0 {
				fmt.Fprintf(&md, " @ RPE %s", formatWeight(entry.RPE))
			}
			md.WriteString("\n")
			if entry.Notes != "" {
				fmt.Fprintf(&md, "  - %s\n", entry.Notes)
			}
		}

		// Count over the rendered sets so the tally always matches the bullets,
		// even when set numbers are sparse.
		fmt.Fprintf(&md, "\n%d of %d sets completed\n\n", completed, len(numbers))
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md.String()), &buf); err != nil {
		slog.Error("summary_render_failed", "day_id", d.DayID, "error", err.Error())
		return subject, "<p>summary unavailable</p>"
	}
	return subject, buf.String()
}

// formatWeight prints a weight or RPE without a trailing ".0" for whole values.
func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
