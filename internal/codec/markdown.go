package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/keeptabs/internal/types"
)

// Markdown formats collections as a human-readable document, for
// sharing or archiving outside the app. Unlike the JSON export it is
// not round-trippable.
func Markdown(collections []types.Collection, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Keep Tabs — %d collections\n", len(collections))
	fmt.Fprintf(&b, "> Exported %s\n", now.Format("2006-01-02 15:04"))

	for _, c := range collections {
		n := c.TabCount()
		noun := "tabs"
		if n == 1 {
			noun = "tab"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", c.Name, n, noun)

		if c.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", c.Description)
		}
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, "tags: %s\n\n", strings.Join(c.Tags, ", "))
		}

		for _, tab := range c.Tabs {
			title := tab.Title
			if title == "" {
				title = tab.URL
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", title, tab.URL)
		}

		fmt.Fprintf(&b, "\n_saved %s_\n", relativeTime(c.CreatedAt, now))
	}

	return b.String()
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
