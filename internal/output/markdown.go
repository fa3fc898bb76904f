// Package output renders pipeline results for export.
package output

import (
	"fmt"
	"strings"

	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// Metadata describes the source recording for the document header.
type Metadata struct {
	Title     string
	Source    string
	Generated string
}

// RenderMinutes formats a minutes document as markdown.
func RenderMinutes(meta Metadata, result domain.PipelineResult) string {
	var b strings.Builder

	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	} else {
		b.WriteString("# Meeting Minutes\n\n")
	}
	if meta.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", meta.Source)
	}
	if meta.Generated != "" {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated)
	}
	b.WriteString("\n")

	for _, topic := range result.Minutes.Topics {
		fmt.Fprintf(&b, "## %s\n\n", topic.Title)
		for _, point := range topic.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", point)
		}
		if len(topic.ActionItems) > 0 {
			b.WriteString("\n### Action items\n\n")
			for _, item := range topic.ActionItems {
				fmt.Fprintf(&b, "- [ ] %s\n", item)
			}
		}
		b.WriteString("\n")
	}

	if transcript := strings.TrimSpace(result.Transcript); transcript != "" {
		b.WriteString("---\n\n## Transcript\n\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	return b.String()
}
