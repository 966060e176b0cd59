package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/dustin/go-humanize"
)

// RenderTranscript formats the conversation for the chat viewport.
func RenderTranscript(msgs []studio.Message, width int, now time.Time, styles Styles) string {
	if len(msgs) == 0 {
		return styles.Subtle.Render("Describe what you want to make. Type /help for commands.")
	}
	var b strings.Builder
	for _, m := range msgs {
		who := styles.Assistant.Render("Studio")
		if m.Role == studio.RoleUser {
			who = styles.User.Render("You")
		}
		b.WriteString(who)
		if !m.Timestamp.IsZero() {
			b.WriteString(" " + styles.Subtle.Render(humanize.RelTime(m.Timestamp, now, "ago", "from now")))
		}
		b.WriteString("\n")
		if m.Content != "" {
			b.WriteString(wrap(m.Content, width) + "\n")
		}
		for _, a := range m.Assets {
			b.WriteString(renderAsset(a, styles) + "\n")
		}
		if outcomes := m.SceneOutcomes(); len(outcomes) > 0 {
			for _, o := range outcomes {
				b.WriteString(renderOutcome(o, styles) + "\n")
			}
		} else if m.ExecutionPlan != nil {
			b.WriteString(styles.Accent.Render(fmt.Sprintf("▸ plan with %d scenes ready for review (ctrl+p)", len(m.ExecutionPlan.Scenes))) + "\n")
		}
		if m.Cost != nil && m.Cost.TotalCost > 0 {
			b.WriteString(styles.Subtle.Render("cost "+FormatCost(studio.SessionCost{
				TotalCost:   m.Cost.TotalCost,
				Currency:    m.Cost.Currency,
				TotalTokens: tokens(m.Usage),
			})) + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func tokens(u *studio.TokenUsage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}

func renderAsset(a studio.Asset, styles Styles) string {
	line := fmt.Sprintf("  [%s %s] %s", a.Type, a.ID, a.URL)
	if a.Liked {
		line += " " + styles.Liked.Render("♥")
	}
	if a.Downloads > 0 {
		line += fmt.Sprintf(" %s↓", humanize.Comma(int64(a.Downloads)))
	}
	if a.Extendable() {
		line += styles.Subtle.Render(" (extendable)")
	}
	return line
}

func renderOutcome(o studio.SceneOutcome, styles Styles) string {
	label := o.Result.SceneID
	if o.Description != "" {
		label += " " + o.Description
	}
	if o.Failed {
		reason := o.Result.Error
		if reason == "" {
			reason = "failed"
		}
		return styles.Error.Render(fmt.Sprintf("  ✗ %s: %s", label, reason))
	}
	line := fmt.Sprintf("  ✓ %s", label)
	if o.Result.VideoURL != "" {
		line += " " + o.Result.VideoURL
	}
	if n := len(o.Result.GeneratedImages); n > 0 {
		line += fmt.Sprintf(" (+%d images)", n)
	}
	if o.Result.DurationSeconds > 0 {
		line += fmt.Sprintf(" %.0fs", o.Result.DurationSeconds)
	}
	return styles.Success.Render(line)
}
