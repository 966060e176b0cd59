package ui

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
)

const Logo = `
██╗      █████╗ ████████╗████████╗██╗ ██████╗███████╗
██║     ██╔══██╗╚══██╔══╝╚══██╔══╝██║██╔════╝██╔════╝
██║     ███████║   ██║      ██║   ██║██║     █████╗
██║     ██╔══██║   ██║      ██║   ██║██║     ██╔══╝
███████╗██║  ██║   ██║      ██║   ██║╚██████╗███████╗
╚══════╝╚═╝  ╚═╝   ╚═╝      ╚═╝   ╚═╝ ╚═════╝╚══════╝
              S T U D I O  ·  G E N E R A T I V E  M E D I A
`

// Render generates the full UI string based on the provided state.
func Render(s State, styles Styles) string {
	header := renderHeader(styles)
	body := renderBody(s, styles)
	footer := renderFooter(s, styles)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// HeaderHeight is the number of rows the logo and subtitle take.
func HeaderHeight(styles Styles) int {
	return lipgloss.Height(renderHeader(styles))
}

func renderHeader(styles Styles) string {
	logoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AD8CFF")).Bold(true).
		Background(lipgloss.Color("#000000")).UnsetBackground()
	subtitle := styles.Header.Render("Protocol Lattice Studio")
	styledLogo := logoStyle.Render(Logo)

	return lipgloss.JoinVertical(lipgloss.Left, styledLogo, subtitle)
}

func renderFooter(s State, styles Styles) string {
	help := "ctrl+c: quit"
	switch s.Mode {
	case ModeChat:
		help += " | ctrl+o: mode | ctrl+p: plan | ctrl+n: new | ctrl+g: open | /help"
	case ModePicker:
		help += " | enter: select | esc: back"
	case ModePlan:
		help += " | e: edit | b: build | x: discard | esc: back"
	case ModeOpen:
		help += " | enter: confirm | esc: cancel"
	}
	return styles.Footer.Render(help)
}

func renderBody(s State, styles Styles) string {
	switch s.Mode {
	case ModeChat:
		return renderChat(s, styles)
	case ModePicker:
		return renderPicker(s, styles)
	case ModePlan:
		return renderPlan(s, styles)
	case ModeOpen:
		return renderOpen(s, styles)
	default:
		return ""
	}
}

// ModeLabel is the short form shown in the status bar.
func ModeLabel(mode studio.Mode, sub studio.VideoSubMode) string {
	if mode == studio.ModeVideo {
		return fmt.Sprintf("%s/%s", mode, sub)
	}
	return string(mode)
}

// FormatCost renders a session total such as "$0.0125 · 1,530 tokens".
func FormatCost(c studio.SessionCost) string {
	amount := humanize.CommafWithDigits(c.TotalCost, 4)
	switch strings.ToUpper(c.Currency) {
	case "", "USD":
		amount = "$" + amount
	default:
		amount = amount + " " + strings.ToUpper(c.Currency)
	}
	return fmt.Sprintf("%s · %s tokens", amount, humanize.Comma(int64(c.TotalTokens)))
}

func conversationLabel(s State) string {
	if s.ConversationID == "" {
		return "none"
	}
	if s.Provisional {
		return "new"
	}
	return s.ConversationID
}

func renderChat(s State, styles Styles) string {
	var statusItems []string
	statusItems = append(statusItems, styles.Status.Render(fmt.Sprintf("CONV: %s", conversationLabel(s))))
	statusItems = append(statusItems, styles.Status.Render(fmt.Sprintf("MODE: %s", ModeLabel(s.GenMode, s.SubMode))))
	if s.GenMode == studio.ModeVideo || s.GenMode == studio.ModePlan {
		video := studio.ModelLabel(s.Video.Model)
		if s.Video.AspectRatio != "" {
			video += " " + s.Video.AspectRatio
		}
		if s.Video.Resolution != "" {
			video += " " + s.Video.Resolution
		}
		statusItems = append(statusItems, styles.Status.Render(video))
	}
	if s.AvatarID != "" {
		statusItems = append(statusItems, styles.Status.Render(fmt.Sprintf("AVATAR: %s", s.AvatarID)))
	}
	statusItems = append(statusItems, styles.StatusRight.Render(FormatCost(s.Cost)))

	status := lipgloss.JoinHorizontal(lipgloss.Top, statusItems...)

	var metaLines []string
	if line := renderStaged(s, styles); line != "" {
		metaLines = append(metaLines, line)
	}
	if line := renderRecent(s, styles); line != "" {
		metaLines = append(metaLines, line)
	}
	if s.Notice != "" {
		if s.NoticeIsErr {
			metaLines = append(metaLines, styles.Error.Render("✗ "+s.Notice))
		} else {
			metaLines = append(metaLines, styles.Success.Render("✓ "+s.Notice))
		}
	}

	parts := []string{s.Viewport.View(), status}
	parts = append(parts, metaLines...)
	parts = append(parts, renderThinking(s, styles), s.TextArea.View())
	return styles.ChatContainer.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderStaged(s State, styles Styles) string {
	if s.Capacity == 0 && len(s.Staged) == 0 {
		return ""
	}
	items := make([]string, 0, len(s.Staged))
	for _, m := range s.Staged {
		items = append(items, fmt.Sprintf("%s (%s, %s) [%s]", m.Label, m.MimeType,
			humanize.IBytes(uint64(len(m.RawData))), shortID(m.ID)))
	}
	line := fmt.Sprintf("Attachments %d/%d", len(s.Staged), s.Capacity)
	if len(items) > 0 {
		line += ": " + strings.Join(items, ", ")
	}
	return styles.Subtle.Render(line)
}

func renderRecent(s State, styles Styles) string {
	if len(s.Recent) == 0 {
		return ""
	}
	items := make([]string, 0, len(s.Recent))
	for _, a := range s.Recent {
		item := fmt.Sprintf("%s %s", a.Type, a.ID)
		if a.Liked {
			item += " " + styles.Liked.Render("♥")
		}
		items = append(items, item)
	}
	return styles.Subtle.Render("Recent: " + strings.Join(items, " · "))
}

func renderThinking(s State, styles Styles) string {
	if !s.IsThinking {
		return ""
	}
	return styles.Thinking.Render(fmt.Sprintf("Studio %s %s", s.Spinner.View(), s.ThinkingText))
}

func renderPicker(s State, styles Styles) string {
	return styles.List.Render(s.Picker.View())
}

func renderOpen(s State, styles Styles) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.ListHeader.Render("Open Conversation"),
		styles.Subtle.Render("Loading a conversation replaces the current transcript."),
		s.TextArea.View(),
		styles.Help.Render("enter: confirm | esc: cancel"),
	)
}

func renderPlan(s State, styles Styles) string {
	if s.Plan == nil {
		return styles.Subtle.Render("No plan is waiting for review. Switch to plan mode and describe your production.")
	}
	lines := []string{
		styles.ListHeader.Render(fmt.Sprintf("Execution plan · %d scenes · %s", len(s.Plan.Scenes), s.PlanState)),
	}
	if s.Plan.OverallStrategy != "" {
		lines = append(lines, styles.Subtitle.Render(wrap(s.Plan.OverallStrategy, s.Width)))
	}
	if s.Plan.EstimatedDuration != "" {
		lines = append(lines, styles.Subtle.Render("Estimated: "+s.Plan.EstimatedDuration))
	}
	if err := s.Plan.Validate(); err != nil {
		lines = append(lines, styles.Error.Render("needs edits: "+err.Error()))
	}
	if s.PlanErr != "" {
		lines = append(lines, styles.Error.Render("last build failed: "+s.PlanErr))
	}

	if stages, err := s.Plan.Stages(); err == nil {
		for i, stage := range stages {
			lines = append(lines, styles.Accent.Render(fmt.Sprintf("Stage %d: %s", i+1, strings.Join(stage, ", "))))
		}
	}
	for _, sc := range s.Plan.Scenes {
		lines = append(lines, renderScene(sc, s.Width, styles))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderScene(sc studio.Scene, width int, styles Styles) string {
	head := fmt.Sprintf("%s [%s", sc.ID, sc.Mode)
	if sc.Model != "" {
		head += " · " + studio.ModelLabel(sc.Model)
	}
	if sc.DurationHint != "" {
		head += " · " + sc.DurationHint
	}
	head += "]"
	if len(sc.Dependencies) > 0 {
		head += " after " + strings.Join(sc.Dependencies, ", ")
	}
	lines := []string{styles.Accent.Render(head)}
	if sc.Description != "" {
		lines = append(lines, styles.Scene.Render(wrap(sc.Description, width-2)))
	}
	lines = append(lines, styles.Subtle.PaddingLeft(2).Render(wrap("prompt: "+sc.Prompt, width-2)))
	for _, p := range sc.ImagePrompts {
		lines = append(lines, styles.Subtle.PaddingLeft(4).Render(wrap("image: "+p, width-4)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
