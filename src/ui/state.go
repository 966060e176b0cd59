package ui

import (
	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
)

// Mode represents the current UI screen
type Mode int

const (
	ModeChat Mode = iota
	ModePicker
	ModePlan
	ModeOpen
)

// State contains all the data required to render the UI.
// This decouples the renderer from the main application logic.
type State struct {
	Mode           Mode
	ConversationID string
	Provisional    bool

	GenMode  studio.Mode
	SubMode  studio.VideoSubMode
	Video    studio.VideoParams
	AvatarID string
	Cost     studio.SessionCost

	Staged   []studio.UploadedMedia
	Capacity int
	Recent   []studio.Asset

	IsThinking   bool
	ThinkingText string
	Notice       string
	NoticeIsErr  bool

	Plan      *studio.ExecutionPlan
	PlanState studio.PlanState
	PlanErr   string
	Width     int

	// Bubble Tea models
	Picker   list.Model
	TextArea textarea.Model
	Viewport viewport.Model
	Spinner  spinner.Model
}
