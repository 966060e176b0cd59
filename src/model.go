package src

import (
	"context"
	"io"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/config"
	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/Protocol-Lattice/lattice-studio/src/ui"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const recentLimit = 8

const promptPlaceholder = "Describe what you want to make, or type /help..."

// modeItem is a generation mode entry in the picker.
type modeItem struct {
	mode studio.Mode
	sub  studio.VideoSubMode
	desc string
}

func (p modeItem) Title() string       { return ui.ModeLabel(p.mode, p.sub) }
func (p modeItem) Description() string { return p.desc }
func (p modeItem) FilterValue() string { return p.Title() }

// modelItem is a video model entry in the picker.
type modelItem struct {
	id string
}

func (p modelItem) Title() string { return studio.ModelLabel(p.id) }
func (p modelItem) Description() string {
	if studio.IsAdvancedModel(p.id) {
		return p.id + " · frames, references and avatars"
	}
	return p.id
}
func (p modelItem) FilterValue() string { return p.id }

// Fetcher downloads generated media to w.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Deps are the collaborators the TUI drives.
type Deps struct {
	Config  config.Config
	Logger  *zap.Logger
	Backend studio.Backend
	Assets  studio.AssetBackend
	Fetcher Fetcher
	Now     func() time.Time
}

type keyMap struct {
	Quit    key.Binding
	Submit  key.Binding
	Back    key.Binding
	Picker  key.Binding
	Plan    key.Binding
	New     key.Binding
	Open    key.Binding
	Edit    key.Binding
	Build   key.Binding
	Discard key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Picker:  key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "mode")),
		Plan:    key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "plan")),
		New:     key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new conversation")),
		Open:    key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "open conversation")),
		Edit:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit plan")),
		Build:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "build plan")),
		Discard: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "discard plan")),
	}
}

type model struct {
	ctx     context.Context
	cfg     config.Config
	logger  *zap.Logger
	orch    *studio.Orchestrator
	assets  *studio.AssetSync
	recent  *studio.AssetList
	fetcher Fetcher
	now     func() time.Time
	events  <-chan studio.Event[studio.AssetChange]

	keys       keyMap
	mode       ui.Mode
	avatarID   string
	isThinking bool
	thinking   string
	notice     string
	noticeErr  bool
	draft      string

	picker   list.Model
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int
	style    ui.Styles

	lastTranscriptSig string
	reloadPending     bool
}

// NewModel wires the orchestrator, asset sync and the recent-assets view.
// Background watchers stop when ctx is cancelled.
func NewModel(ctx context.Context, deps Deps) *model {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	orch := studio.NewOrchestrator(deps.Backend, studio.Options{
		Logger: logger.Named("orchestrator"),
		Video:  deps.Config.Video(),
		Now:    now,
	})
	assets := studio.NewAssetSync(deps.Assets, nil, logger.Named("assets"))
	assets.Register(orch.TranscriptView())

	transcript := orch.Transcript()
	recent := studio.NewAssetList("recent", func(context.Context) ([]studio.Asset, error) {
		return recentAssets(transcript.Messages(), recentLimit), nil
	}, logger.Named("recent"))
	assets.Register(recent)
	recent.Watch(ctx, assets.Broker())

	picker := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	picker.SetShowHelp(false)
	picker.SetShowStatusBar(false)
	picker.SetFilteringEnabled(false)

	ta := textarea.New()
	ta.Placeholder = promptPlaceholder
	ta.Focus()
	ta.SetHeight(3)

	st := ui.NewStyles()

	vp := viewport.New(0, 0)

	s := spinner.New()
	s.Spinner = spinner.Line
	s.Style = st.Thinking

	m := &model{
		ctx:      ctx,
		cfg:      deps.Config,
		logger:   logger,
		orch:     orch,
		assets:   assets,
		recent:   recent,
		fetcher:  deps.Fetcher,
		now:      now,
		events:   assets.Broker().Subscribe(ctx),
		keys:     defaultKeyMap(),
		mode:     ui.ModeChat,
		avatarID: deps.Config.AvatarID,
		picker:   picker,
		textarea: ta,
		viewport: vp,
		spinner:  s,
		style:    st,
	}
	m.syncViewport(true)
	return m
}

// recentAssets returns up to limit assets, newest first.
func recentAssets(msgs []studio.Message, limit int) []studio.Asset {
	var out []studio.Asset
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		assets := msgs[i].Assets
		for j := len(assets) - 1; j >= 0 && len(out) < limit; j-- {
			out = append(out, assets[j])
		}
	}
	return out
}

func modeItems() []list.Item {
	return []list.Item{
		modeItem{studio.ModeAuto, "", "Let the studio decide between text, image and video"},
		modeItem{studio.ModeText, "", "Text answers only"},
		modeItem{studio.ModeImage, "", "Generate or edit images"},
		modeItem{studio.ModeVideo, studio.TextToVideo, "Video from a prompt"},
		modeItem{studio.ModeVideo, studio.FramesToVideo, "Video between a start and an end frame"},
		modeItem{studio.ModeVideo, studio.ReferencesToVideo, "Video guided by up to 3 reference images"},
		modeItem{studio.ModePlan, "", "Draft a multi-scene production plan for review"},
	}
}

func modelItems() []list.Item {
	var items []list.Item
	for _, id := range studio.VideoModels() {
		items = append(items, modelItem{id})
	}
	return items
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.listenAssets(), m.scheduleSync())
}
