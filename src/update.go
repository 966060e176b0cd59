package src

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/Protocol-Lattice/lattice-studio/src/ui"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// generateMsg is the final message from a generation or a plan build.
type generateMsg struct {
	outcome *studio.Outcome
	build   bool
	err     error
}

type openMsg struct {
	id  string
	err error
}

type likeMsg struct {
	id     string
	result *studio.LikeResult
	err    error
}

type downloadMsg struct {
	id     string
	path   string
	bytes  int64
	result *studio.DownloadResult
	err    error
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.mode {
		case ui.ModeChat:
			if handled, cmd := m.updateChatKeys(msg); handled {
				return m, cmd
			}
		case ui.ModePicker:
			switch {
			case key.Matches(msg, m.keys.Back):
				m.mode = ui.ModeChat
				return m, nil
			case key.Matches(msg, m.keys.Submit):
				m.applyPick()
				m.mode = ui.ModeChat
				return m, nil
			}
		case ui.ModePlan:
			return m, m.updatePlanKeys(msg)
		case ui.ModeOpen:
			switch {
			case key.Matches(msg, m.keys.Back):
				m.leaveOpen()
				return m, nil
			case key.Matches(msg, m.keys.Submit):
				id := strings.TrimSpace(m.textarea.Value())
				m.leaveOpen()
				if id == "" {
					return m, nil
				}
				return m, m.openConversation(id)
			}
		}

	case generateMsg:
		m.isThinking = false
		m.thinking = ""
		m.handleGenerate(msg)
		return m, nil

	case openMsg:
		m.isThinking = false
		m.thinking = ""
		switch {
		case errors.Is(msg.err, studio.ErrStaleResult):
		case msg.err != nil:
			m.setError(msg.err)
		default:
			m.setNotice("opened conversation " + msg.id)
		}
		m.lastTranscriptSig = ""
		m.syncViewport(true)
		m.refreshRecent()
		return m, nil

	case likeMsg:
		switch {
		case msg.err != nil:
			m.setError(msg.err)
		case msg.result.Deleted:
			m.setNotice(fmt.Sprintf("asset %s no longer exists", msg.id))
		case msg.result.Liked:
			m.setNotice(fmt.Sprintf("liked %s", msg.id))
		default:
			m.setNotice(fmt.Sprintf("unliked %s", msg.id))
		}
		m.syncViewport(false)
		return m, nil

	case downloadMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setNotice(fmt.Sprintf("saved %s (%s) · %d downloads", msg.path, humanBytes(msg.bytes), msg.result.Downloads))
		}
		m.syncViewport(false)
		return m, nil

	case assetEventMsg:
		if !msg.ok {
			return m, nil
		}
		m.syncViewport(false)
		cmds := []tea.Cmd{m.listenAssets()}
		if msg.event.Payload.Deleted {
			cmds = append(cmds, m.scheduleReload())
		}
		return m, tea.Batch(cmds...)

	case syncTickMsg:
		return m, tea.Batch(m.reloadCmd(), m.scheduleSync())

	case reloadMsg:
		m.reloadPending = false
		return m, m.reloadCmd()

	case transcriptSyncMsg:
		if msg.err == nil && m.syncViewport(false) {
			m.refreshRecent()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.isThinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// The user message is echoed into the transcript once the request starts.
		m.syncViewport(true)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.mode {
	case ui.ModePicker:
		m.picker, cmd = m.picker.Update(msg)
	case ui.ModeChat, ui.ModeOpen:
		var textareaCmd, viewportCmd tea.Cmd
		m.textarea, textareaCmd = m.textarea.Update(msg)
		m.viewport, viewportCmd = m.viewport.Update(msg)
		cmd = tea.Batch(textareaCmd, viewportCmd)
	}
	return m, cmd
}

func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	headerHeight := ui.HeaderHeight(m.style)
	hPad := m.style.ChatContainer.GetHorizontalFrameSize()
	m.picker.SetSize(width-4, height-headerHeight-3)
	m.textarea.SetWidth(width - hPad)
	m.viewport.Width = width - hPad
	// footer, status, staged, recent, notice, thinking and the container border
	vh := height - headerHeight - m.textarea.Height() - 8
	if vh < 3 {
		vh = 3
	}
	m.viewport.Height = vh
	m.lastTranscriptSig = ""
	m.syncViewport(true)
}

func (m *model) updateChatKeys(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Picker):
		m.openPicker("Generation mode", modeItems())
		return true, nil

	case key.Matches(msg, m.keys.Plan):
		if m.orch.PendingPlan() == nil {
			m.setError(studio.ErrNoPendingPlan)
			return true, nil
		}
		m.mode = ui.ModePlan
		return true, nil

	case key.Matches(msg, m.keys.New):
		m.newConversation()
		return true, nil

	case key.Matches(msg, m.keys.Open):
		m.draft = m.textarea.Value()
		m.textarea.Reset()
		m.textarea.Placeholder = "Conversation ID..."
		m.mode = ui.ModeOpen
		return true, nil

	case key.Matches(msg, m.keys.Submit):
		raw := strings.TrimSpace(m.textarea.Value())
		if raw == "" {
			return true, nil
		}
		if strings.HasPrefix(raw, "/") {
			return true, m.runCommand(raw)
		}
		return true, m.runPrompt(raw)
	}
	return false, nil
}

func (m *model) updatePlanKeys(msg tea.KeyMsg) tea.Cmd {
	session := m.orch.PendingPlan()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ui.ModeChat
	case session == nil:
		m.mode = ui.ModeChat
	case key.Matches(msg, m.keys.Edit):
		if session.State() == studio.PlanEditing {
			if err := session.CancelEdit(); err != nil {
				m.setError(err)
			} else {
				m.setNotice("edits discarded")
			}
			return nil
		}
		if err := session.BeginEdit(); err != nil {
			m.setError(err)
			return nil
		}
		m.setNotice("editing: use /scene <id> field=value, then ctrl+p to review")
		m.mode = ui.ModeChat
	case key.Matches(msg, m.keys.Build):
		return m.buildPlan()
	case key.Matches(msg, m.keys.Discard):
		if err := m.orch.DiscardPlan(); err != nil {
			m.setError(err)
			return nil
		}
		m.setNotice("plan discarded")
		m.mode = ui.ModeChat
	}
	return nil
}

func (m *model) openPicker(title string, items []list.Item) {
	m.picker.Title = title
	m.picker.SetItems(items)
	m.picker.Select(0)
	m.mode = ui.ModePicker
}

func (m *model) applyPick() {
	switch item := m.picker.SelectedItem().(type) {
	case modeItem:
		if err := m.orch.Resolver().SetMode(item.mode, item.sub); err != nil {
			m.setError(err)
			return
		}
		m.setNotice("mode " + item.Title())
	case modelItem:
		m.orch.Resolver().SetModel(item.id)
		m.setNotice("video model " + item.Title())
	}
}

func (m *model) leaveOpen() {
	m.mode = ui.ModeChat
	m.textarea.Reset()
	m.textarea.SetValue(m.draft)
	m.textarea.Placeholder = promptPlaceholder
	m.draft = ""
}

func (m *model) newConversation() {
	id := m.orch.NewConversation()
	m.logger.Info("new conversation", zap.String("conversation", id))
	m.setNotice("started a new conversation")
	m.syncViewport(true)
	m.refreshRecent()
}

func (m *model) openConversation(id string) tea.Cmd {
	m.isThinking = true
	m.thinking = "loading " + id
	orch, timeout, parent := m.orch, m.cfg.HistoryTimeout, m.ctx
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return openMsg{id: id, err: orch.OpenConversation(ctx, id)}
	}
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) submitOptions() studio.SubmitOptions {
	return studio.SubmitOptions{AvatarID: m.avatarID}
}

func (m *model) runPrompt(raw string) tea.Cmd {
	opts := m.submitOptions()
	// Local validation keeps the input so it can be fixed.
	if _, err := studio.BuildRequest(raw, m.orch.Resolver().State(), m.orch.ConversationID(), opts); err != nil {
		m.setError(err)
		return nil
	}
	if m.isThinking {
		m.setError(studio.ErrBusy)
		return nil
	}
	m.textarea.Reset()
	m.notice = ""

	m.isThinking = true
	m.thinking = "generating " + ui.ModeLabel(m.orch.Resolver().State().Mode, m.orch.Resolver().State().SubMode)

	orch, timeout, parent := m.orch, m.cfg.RequestTimeout, m.ctx
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		out, err := orch.Submit(ctx, raw, opts)
		return generateMsg{outcome: out, err: err}
	}
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) buildPlan() tea.Cmd {
	if m.isThinking {
		m.setError(studio.ErrBusy)
		return nil
	}
	if session := m.orch.PendingPlan(); session != nil {
		if err := session.Current().Validate(); err != nil {
			m.setError(err)
			return nil
		}
	}
	m.isThinking = true
	m.thinking = "building plan"
	m.mode = ui.ModeChat

	orch, timeout, parent, opts := m.orch, m.cfg.RequestTimeout, m.ctx, m.submitOptions()
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		out, err := orch.BuildPlan(ctx, opts)
		return generateMsg{outcome: out, build: true, err: err}
	}
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *model) handleGenerate(msg generateMsg) {
	defer func() {
		m.syncViewport(true)
		m.refreshRecent()
	}()
	if msg.err != nil {
		if errors.Is(msg.err, studio.ErrStaleResult) {
			m.logger.Debug("generation result dropped", zap.Error(msg.err))
			return
		}
		m.setError(msg.err)
		return
	}
	out := msg.outcome
	switch {
	case msg.build:
		failed := 0
		for _, o := range out.SceneOutcomes {
			if o.Failed {
				failed++
			}
		}
		if failed > 0 {
			m.noticeErr = true
			m.notice = fmt.Sprintf("plan built: %d of %d scenes failed", failed, len(out.SceneOutcomes))
		} else {
			m.setNotice(fmt.Sprintf("plan built: %d scenes", len(out.SceneOutcomes)))
		}
	case out.PendingPlan != nil:
		m.setNotice("plan ready for review: ctrl+p")
	case out.Adopted:
		m.setNotice("conversation saved as " + out.ConversationID)
	default:
		m.notice = ""
	}
}

func (m *model) refreshRecent() {
	if err := m.recent.Refresh(m.ctx); err != nil {
		m.logger.Debug("recent assets refresh failed", zap.Error(err))
	}
}

func (m *model) setNotice(s string) {
	m.notice, m.noticeErr = s, false
}

func (m *model) setError(err error) {
	m.notice, m.noticeErr = err.Error(), true
}
