package src

import (
	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/Protocol-Lattice/lattice-studio/src/ui"
)

func (m *model) View() string {
	return ui.Render(m.state(), m.style)
}

// state snapshots everything the renderer needs.
func (m *model) state() ui.State {
	st := m.orch.Resolver().State()
	s := ui.State{
		Mode:           m.mode,
		ConversationID: m.orch.ConversationID(),
		Provisional:    m.orch.Provisional(),
		GenMode:        st.Mode,
		SubMode:        st.SubMode,
		Video:          st.Video,
		AvatarID:       m.avatarID,
		Cost:           m.orch.Transcript().Cost(),
		Staged:         st.Staged,
		Capacity:       studio.StagingCapacity(st.Mode, st.SubMode),
		Recent:         m.recent.Assets(),
		IsThinking:     m.isThinking,
		ThinkingText:   m.thinking,
		Notice:         m.notice,
		NoticeIsErr:    m.noticeErr,
		Width:          m.width,
		Picker:         m.picker,
		TextArea:       m.textarea,
		Viewport:       m.viewport,
		Spinner:        m.spinner,
	}
	if st.ExtendTarget != nil && s.Notice == "" {
		s.Notice = "extending " + st.ExtendTarget.ID
	}
	if session := m.orch.PendingPlan(); session != nil {
		s.Plan = session.Current()
		s.PlanState = session.State()
		if err := session.LastError(); err != nil {
			s.PlanErr = err.Error()
		}
	}
	return s
}
