package src

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/Protocol-Lattice/lattice-studio/src/ui"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// reloadDebounce coalesces bursts of asset events into one history fetch.
const reloadDebounce = 750 * time.Millisecond

type assetEventMsg struct {
	event studio.Event[studio.AssetChange]
	ok    bool
}

type syncTickMsg struct{}

type reloadMsg struct{}

type transcriptSyncMsg struct {
	err error
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// listenAssets waits for the next asset change published by asset sync.
func (m *model) listenAssets() tea.Cmd {
	ch := m.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		return assetEventMsg{event: ev, ok: ok}
	}
}

func (m *model) scheduleSync() tea.Cmd {
	if m.cfg.SyncInterval <= 0 {
		return nil
	}
	return tea.Tick(m.cfg.SyncInterval, func(time.Time) tea.Msg {
		return syncTickMsg{}
	})
}

// scheduleReload arms a single debounced reload.
func (m *model) scheduleReload() tea.Cmd {
	if m.reloadPending {
		return nil
	}
	m.reloadPending = true
	return tea.Tick(reloadDebounce, func(time.Time) tea.Msg {
		return reloadMsg{}
	})
}

func (m *model) reloadCmd() tea.Cmd {
	orch, timeout, logger := m.orch, m.cfg.HistoryTimeout, m.logger
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		err := orch.Reload(ctx)
		if err != nil {
			logger.Debug("conversation sync failed", zap.Error(err))
		}
		return transcriptSyncMsg{err: err}
	}
}

// syncViewport re-renders the transcript when its content changed.
func (m *model) syncViewport(bottom bool) bool {
	content := ui.RenderTranscript(m.orch.Transcript().Messages(), m.viewport.Width, m.now(), m.style)
	sig := hashString(content)
	if sig == m.lastTranscriptSig {
		return false
	}
	m.lastTranscriptSig = sig
	m.viewport.SetContent(content)
	if bottom {
		m.viewport.GotoBottom()
	}
	return true
}
