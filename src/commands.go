package src

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/Protocol-Lattice/lattice-studio/src/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const helpText = "/attach <file> · /detach <n|id> · /mode <mode> [sub] · /model [id] · /aspect 16:9|9:16 · " +
	"/resolution 720p|1080p · /extend <asset> · /like <asset> · /download <asset> · " +
	"/plan [edit|cancel|build|discard] · /scene <id> field=value · /avatar [id|off] · /open <id> · /new"

var (
	aspectRatios = map[string]bool{"16:9": true, "9:16": true}
	resolutions  = map[string]bool{"720p": true, "1080p": true}
)

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// runCommand dispatches a slash command typed into the prompt.
func (m *model) runCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	name, args := strings.TrimPrefix(fields[0], "/"), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(raw, fields[0]))
	m.textarea.Reset()

	var cmd tea.Cmd
	var err error
	switch name {
	case "help":
		m.setNotice(helpText)
	case "attach":
		err = m.attach(rest)
	case "detach":
		err = m.detach(rest)
	case "mode":
		err = m.setMode(args)
	case "model":
		err = m.setModel(args)
	case "aspect":
		err = m.setVideoOption(args, aspectRatios, func(p *studio.VideoParams, v string) { p.AspectRatio = v })
	case "resolution":
		err = m.setVideoOption(args, resolutions, func(p *studio.VideoParams, v string) { p.Resolution = v })
	case "extend":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /extend <asset>")
			break
		}
		if err = m.orch.ExtendFrom(args[0]); err == nil {
			m.setNotice("next prompt extends " + args[0])
		}
	case "like":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /like <asset>")
			break
		}
		cmd = m.toggleLike(args[0])
	case "download":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /download <asset>")
			break
		}
		cmd, err = m.download(args[0])
	case "plan":
		cmd, err = m.planCommand(args)
	case "scene":
		err = m.editScene(rest)
	case "avatar":
		switch {
		case len(args) == 0:
			m.setNotice("avatar: " + orNone(m.avatarID))
		case args[0] == "off":
			m.avatarID = ""
			m.setNotice("avatar cleared")
		default:
			m.avatarID = args[0]
			if st := m.orch.Resolver().State(); !studio.SupportsAvatar(st.Video.Model) {
				m.setNotice(fmt.Sprintf("avatar %s set; %s ignores it for video", m.avatarID, studio.ModelLabel(st.Video.Model)))
			} else {
				m.setNotice("avatar " + m.avatarID)
			}
		}
	case "open":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /open <conversation id>")
			break
		}
		cmd = m.openConversation(args[0])
	case "new":
		m.newConversation()
	default:
		err = fmt.Errorf("unknown command /%s, try /help", name)
	}
	if err != nil {
		m.setError(err)
		return nil
	}
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (m *model) attach(file string) error {
	if file == "" {
		return fmt.Errorf("usage: /attach <file>")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	staged, err := m.orch.Resolver().Attach(studio.UploadedMedia{
		ID:         uuid.NewString(),
		MimeType:   http.DetectContentType(data),
		RawData:    data,
		PreviewRef: file,
	})
	if err != nil {
		return err
	}
	m.logger.Debug("media staged", zap.String("id", staged.ID), zap.String("mime", staged.MimeType), zap.Int("bytes", len(data)))
	m.setNotice(fmt.Sprintf("attached %s as %s", filepath.Base(file), staged.Label))
	return nil
}

// detach accepts a 1-based position or an id prefix.
func (m *model) detach(ref string) error {
	staged := m.orch.Resolver().State().Staged
	if ref == "" {
		return fmt.Errorf("usage: /detach <n|id>")
	}
	id := ""
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(staged) {
		id = staged[n-1].ID
	} else {
		for _, s := range staged {
			if strings.HasPrefix(s.ID, ref) {
				id = s.ID
				break
			}
		}
	}
	if id == "" || !m.orch.Resolver().Detach(id) {
		return fmt.Errorf("no attachment %q", ref)
	}
	m.setNotice("attachment removed")
	return nil
}

func (m *model) setMode(args []string) error {
	if len(args) == 0 {
		m.openPicker("Generation mode", modeItems())
		return nil
	}
	var sub studio.VideoSubMode
	if len(args) > 1 {
		sub = studio.VideoSubMode(args[1])
	}
	mode := studio.Mode(args[0])
	if err := m.orch.Resolver().SetMode(mode, sub); err != nil {
		return err
	}
	st := m.orch.Resolver().State()
	m.setNotice("mode " + modeItem{mode: st.Mode, sub: st.SubMode}.Title())
	return nil
}

func (m *model) setModel(args []string) error {
	if len(args) == 0 {
		m.openPicker("Video model", modelItems())
		return nil
	}
	if !studio.KnownModel(args[0]) {
		return fmt.Errorf("unknown video model %q", args[0])
	}
	m.orch.Resolver().SetModel(args[0])
	m.setNotice("video model " + studio.ModelLabel(args[0]))
	return nil
}

func (m *model) setVideoOption(args []string, allowed map[string]bool, set func(*studio.VideoParams, string)) error {
	if len(args) != 1 || !allowed[args[0]] {
		opts := make([]string, 0, len(allowed))
		for k := range allowed {
			opts = append(opts, k)
		}
		sort.Strings(opts)
		return fmt.Errorf("expected one of %s", strings.Join(opts, ", "))
	}
	p := m.orch.Resolver().State().Video
	set(&p, args[0])
	m.orch.Resolver().SetVideoParams(p)
	m.setNotice("video " + args[0])
	return nil
}

func (m *model) toggleLike(id string) tea.Cmd {
	assets, parent, timeout := m.assets, m.ctx, m.cfg.HistoryTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		res, err := assets.ToggleLike(ctx, id)
		return likeMsg{id: id, result: res, err: err}
	}
}

// downloadName picks a file name from the asset url, falling back to the
// asset type. The result is always a single local path element.
func downloadName(a studio.Asset) string {
	ext := ""
	if u, err := url.Parse(a.URL); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" {
		switch a.Type {
		case studio.AssetVideo:
			ext = ".mp4"
		case studio.AssetImage:
			ext = ".png"
		}
	}
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, a.ID+ext)
	if !filepath.IsLocal(name) || strings.Trim(name, ".") == "" {
		name = "asset" + ext
	}
	return name
}

// downloadPath resolves the destination for an asset inside dir.
func downloadPath(dir string, a studio.Asset) (string, error) {
	dest := filepath.Join(dir, downloadName(a))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("asset %s resolves outside %s", a.ID, dir)
	}
	return dest, nil
}

func (m *model) download(id string) (tea.Cmd, error) {
	if m.fetcher == nil {
		return nil, fmt.Errorf("downloads are not available")
	}
	a, ok := m.orch.Transcript().FindAsset(id)
	if !ok {
		return nil, fmt.Errorf("asset %s not found in conversation", id)
	}
	if a.URL == "" {
		return nil, fmt.Errorf("asset %s has no url", id)
	}
	dest, err := downloadPath(m.cfg.DownloadDir, a)
	if err != nil {
		return nil, err
	}
	fetcher, assets, parent, timeout := m.fetcher, m.assets, m.ctx, m.cfg.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		n, err := fetchTo(ctx, fetcher, a.URL, dest)
		if err != nil {
			return downloadMsg{id: id, err: err}
		}
		res, err := assets.RecordDownload(ctx, id)
		return downloadMsg{id: id, path: dest, bytes: n, result: res, err: err}
	}, nil
}

func fetchTo(ctx context.Context, f Fetcher, rawURL, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := f.Fetch(ctx, rawURL, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return n, nil
}

func (m *model) planCommand(args []string) (tea.Cmd, error) {
	session := m.orch.PendingPlan()
	if session == nil {
		return nil, studio.ErrNoPendingPlan
	}
	if len(args) == 0 {
		m.mode = ui.ModePlan
		return nil, nil
	}
	switch args[0] {
	case "edit":
		if err := session.BeginEdit(); err != nil {
			return nil, err
		}
		m.setNotice("editing plan")
	case "cancel":
		if err := session.CancelEdit(); err != nil {
			return nil, err
		}
		m.setNotice("edits discarded")
	case "build":
		return m.buildPlan(), nil
	case "discard":
		if err := m.orch.DiscardPlan(); err != nil {
			return nil, err
		}
		m.setNotice("plan discarded")
	default:
		return nil, fmt.Errorf("usage: /plan [edit|cancel|build|discard]")
	}
	return nil, nil
}

var sceneFields = map[string]bool{
	"prompt": true, "description": true, "mode": true, "model": true, "duration": true,
	"deps": true, "images": true, "pregenerate": true, "aspect": true, "resolution": true,
}

// parseScenePatch reads "field=value" pairs; a value runs until the next
// known field. deps is comma separated and may be empty. images is a
// "|"-separated list of image prompts.
func parseScenePatch(s string) (studio.ScenePatch, error) {
	var patch studio.ScenePatch
	values := map[string][]string{}
	var order []string
	current := ""
	for _, tok := range strings.Fields(s) {
		if k, v, ok := strings.Cut(tok, "="); ok && sceneFields[k] {
			if _, dup := values[k]; !dup {
				order = append(order, k)
			}
			current = k
			values[k] = nil
			if v != "" {
				values[k] = append(values[k], v)
			}
			continue
		}
		if current == "" {
			return patch, fmt.Errorf("expected field=value, got %q", tok)
		}
		values[current] = append(values[current], tok)
	}
	if len(order) == 0 {
		return patch, fmt.Errorf("no fields to edit")
	}
	for _, k := range order {
		v := strings.Join(values[k], " ")
		switch k {
		case "prompt":
			patch.Prompt = &v
		case "description":
			patch.Description = &v
		case "mode":
			sub := studio.VideoSubMode(v)
			patch.Mode = &sub
		case "model":
			patch.Model = &v
		case "duration":
			patch.DurationHint = &v
		case "aspect":
			patch.AspectRatio = &v
		case "resolution":
			patch.Resolution = &v
		case "pregenerate":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return patch, fmt.Errorf("pregenerate: %w", err)
			}
			patch.PreGenerateImages = &b
		case "deps":
			patch.SetDependencies = true
			patch.Dependencies = []string{}
			for _, d := range strings.Split(v, ",") {
				if d = strings.TrimSpace(d); d != "" {
					patch.Dependencies = append(patch.Dependencies, d)
				}
			}
		case "images":
			patch.ImagePrompts = []string{}
			for _, p := range strings.Split(v, "|") {
				if p = strings.TrimSpace(p); p != "" {
					patch.ImagePrompts = append(patch.ImagePrompts, p)
				}
			}
		}
	}
	return patch, nil
}

func (m *model) editScene(rest string) error {
	id, fields, _ := strings.Cut(rest, " ")
	if id == "" {
		return fmt.Errorf("usage: /scene <id> field=value ...")
	}
	session := m.orch.PendingPlan()
	if session == nil {
		return studio.ErrNoPendingPlan
	}
	patch, err := parseScenePatch(fields)
	if err != nil {
		return err
	}
	if session.State() == studio.PlanProposed {
		if err := session.BeginEdit(); err != nil {
			return err
		}
	}
	scene, err := session.EditScene(id, patch)
	if err != nil {
		return err
	}
	m.setNotice(fmt.Sprintf("scene %s updated (%s)", scene.ID, scene.Mode))
	return nil
}
