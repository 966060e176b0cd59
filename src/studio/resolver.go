package studio

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// VideoParams are the user's video settings.
type VideoParams struct {
	Model       string `json:"model"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// ResolverState is a consistent snapshot of the resolver.
type ResolverState struct {
	Mode         Mode
	SubMode      VideoSubMode
	Video        VideoParams
	ExtendTarget *Asset
	Staged       []UploadedMedia
}

// ModeResolver owns the current mode, the video settings, the pending extend
// target and the staged media. Changing mode never carries media over.
type ModeResolver struct {
	mu      sync.Mutex
	mode    Mode
	sub     VideoSubMode
	video   VideoParams
	extend  *Asset
	staging *MediaStager
	logger  *zap.Logger
}

func NewModeResolver(video VideoParams, logger *zap.Logger) *ModeResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if video.Model == "" {
		video.Model = DefaultVideoModel
	}
	return &ModeResolver{
		mode:    ModeAuto,
		sub:     TextToVideo,
		video:   video,
		staging: NewMediaStager(),
		logger:  logger,
	}
}

// SetMode switches mode and sub-mode. sub is ignored outside video mode and
// defaults to text_to_video when empty.
func (r *ModeResolver) SetMode(mode Mode, sub VideoSubMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if sub == "" {
		sub = TextToVideo
	}
	if !sub.Valid() {
		return fmt.Errorf("%w: video sub-mode %q", ErrUnknownMode, sub)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == ModeVideo && !SupportsSubMode(r.video.Model, sub) {
		return fmt.Errorf("%w: %s with %s", ErrModeUnsupported, sub, ModelLabel(r.video.Model))
	}
	r.setModeLocked(mode, sub)
	return nil
}

func (r *ModeResolver) setModeLocked(mode Mode, sub VideoSubMode) {
	if mode != ModeVideo {
		sub = TextToVideo
	}
	r.mode, r.sub = mode, sub
	r.staging.Clear()
	r.extend = nil
}

// SetVideoParams updates video settings. Moving to a model that cannot do
// the current media-driven sub-mode drops back to text_to_video and clears
// staged media.
func (r *ModeResolver) SetVideoParams(p VideoParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Model == "" {
		p.Model = r.video.Model
	}
	changed := p.Model != r.video.Model
	r.video = p
	if changed && r.sub.mediaDriven() && !SupportsSubMode(p.Model, r.sub) {
		r.logger.Info("video sub-mode reset after model change",
			zap.String("model", p.Model), zap.String("from", string(r.sub)))
		r.sub = TextToVideo
		r.staging.Clear()
	}
}

// SetModel is SetVideoParams with only the model changed.
func (r *ModeResolver) SetModel(model string) {
	r.mu.Lock()
	p := r.video
	r.mu.Unlock()
	p.Model = model
	r.SetVideoParams(p)
}

// SetExtendTarget switches to video/extend_video and remembers the asset
// whose uri seeds the request.
func (r *ModeResolver) SetExtendTarget(a Asset) error {
	if !a.Extendable() {
		return fmt.Errorf("%w: %s", ErrNotExtendable, a.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setModeLocked(ModeVideo, ExtendVideo)
	r.extend = &a
	return nil
}

// Attach stages media using the current mode's capacity and labels.
func (r *ModeResolver) Attach(m UploadedMedia) (UploadedMedia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staging.add(m, r.mode, r.sub)
}

func (r *ModeResolver) Detach(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staging.Remove(id, r.mode, r.sub)
}

// ResetAfterTurn clears per-turn state after a successful generation.
// One-shot modes fall back to auto.
func (r *ModeResolver) ResetAfterTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staging.Clear()
	r.extend = nil
	if r.mode.oneShot() {
		r.mode, r.sub = ModeAuto, TextToVideo
	}
}

func (r *ModeResolver) State() ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := ResolverState{
		Mode:    r.mode,
		SubMode: r.sub,
		Video:   r.video,
		Staged:  r.staging.Items(),
	}
	if r.extend != nil {
		a := *r.extend
		st.ExtendTarget = &a
	}
	return st
}
