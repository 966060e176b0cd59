package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errEmptyResponse = errors.New("backend returned an empty response")

// SubmitOptions carries collaborator state read at request time.
type SubmitOptions struct {
	// AvatarID is the active persona, if any.
	AvatarID string
}

// Outcome describes what a successful generation changed.
type Outcome struct {
	ConversationID string
	// Adopted is set when the backend replaced the provisional conversation id.
	Adopted       bool
	Message       Message
	PendingPlan   *PlanSession
	SceneOutcomes []SceneOutcome
}

type Options struct {
	Logger *zap.Logger
	Video  VideoParams
	Now    func() time.Time
	// OnConversationChange fires once when the backend issues a canonical id
	// for the current conversation.
	OnConversationChange func(previous, current string)
}

// Orchestrator turns user input into generation requests and merges the
// responses into the transcript. At most one generation is in flight.
type Orchestrator struct {
	backend    Backend
	logger     *zap.Logger
	resolver   *ModeResolver
	transcript *Transcript
	now        func() time.Time
	onIdentity func(previous, current string)

	mu             sync.Mutex
	conversationID string
	provisional    bool
	epoch          uint64
	inFlight       bool
	inFlightEpoch  uint64
	plan           *PlanSession
	loadSeq        uint64
	loadCancel     context.CancelFunc
}

func NewOrchestrator(backend Backend, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		backend:    backend,
		logger:     logger,
		resolver:   NewModeResolver(opts.Video, logger),
		transcript: NewTranscript(),
		now:        now,
		onIdentity: opts.OnConversationChange,
	}
	o.NewConversation()
	return o
}

func (o *Orchestrator) Resolver() *ModeResolver { return o.resolver }
func (o *Orchestrator) Transcript() *Transcript { return o.transcript }

// TranscriptView exposes the transcript to asset sync.
func (o *Orchestrator) TranscriptView() AssetView {
	return transcriptView{t: o.transcript, reload: o.Reload}
}

func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// Provisional reports whether the current id was minted locally and has not
// been confirmed by the backend yet.
func (o *Orchestrator) Provisional() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.provisional
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// PendingPlan returns the plan under review, or nil.
func (o *Orchestrator) PendingPlan() *PlanSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// DiscardPlan drops the plan under review.
func (o *Orchestrator) DiscardPlan() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.plan == nil {
		return ErrNoPendingPlan
	}
	if o.plan.State() == PlanBuilding {
		return fmt.Errorf("%w: build in progress", ErrPlanState)
	}
	o.plan = nil
	return nil
}

// ExtendFrom targets a video asset in the transcript for extend_video.
func (o *Orchestrator) ExtendFrom(assetID string) error {
	a, ok := o.transcript.FindAsset(assetID)
	if !ok {
		return fmt.Errorf("asset %s not found in conversation", assetID)
	}
	return o.resolver.SetExtendTarget(a)
}

func encodeMedia(m UploadedMedia) MediaPayload {
	return MediaPayload{MimeType: m.MimeType, Data: base64.StdEncoding.EncodeToString(m.RawData)}
}

// BuildRequest validates the resolver state and produces the request body.
// It performs no I/O.
func BuildRequest(text string, st ResolverState, conversationID string, opts SubmitOptions) (*GenerateRequest, error) {
	text = strings.TrimSpace(text)
	invalid := func(err error) error {
		return &ValidationError{Mode: st.Mode, SubMode: st.SubMode, Err: err}
	}
	req := &GenerateRequest{Mode: st.Mode, Prompt: text, ConversationID: conversationID}

	switch st.Mode {
	case ModeVideo:
		sub := st.SubMode
		if !SupportsSubMode(st.Video.Model, sub) {
			return nil, invalid(ErrModeUnsupported)
		}
		req.VideoMode = sub
		req.Model = st.Video.Model
		req.AspectRatio = st.Video.AspectRatio
		req.Resolution = st.Video.Resolution
		switch sub {
		case FramesToVideo:
			if len(st.Staged) != 2 {
				return nil, invalid(ErrFramesRequired)
			}
			start, end := encodeMedia(st.Staged[0]), encodeMedia(st.Staged[1])
			req.StartFrame, req.EndFrame = &start, &end
		case ReferencesToVideo:
			if len(st.Staged) == 0 {
				return nil, invalid(ErrReferencesRequired)
			}
			for _, m := range st.Staged {
				req.ReferenceImages = append(req.ReferenceImages, encodeMedia(m))
			}
		case ExtendVideo:
			if st.ExtendTarget == nil || st.ExtendTarget.URI == "" {
				return nil, invalid(ErrExtendTargetRequired)
			}
			req.InputVideo = &VideoHandle{URI: st.ExtendTarget.URI}
		}
		if text == "" && sub != ExtendVideo {
			return nil, invalid(ErrEmptyPrompt)
		}
		if opts.AvatarID != "" && SupportsAvatar(st.Video.Model) {
			req.AvatarID = opts.AvatarID
		}
	case ModePlan:
		if text == "" {
			return nil, invalid(ErrEmptyPrompt)
		}
		req.Script = text
		req.AvatarID = opts.AvatarID
	case ModeAuto, ModeText, ModeImage:
		if text == "" && len(st.Staged) == 0 {
			return nil, invalid(ErrEmptyPrompt)
		}
		for _, m := range st.Staged {
			req.Images = append(req.Images, encodeMedia(m))
		}
		req.AvatarID = opts.AvatarID
	default:
		return nil, invalid(ErrUnknownMode)
	}
	return req, nil
}

// Submit validates and sends the user's input. The user message is echoed
// into the transcript before the request and stays there if it fails.
func (o *Orchestrator) Submit(ctx context.Context, text string, opts SubmitOptions) (*Outcome, error) {
	st := o.resolver.State()

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	req, err := BuildRequest(text, st, o.conversationID, opts)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.transcript.Append(Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   strings.TrimSpace(text),
		Timestamp: o.now(),
	})
	o.inFlight, o.inFlightEpoch = true, o.epoch
	epoch := o.epoch
	o.mu.Unlock()

	o.logger.Info("generation submitted",
		zap.String("conversation", req.ConversationID),
		zap.String("mode", string(req.Mode)),
		zap.String("videoMode", string(req.VideoMode)),
		zap.Int("images", len(req.Images)+len(req.ReferenceImages)))

	resp, err := o.backend.Generate(ctx, req)
	return o.finish(epoch, resp, err, nil, nil)
}

// BuildPlan submits the pending plan, edited or not, as one request.
func (o *Orchestrator) BuildPlan(ctx context.Context, opts SubmitOptions) (*Outcome, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	session := o.plan
	if session == nil {
		o.mu.Unlock()
		return nil, ErrNoPendingPlan
	}
	plan, err := session.StartBuild()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	req := &GenerateRequest{
		Mode:           modePlanExecution,
		ConversationID: o.conversationID,
		ExecutionPlan:  plan,
		AvatarID:       opts.AvatarID,
	}
	o.inFlight, o.inFlightEpoch = true, o.epoch
	epoch := o.epoch
	o.mu.Unlock()

	o.logger.Info("plan build submitted",
		zap.String("conversation", req.ConversationID),
		zap.Int("scenes", len(plan.Scenes)),
		zap.String("scriptHash", plan.ScriptHash))

	resp, err := o.backend.Generate(ctx, req)
	return o.finish(epoch, resp, err, session, plan)
}

func (o *Orchestrator) finish(epoch uint64, resp *GenerateResponse, err error, session *PlanSession, built *ExecutionPlan) (*Outcome, error) {
	var adopted [2]string

	o.mu.Lock()
	o.inFlight = false
	if err == nil && resp == nil {
		err = errEmptyResponse
	}
	if err != nil {
		o.mu.Unlock()
		if session != nil {
			session.failBuild(err)
		}
		o.logger.Warn("generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if epoch != o.epoch {
		o.mu.Unlock()
		if session != nil {
			session.failBuild(ErrStaleResult)
		}
		o.logger.Info("dropping generation result for inactive conversation",
			zap.String("conversation", resp.ConversationID))
		return nil, ErrStaleResult
	}

	out := &Outcome{ConversationID: o.conversationID}
	if resp.ConversationID != "" && resp.ConversationID != o.conversationID {
		adopted = [2]string{o.conversationID, resp.ConversationID}
		o.conversationID = resp.ConversationID
		o.provisional = false
		out.ConversationID, out.Adopted = resp.ConversationID, true
	} else if resp.ConversationID != "" {
		o.provisional = false
	}

	msg := resp.Message
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = o.now()
	}
	if msg.Usage == nil {
		msg.Usage = resp.Usage
	}
	if msg.Cost == nil {
		msg.Cost = resp.Cost
	}
	if session != nil {
		if msg.SceneResults == nil {
			msg.SceneResults = resp.SceneResults
		}
		if msg.ExecutionPlan == nil {
			msg.ExecutionPlan = built
		}
	} else if resp.ExecutionPlan != nil {
		if msg.ExecutionPlan == nil {
			msg.ExecutionPlan = resp.ExecutionPlan
		}
		if verr := resp.ExecutionPlan.Validate(); verr != nil {
			o.logger.Warn("received plan needs edits before it can build", zap.Error(verr))
		}
		o.plan = NewPlanSession(resp.ExecutionPlan)
		out.PendingPlan = o.plan
	}

	o.transcript.Append(msg)
	o.transcript.Accumulate(resp.SessionCost, msg.Cost, msg.Usage)
	o.mu.Unlock()

	if session != nil {
		session.applyBuild(msg.SceneResults)
	}
	o.resolver.ResetAfterTurn()

	if adopted[1] != "" {
		o.logger.Info("conversation id adopted",
			zap.String("provisional", adopted[0]), zap.String("canonical", adopted[1]))
		if o.onIdentity != nil {
			o.onIdentity(adopted[0], adopted[1])
		}
	}

	out.Message = msg.clone()
	out.SceneOutcomes = msg.SceneOutcomes()
	return out, nil
}

func (o *Orchestrator) cancelLoadLocked() {
	if o.loadCancel != nil {
		o.loadCancel()
		o.loadCancel = nil
	}
}

// NewConversation starts an empty conversation under a provisional id.
func (o *Orchestrator) NewConversation() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelLoadLocked()
	o.loadSeq++
	o.epoch++
	o.conversationID = uuid.NewString()
	o.provisional = true
	o.plan = nil
	o.transcript.Reset(nil, nil)
	return o.conversationID
}

// OpenConversation switches to id and loads its history. A fetch still
// outstanding from an earlier switch is cancelled and its result ignored.
func (o *Orchestrator) OpenConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	o.cancelLoadLocked()
	o.loadSeq++
	o.epoch++
	seq := o.loadSeq
	o.conversationID = id
	o.provisional = false
	o.plan = nil
	o.transcript.Reset(nil, nil)
	lctx, cancel := context.WithCancel(ctx)
	o.loadCancel = cancel
	o.mu.Unlock()

	return o.fetchHistory(lctx, cancel, seq, id)
}

// Reload re-fetches the active conversation. It is a no-op for a
// provisional conversation or while a generation for it is in flight.
func (o *Orchestrator) Reload(ctx context.Context) error {
	o.mu.Lock()
	if o.provisional || (o.inFlight && o.inFlightEpoch == o.epoch) {
		o.mu.Unlock()
		return nil
	}
	o.cancelLoadLocked()
	o.loadSeq++
	seq := o.loadSeq
	id := o.conversationID
	lctx, cancel := context.WithCancel(ctx)
	o.loadCancel = cancel
	o.mu.Unlock()

	return o.fetchHistory(lctx, cancel, seq, id)
}

func (o *Orchestrator) fetchHistory(ctx context.Context, cancel context.CancelFunc, seq uint64, id string) error {
	defer cancel()
	h, err := o.backend.Conversation(ctx, id)

	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.loadSeq {
		o.logger.Debug("ignoring stale conversation fetch", zap.String("conversation", id))
		return ErrStaleResult
	}
	o.loadCancel = nil
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", id, err)
	}
	if o.inFlight && o.inFlightEpoch == o.epoch {
		return nil
	}
	o.transcript.Reset(h.Messages, h.SessionCost)
	return nil
}
