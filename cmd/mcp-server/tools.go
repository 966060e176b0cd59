package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	toolGenerate         = "studio_generate"
	toolOpenConversation = "studio_open_conversation"
	toolNewConversation  = "studio_new_conversation"
	toolPlanShow         = "studio_plan_show"
	toolPlanEditScene    = "studio_plan_edit_scene"
	toolPlanBuild        = "studio_plan_build"
	toolPlanDiscard      = "studio_plan_discard"
	toolToggleLike       = "studio_toggle_like"
	toolRecordDownload   = "studio_record_download"
)

// studioTools exposes one studio session to MCP clients.
type studioTools struct {
	orch   *studio.Orchestrator
	assets *studio.AssetSync
	avatar string
	logger *zap.Logger
}

func newStudioTools(backend studio.Backend, assetBackend studio.AssetBackend, video studio.VideoParams, avatar string, logger *zap.Logger) *studioTools {
	orch := studio.NewOrchestrator(backend, studio.Options{Logger: logger.Named("orchestrator"), Video: video})
	assets := studio.NewAssetSync(assetBackend, nil, logger.Named("assets"))
	assets.Register(orch.TranscriptView())
	return &studioTools{orch: orch, assets: assets, avatar: avatar, logger: logger}
}

func (t *studioTools) register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool(toolGenerate,
		mcp.WithDescription("Generate text, images, video or a production plan in the current conversation"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What to generate")),
		mcp.WithString("mode", mcp.Description("auto, text, image, video or plan (default auto)")),
		mcp.WithString("video_mode", mcp.Description("text_to_video or extend_video when mode is video")),
		mcp.WithString("model", mcp.Description("Video model id")),
		mcp.WithString("aspect_ratio", mcp.Description("16:9 or 9:16")),
		mcp.WithString("resolution", mcp.Description("720p or 1080p")),
		mcp.WithString("extend_asset_id", mcp.Description("Video asset to extend; implies video/extend_video")),
		mcp.WithString("avatar_id", mcp.Description("Persona to apply")),
	), t.handleGenerate)

	s.AddTool(mcp.NewTool(toolOpenConversation,
		mcp.WithDescription("Switch to an existing conversation and load its history"),
		mcp.WithString("conversation_id", mcp.Required()),
	), t.handleOpenConversation)

	s.AddTool(mcp.NewTool(toolNewConversation,
		mcp.WithDescription("Start a new, empty conversation"),
	), t.handleNewConversation)

	s.AddTool(mcp.NewTool(toolPlanShow,
		mcp.WithDescription("Show the execution plan waiting for review"),
	), t.handlePlanShow)

	s.AddTool(mcp.NewTool(toolPlanEditScene,
		mcp.WithDescription("Edit one scene of the pending execution plan"),
		mcp.WithString("scene_id", mcp.Required()),
		mcp.WithString("prompt"),
		mcp.WithString("description"),
		mcp.WithString("mode", mcp.Description("Video sub-mode for the scene")),
		mcp.WithString("model"),
		mcp.WithString("duration_hint"),
		mcp.WithString("dependencies", mcp.Description("Comma separated scene ids; empty clears them")),
	), t.handlePlanEditScene)

	s.AddTool(mcp.NewTool(toolPlanBuild,
		mcp.WithDescription("Build the pending execution plan, edited or not"),
	), t.handlePlanBuild)

	s.AddTool(mcp.NewTool(toolPlanDiscard,
		mcp.WithDescription("Discard the pending execution plan"),
	), t.handlePlanDiscard)

	s.AddTool(mcp.NewTool(toolToggleLike,
		mcp.WithDescription("Like or unlike a generated asset"),
		mcp.WithString("asset_id", mcp.Required()),
	), t.handleToggleLike)

	s.AddTool(mcp.NewTool(toolRecordDownload,
		mcp.WithDescription("Count a download of a generated asset"),
		mcp.WithString("asset_id", mcp.Required()),
	), t.handleRecordDownload)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

type generateResult struct {
	ConversationID string                `json:"conversationId"`
	Message        studio.Message        `json:"message"`
	PlanPending    bool                  `json:"planPending"`
	SceneOutcomes  []studio.SceneOutcome `json:"sceneOutcomes,omitempty"`
	SessionCost    studio.SessionCost    `json:"sessionCost"`
}

func (t *studioTools) outcome(out *studio.Outcome) (*mcp.CallToolResult, error) {
	return jsonResult(generateResult{
		ConversationID: out.ConversationID,
		Message:        out.Message,
		PlanPending:    out.PendingPlan != nil,
		SceneOutcomes:  out.SceneOutcomes,
		SessionCost:    t.orch.Transcript().Cost(),
	})
}

func (t *studioTools) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := request.GetString("prompt", "")
	resolver := t.orch.Resolver()

	video := resolver.State().Video
	if v := request.GetString("model", ""); v != "" {
		if !studio.KnownModel(v) {
			return errorResult(fmt.Errorf("unknown video model %q", v))
		}
		video.Model = v
	}
	if v := request.GetString("aspect_ratio", ""); v != "" {
		video.AspectRatio = v
	}
	if v := request.GetString("resolution", ""); v != "" {
		video.Resolution = v
	}
	resolver.SetVideoParams(video)

	if id := request.GetString("extend_asset_id", ""); id != "" {
		if err := t.orch.ExtendFrom(id); err != nil {
			return errorResult(err)
		}
	} else {
		mode := studio.Mode(request.GetString("mode", string(studio.ModeAuto)))
		sub := studio.VideoSubMode(request.GetString("video_mode", ""))
		if err := resolver.SetMode(mode, sub); err != nil {
			return errorResult(err)
		}
	}

	avatar := request.GetString("avatar_id", t.avatar)
	out, err := t.orch.Submit(ctx, prompt, studio.SubmitOptions{AvatarID: avatar})
	if err != nil {
		return errorResult(err)
	}
	return t.outcome(out)
}

func (t *studioTools) handleOpenConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(request.GetString("conversation_id", ""))
	if id == "" {
		return errorResult(fmt.Errorf("conversation_id is required"))
	}
	if err := t.orch.OpenConversation(ctx, id); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"conversationId": id,
		"messages":       t.orch.Transcript().Messages(),
		"sessionCost":    t.orch.Transcript().Cost(),
	})
}

func (t *studioTools) handleNewConversation(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := t.orch.NewConversation()
	return jsonResult(map[string]any{"conversationId": id, "provisional": true})
}

func (t *studioTools) pending() (*studio.PlanSession, error) {
	session := t.orch.PendingPlan()
	if session == nil {
		return nil, studio.ErrNoPendingPlan
	}
	return session, nil
}

func (t *studioTools) handlePlanShow(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := t.pending()
	if err != nil {
		return errorResult(err)
	}
	plan := session.Current()
	view := map[string]any{
		"state": session.State().String(),
		"plan":  plan,
	}
	if stages, err := plan.Stages(); err == nil {
		view["stages"] = stages
	}
	if err := plan.Validate(); err != nil {
		view["needsEdits"] = err.Error()
	}
	if err := session.LastError(); err != nil {
		view["lastBuildError"] = err.Error()
	}
	return jsonResult(view)
}

func (t *studioTools) handlePlanEditScene(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := t.pending()
	if err != nil {
		return errorResult(err)
	}
	args := request.GetArguments()
	var patch studio.ScenePatch
	str := func(name string) *string {
		v, ok := args[name].(string)
		if !ok {
			return nil
		}
		return &v
	}
	patch.Prompt = str("prompt")
	patch.Description = str("description")
	patch.Model = str("model")
	patch.DurationHint = str("duration_hint")
	if v := str("mode"); v != nil {
		sub := studio.VideoSubMode(*v)
		patch.Mode = &sub
	}
	if v := str("dependencies"); v != nil {
		patch.SetDependencies = true
		patch.Dependencies = []string{}
		for _, d := range strings.Split(*v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				patch.Dependencies = append(patch.Dependencies, d)
			}
		}
	}
	if session.State() == studio.PlanProposed {
		if err := session.BeginEdit(); err != nil {
			return errorResult(err)
		}
	}
	scene, err := session.EditScene(request.GetString("scene_id", ""), patch)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(scene)
}

func (t *studioTools) handlePlanBuild(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := t.orch.BuildPlan(ctx, studio.SubmitOptions{AvatarID: t.avatar})
	if err != nil {
		return errorResult(err)
	}
	return t.outcome(out)
}

func (t *studioTools) handlePlanDiscard(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.orch.DiscardPlan(); err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText("plan discarded"), nil
}

func (t *studioTools) handleToggleLike(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("asset_id", "")
	res, err := t.assets.ToggleLike(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"assetId": id, "liked": res.Liked, "deleted": res.Deleted})
}

func (t *studioTools) handleRecordDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("asset_id", "")
	res, err := t.assets.RecordDownload(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{"assetId": id, "downloads": res.Downloads})
}
