package studio

import "context"

// MediaPayload is an inline attachment on the wire; Data is base64.
type MediaPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// VideoHandle points the backend at a previously generated video.
type VideoHandle struct {
	URI string `json:"uri"`
}

// GenerateRequest is the body of POST generate-unified.
type GenerateRequest struct {
	Mode            Mode           `json:"mode"`
	Prompt          string         `json:"prompt"`
	ConversationID  string         `json:"conversationId"`
	Images          []MediaPayload `json:"images,omitempty"`
	VideoMode       VideoSubMode   `json:"videoMode,omitempty"`
	Model           string         `json:"model,omitempty"`
	AspectRatio     string         `json:"aspectRatio,omitempty"`
	Resolution      string         `json:"resolution,omitempty"`
	StartFrame      *MediaPayload  `json:"startFrame,omitempty"`
	EndFrame        *MediaPayload  `json:"endFrame,omitempty"`
	ReferenceImages []MediaPayload `json:"referenceImages,omitempty"`
	InputVideo      *VideoHandle   `json:"inputVideo,omitempty"`
	Script          string         `json:"script,omitempty"`
	ExecutionPlan   *ExecutionPlan `json:"executionPlan,omitempty"`
	AvatarID        string         `json:"avatarId,omitempty"`
}

// GenerateResponse is the body returned by generate-unified.
type GenerateResponse struct {
	ConversationID string         `json:"conversationId"`
	Message        Message        `json:"message"`
	Usage          *TokenUsage    `json:"usage,omitempty"`
	Cost           *Cost          `json:"cost,omitempty"`
	SessionCost    *SessionCost   `json:"sessionCost,omitempty"`
	ExecutionPlan  *ExecutionPlan `json:"executionPlan,omitempty"`
	SceneResults   []SceneResult  `json:"sceneResults,omitempty"`
}

// ConversationHistory is the body returned by GET conversations/{id}.
type ConversationHistory struct {
	ID          string       `json:"id"`
	Messages    []Message    `json:"messages"`
	SessionCost *SessionCost `json:"sessionCost,omitempty"`
}

// LikeResult is the server's answer to a like toggle. Deleted means the
// asset no longer exists anywhere.
type LikeResult struct {
	Asset   Asset
	Liked   bool
	Deleted bool
}

type DownloadResult struct {
	Asset     Asset
	Downloads int
}

// Backend is the generation contract the orchestrator drives.
type Backend interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Conversation(ctx context.Context, id string) (*ConversationHistory, error)
}

// AssetBackend is the interaction contract for generated assets.
type AssetBackend interface {
	ToggleLike(ctx context.Context, assetID string) (*LikeResult, error)
	IncrementDownload(ctx context.Context, assetID string) (*DownloadResult, error)
}
