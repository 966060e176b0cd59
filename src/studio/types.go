package studio

import (
	"time"
)

// Mode is the top-level generation intent selected by the user.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeText  Mode = "text"
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
	ModePlan  Mode = "plan"

	// modePlanExecution is only ever sent by a plan build.
	modePlanExecution Mode = "plan-execution"
)

// Modes lists the user-selectable modes in display order.
func Modes() []Mode {
	return []Mode{ModeAuto, ModeText, ModeImage, ModeVideo, ModePlan}
}

func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeText, ModeImage, ModeVideo, ModePlan:
		return true
	}
	return false
}

// oneShot modes fall back to auto after a successful turn.
func (m Mode) oneShot() bool {
	return m == ModeVideo || m == ModePlan
}

// VideoSubMode is the video generation strategy.
type VideoSubMode string

const (
	TextToVideo       VideoSubMode = "text_to_video"
	FramesToVideo     VideoSubMode = "frames_to_video"
	ReferencesToVideo VideoSubMode = "references_to_video"
	ExtendVideo       VideoSubMode = "extend_video"
)

func VideoSubModes() []VideoSubMode {
	return []VideoSubMode{TextToVideo, FramesToVideo, ReferencesToVideo, ExtendVideo}
}

func (s VideoSubMode) Valid() bool {
	switch s {
	case TextToVideo, FramesToVideo, ReferencesToVideo, ExtendVideo:
		return true
	}
	return false
}

// mediaDriven sub-modes need a 3.1-class model.
func (s VideoSubMode) mediaDriven() bool {
	return s == FramesToVideo || s == ReferencesToVideo
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetOther AssetType = "other"
)

// Asset is a generated artifact embedded in a message.
type Asset struct {
	ID        string    `json:"id"`
	Type      AssetType `json:"type"`
	URL       string    `json:"url"`
	URI       string    `json:"uri,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Liked     bool      `json:"liked,omitempty"`
	Downloads int       `json:"downloads,omitempty"`
	SceneID   string    `json:"sceneId,omitempty"`
}

// Extendable reports whether the asset can seed an extend_video request.
func (a Asset) Extendable() bool {
	return a.Type == AssetVideo && a.URI != ""
}

type TokenUsage struct {
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
	TotalTokens      int `json:"totalTokens"`
}

type Cost struct {
	InputCost  float64 `json:"inputCost,omitempty"`
	OutputCost float64 `json:"outputCost,omitempty"`
	TotalCost  float64 `json:"totalCost"`
	Currency   string  `json:"currency,omitempty"`
}

type SessionCost struct {
	TotalCost   float64 `json:"totalCost"`
	TotalTokens int     `json:"totalTokens"`
	Currency    string  `json:"currency"`
}

// Message is one transcript entry. Once appended only the liked and downloads
// fields of its assets change.
type Message struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	Assets        []Asset        `json:"assets,omitempty"`
	Usage         *TokenUsage    `json:"usage,omitempty"`
	Cost          *Cost          `json:"cost,omitempty"`
	ExecutionPlan *ExecutionPlan `json:"executionPlan,omitempty"`
	SceneResults  []SceneResult  `json:"sceneResults,omitempty"`
}

func (m Message) clone() Message {
	out := m
	out.Assets = append([]Asset(nil), m.Assets...)
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	if m.Cost != nil {
		c := *m.Cost
		out.Cost = &c
	}
	if m.ExecutionPlan != nil {
		out.ExecutionPlan = m.ExecutionPlan.Clone()
	}
	if m.SceneResults != nil {
		out.SceneResults = make([]SceneResult, len(m.SceneResults))
		for i, r := range m.SceneResults {
			out.SceneResults[i] = r.clone()
		}
	}
	return out
}

// SceneOutcome joins a scene result with the scene it reports on.
type SceneOutcome struct {
	Result      SceneResult
	Description string
	Prompt      string
	Failed      bool
}

// SceneOutcomes pairs each scene result with its scene from the message's
// plan, in result order. Results for unknown scenes keep an empty description.
func (m Message) SceneOutcomes() []SceneOutcome {
	if len(m.SceneResults) == 0 {
		return nil
	}
	var byID map[string]Scene
	if m.ExecutionPlan != nil {
		byID = make(map[string]Scene, len(m.ExecutionPlan.Scenes))
		for _, s := range m.ExecutionPlan.Scenes {
			byID[s.ID] = s
		}
	}
	out := make([]SceneOutcome, 0, len(m.SceneResults))
	for _, r := range m.SceneResults {
		o := SceneOutcome{Result: r, Failed: !r.Success}
		if s, ok := byID[r.SceneID]; ok {
			o.Description = s.Description
			o.Prompt = s.Prompt
		}
		out = append(out, o)
	}
	return out
}

// UploadedMedia is a client-side attachment waiting for submission.
type UploadedMedia struct {
	ID         string `json:"id"`
	MimeType   string `json:"mimeType"`
	RawData    []byte `json:"-"`
	PreviewRef string `json:"previewRef,omitempty"`
	Label      string `json:"label,omitempty"`
}

type SceneResult struct {
	SceneID         string   `json:"sceneId"`
	Success         bool     `json:"success"`
	VideoURL        string   `json:"videoUrl,omitempty"`
	VideoURI        string   `json:"videoUri,omitempty"`
	GeneratedImages []string `json:"generatedImages,omitempty"`
	Error           string   `json:"error,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	Cost            *Cost    `json:"cost,omitempty"`
}

func (r SceneResult) clone() SceneResult {
	out := r
	out.GeneratedImages = append([]string(nil), r.GeneratedImages...)
	if r.Cost != nil {
		c := *r.Cost
		out.Cost = &c
	}
	return out
}
