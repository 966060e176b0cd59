package studio

import "sort"

// modelCapability describes what a video model can do beyond text_to_video
// and extend_video, which every known model supports.
type modelCapability struct {
	label    string
	advanced bool // frames, references and avatars
}

var videoModels = map[string]modelCapability{
	"veo-3.1-generate-preview":      {label: "Veo 3.1", advanced: true},
	"veo-3.1-fast-generate-preview": {label: "Veo 3.1 Fast", advanced: true},
	"veo-3.0-generate-001":          {label: "Veo 3"},
	"veo-3.0-fast-generate-001":     {label: "Veo 3 Fast"},
	"veo-2.0-generate-001":          {label: "Veo 2"},
}

// DefaultVideoModel is used when neither config nor the user picks a model.
const DefaultVideoModel = "veo-3.1-fast-generate-preview"

// IsAdvancedModel reports whether model belongs to the 3.1 class.
func IsAdvancedModel(model string) bool {
	return videoModels[model].advanced
}

// KnownModel reports whether model is in the capability table.
func KnownModel(model string) bool {
	_, ok := videoModels[model]
	return ok
}

// SupportsSubMode is the one place sub-mode availability is decided.
func SupportsSubMode(model string, sub VideoSubMode) bool {
	switch sub {
	case TextToVideo, ExtendVideo:
		return true
	case FramesToVideo, ReferencesToVideo:
		return IsAdvancedModel(model)
	}
	return false
}

func SupportsAvatar(model string) bool {
	return IsAdvancedModel(model)
}

// ModelLabel returns the display name, falling back to the raw id.
func ModelLabel(model string) string {
	if c, ok := videoModels[model]; ok {
		return c.label
	}
	return model
}

// VideoModels returns known model ids, 3.1-class first.
func VideoModels() []string {
	out := make([]string, 0, len(videoModels))
	for id := range videoModels {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := videoModels[out[i]].advanced, videoModels[out[j]].advanced
		if ai != aj {
			return ai
		}
		return out[i] > out[j]
	})
	return out
}
