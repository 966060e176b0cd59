package studio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func image(data ...byte) UploadedMedia {
	if len(data) == 0 {
		data = []byte{0x89, 'P', 'N', 'G'}
	}
	return UploadedMedia{MimeType: "image/png", RawData: data}
}

func TestSetModeClearsStagedMedia(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	_, err := r.Attach(image())
	require.NoError(t, err)
	require.Len(t, r.State().Staged, 1)

	require.NoError(t, r.SetMode(ModeVideo, FramesToVideo))
	st := r.State()
	assert.Equal(t, ModeVideo, st.Mode)
	assert.Equal(t, FramesToVideo, st.SubMode)
	assert.Empty(t, st.Staged)
}

func TestSetModeRejectsSubModeTheModelCannotDo(t *testing.T) {
	r := NewModeResolver(VideoParams{Model: "veo-3.0-generate-001"}, nil)

	err := r.SetMode(ModeVideo, ReferencesToVideo)
	require.ErrorIs(t, err, ErrModeUnsupported)
	assert.Equal(t, ModeAuto, r.State().Mode)

	require.NoError(t, r.SetMode(ModeVideo, TextToVideo))
	require.NoError(t, r.SetMode(ModeVideo, ExtendVideo))
}

func TestSetModeUnknown(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.ErrorIs(t, r.SetMode("music", ""), ErrUnknownMode)
	require.ErrorIs(t, r.SetMode(ModeVideo, "slideshow"), ErrUnknownMode)
}

func TestModelDowngradeResetsMediaDrivenSubMode(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.Equal(t, DefaultVideoModel, r.State().Video.Model)
	require.NoError(t, r.SetMode(ModeVideo, ReferencesToVideo))
	_, err := r.Attach(image(1))
	require.NoError(t, err)
	_, err = r.Attach(image(2))
	require.NoError(t, err)

	r.SetModel("veo-3.0-fast-generate-001")

	st := r.State()
	assert.Equal(t, "veo-3.0-fast-generate-001", st.Video.Model)
	assert.Equal(t, ModeVideo, st.Mode)
	assert.Equal(t, TextToVideo, st.SubMode)
	assert.Empty(t, st.Staged)
}

func TestModelChangeWithinClassKeepsStaging(t *testing.T) {
	r := NewModeResolver(VideoParams{AspectRatio: "16:9"}, nil)
	require.NoError(t, r.SetMode(ModeVideo, FramesToVideo))
	_, err := r.Attach(image(1))
	require.NoError(t, err)

	r.SetModel("veo-3.1-generate-preview")

	st := r.State()
	assert.Equal(t, FramesToVideo, st.SubMode)
	assert.Len(t, st.Staged, 1)
	assert.Equal(t, "16:9", st.Video.AspectRatio)
}

func TestStagingCapacity(t *testing.T) {
	cases := []struct {
		mode Mode
		sub  VideoSubMode
		want int
	}{
		{ModeAuto, "", 4},
		{ModeText, "", 4},
		{ModeImage, "", 4},
		{ModeVideo, FramesToVideo, 2},
		{ModeVideo, ReferencesToVideo, 3},
		{ModeVideo, TextToVideo, 0},
		{ModeVideo, ExtendVideo, 0},
		{ModePlan, "", 0},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode)+"/"+string(tc.sub), func(t *testing.T) {
			assert.Equal(t, tc.want, StagingCapacity(tc.mode, tc.sub))
		})
	}
}

func TestAttachBeyondCapacity(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.NoError(t, r.SetMode(ModeVideo, FramesToVideo))

	start, err := r.Attach(image(1))
	require.NoError(t, err)
	end, err := r.Attach(image(2))
	require.NoError(t, err)
	assert.Equal(t, "Start frame", start.Label)
	assert.Equal(t, "End frame", end.Label)
	assert.NotEmpty(t, start.ID)

	_, err = r.Attach(image(3))
	require.ErrorIs(t, err, ErrStagingFull)
	assert.Len(t, r.State().Staged, 2)
}

func TestAttachRejectedInTextOnlyModes(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.NoError(t, r.SetMode(ModePlan, ""))
	_, err := r.Attach(image())
	require.ErrorIs(t, err, ErrStagingFull)
}

func TestDetachRelabels(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.NoError(t, r.SetMode(ModeVideo, ReferencesToVideo))
	first, err := r.Attach(image(1))
	require.NoError(t, err)
	_, err = r.Attach(image(2))
	require.NoError(t, err)

	require.True(t, r.Detach(first.ID))
	require.False(t, r.Detach(first.ID))

	staged := r.State().Staged
	require.Len(t, staged, 1)
	assert.Equal(t, "Reference 1", staged[0].Label)
	assert.Equal(t, []byte{2}, staged[0].RawData)
}

func TestValidateMedia(t *testing.T) {
	require.NoError(t, ValidateMedia("image/JPEG", 10))
	require.NoError(t, ValidateMedia("image/webp; q=1", 10))
	require.ErrorIs(t, ValidateMedia("text/plain", 10), ErrUnsupportedMedia)
	require.ErrorIs(t, ValidateMedia("image/png", 0), ErrUnsupportedMedia)
	require.ErrorIs(t, ValidateMedia("image/png", MaxMediaBytes+1), ErrMediaTooLarge)
	require.NoError(t, ValidateMedia("image/gif", MaxMediaBytes))
}

func TestSetExtendTarget(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)

	err := r.SetExtendTarget(Asset{ID: "img", Type: AssetImage, URL: "https://x/img.png"})
	require.ErrorIs(t, err, ErrNotExtendable)
	assert.Equal(t, ModeAuto, r.State().Mode)

	require.NoError(t, r.SetExtendTarget(Asset{ID: "v1", Type: AssetVideo, URI: "files/v1"}))
	st := r.State()
	assert.Equal(t, ModeVideo, st.Mode)
	assert.Equal(t, ExtendVideo, st.SubMode)
	require.NotNil(t, st.ExtendTarget)
	assert.Equal(t, "files/v1", st.ExtendTarget.URI)

	require.NoError(t, r.SetMode(ModeVideo, TextToVideo))
	assert.Nil(t, r.State().ExtendTarget)
}

func TestResetAfterTurn(t *testing.T) {
	r := NewModeResolver(VideoParams{}, nil)
	require.NoError(t, r.SetMode(ModeImage, ""))
	_, err := r.Attach(image())
	require.NoError(t, err)

	r.ResetAfterTurn()
	st := r.State()
	assert.Equal(t, ModeImage, st.Mode)
	assert.Empty(t, st.Staged)

	require.NoError(t, r.SetMode(ModeVideo, FramesToVideo))
	r.ResetAfterTurn()
	st = r.State()
	assert.Equal(t, ModeAuto, st.Mode)
	assert.Equal(t, TextToVideo, st.SubMode)
}

func TestCapabilityTable(t *testing.T) {
	assert.True(t, SupportsAvatar("veo-3.1-generate-preview"))
	assert.False(t, SupportsAvatar("veo-2.0-generate-001"))
	assert.False(t, SupportsSubMode("unknown-model", FramesToVideo))
	assert.True(t, SupportsSubMode("unknown-model", TextToVideo))
	assert.Equal(t, "Veo 3", ModelLabel("veo-3.0-generate-001"))
	assert.Equal(t, "custom", ModelLabel("custom"))

	models := VideoModels()
	require.Len(t, models, 5)
	assert.True(t, IsAdvancedModel(models[0]))
	assert.True(t, IsAdvancedModel(models[1]))
	assert.False(t, IsAdvancedModel(models[2]))
}
