package studio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *ExecutionPlan {
	return &ExecutionPlan{
		Scenes: []Scene{
			{ID: "s1", Description: "Opening", Prompt: "sunrise over the bay", Mode: TextToVideo, Model: DefaultVideoModel},
			{ID: "s2", Description: "Walk", Prompt: "she walks the pier", Mode: ReferencesToVideo, Model: DefaultVideoModel, Dependencies: []string{"s1"}},
			{ID: "s3", Description: "Close", Prompt: "sunset", Mode: TextToVideo, Dependencies: []string{"s1"}},
		},
		Orchestration: Orchestration{
			ParallelGroups:   [][]string{{"s2", "s3"}},
			SequentialChains: [][]string{{"s1", "s2"}},
		},
		OverallStrategy: "establish, then split",
		ScriptHash:      "9f2c",
	}
}

func strp(s string) *string { return &s }

func TestPlanValidate(t *testing.T) {
	require.NoError(t, samplePlan().Validate())

	cases := map[string]struct {
		mutate func(p *ExecutionPlan)
		want   error
	}{
		"no scenes": {func(p *ExecutionPlan) { p.Scenes = nil }, ErrInvalidPlan},
		"empty id":  {func(p *ExecutionPlan) { p.Scenes[0].ID = " " }, ErrInvalidPlan},
		"duplicate": {func(p *ExecutionPlan) { p.Scenes[2].ID = "s2" }, ErrInvalidPlan},
		"self dependency": {func(p *ExecutionPlan) {
			p.Scenes[0].Dependencies = []string{"s1"}
		}, ErrInvalidPlan},
		"missing dependency": {func(p *ExecutionPlan) {
			p.Scenes[2].Dependencies = []string{"s9"}
		}, ErrUnknownScene},
		"cycle": {func(p *ExecutionPlan) {
			p.Scenes[0].Dependencies = []string{"s3"}
		}, ErrDependencyCycle},
		"orchestration reference": {func(p *ExecutionPlan) {
			p.Orchestration.ParallelGroups = [][]string{{"s2", "ghost"}}
		}, ErrUnknownScene},
		"capability": {func(p *ExecutionPlan) {
			p.Scenes[1].Model = "veo-3.0-generate-001"
		}, ErrModeUnsupported},
		"unknown mode": {func(p *ExecutionPlan) { p.Scenes[0].Mode = "timelapse" }, ErrInvalidPlan},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := samplePlan()
			tc.mutate(p)
			require.ErrorIs(t, p.Validate(), tc.want)
		})
	}
}

func TestPlanStages(t *testing.T) {
	stages, err := samplePlan().Stages()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"s1"}, {"s2", "s3"}}, stages)

	p := samplePlan()
	p.Scenes[0].Dependencies = []string{"s2"}
	_, err = p.Stages()
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestPlanCloneIsIndependent(t *testing.T) {
	p := samplePlan()
	c := p.Clone()
	c.Scenes[1].Dependencies[0] = "s3"
	c.Orchestration.ParallelGroups[0][0] = "s1"
	c.Scenes[0].Prompt = "changed"

	assert.Equal(t, "s1", p.Scenes[1].Dependencies[0])
	assert.Equal(t, "s2", p.Orchestration.ParallelGroups[0][0])
	assert.Equal(t, "sunrise over the bay", p.Scenes[0].Prompt)
	assert.Nil(t, (*ExecutionPlan)(nil).Clone())
}

func TestScenePatchModelChangeForcesTextToVideo(t *testing.T) {
	s := samplePlan().Scenes[1]
	require.NoError(t, ScenePatch{Model: strp("veo-2.0-generate-001")}.apply(&s))
	assert.Equal(t, TextToVideo, s.Mode)
	assert.Equal(t, "veo-2.0-generate-001", s.Model)
}

func TestScenePatchRejectsUnsupportedMode(t *testing.T) {
	s := samplePlan().Scenes[2]
	s.Model = "veo-3.0-generate-001"
	mode := FramesToVideo
	err := ScenePatch{Mode: &mode, Prompt: strp("ignored")}.apply(&s)
	require.ErrorIs(t, err, ErrModeUnsupported)
	assert.Equal(t, TextToVideo, s.Mode)
	assert.Equal(t, "sunset", s.Prompt)

	// Same patch with an advanced model in it goes through.
	err = ScenePatch{Mode: &mode, Model: strp("veo-3.1-generate-preview")}.apply(&s)
	require.NoError(t, err)
	assert.Equal(t, FramesToVideo, s.Mode)
}

func TestSceneOutcomes(t *testing.T) {
	m := Message{
		ExecutionPlan: samplePlan(),
		SceneResults: []SceneResult{
			{SceneID: "s2", Success: true, VideoURL: "https://cdn/s2.mp4"},
			{SceneID: "gone", Success: false, Error: "quota"},
		},
	}
	out := m.SceneOutcomes()
	require.Len(t, out, 2)
	assert.Equal(t, "Walk", out[0].Description)
	assert.False(t, out[0].Failed)
	assert.Empty(t, out[1].Description)
	assert.True(t, out[1].Failed)
	assert.Nil(t, Message{}.SceneOutcomes())
}
