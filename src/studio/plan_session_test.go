package studio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSessionEditLeavesProposedUntouched(t *testing.T) {
	s := NewPlanSession(samplePlan())
	require.Equal(t, PlanProposed, s.State())

	_, err := s.EditScene("s1", ScenePatch{Prompt: strp("x")})
	require.ErrorIs(t, err, ErrPlanState)

	require.NoError(t, s.BeginEdit())
	require.Equal(t, PlanEditing, s.State())
	edited, err := s.EditScene("s1", ScenePatch{Prompt: strp("moonrise")})
	require.NoError(t, err)
	assert.Equal(t, "moonrise", edited.Prompt)

	assert.Equal(t, "moonrise", s.Current().Scenes[0].Prompt)
	assert.Equal(t, "sunrise over the bay", s.Proposed().Scenes[0].Prompt)
}

func TestPlanSessionCancelDiscardsDraft(t *testing.T) {
	s := NewPlanSession(samplePlan())
	require.NoError(t, s.BeginEdit())
	_, err := s.EditScene("s3", ScenePatch{Description: strp("Finale")})
	require.NoError(t, err)

	require.NoError(t, s.CancelEdit())
	assert.Equal(t, PlanProposed, s.State())
	assert.Equal(t, "Close", s.Current().Scenes[2].Description)
	require.ErrorIs(t, s.CancelEdit(), ErrPlanState)
}

func TestPlanSessionRejectsBadDependencies(t *testing.T) {
	s := NewPlanSession(samplePlan())
	require.NoError(t, s.BeginEdit())

	_, err := s.EditScene("s1", ScenePatch{SetDependencies: true, Dependencies: []string{"s2"}})
	require.ErrorIs(t, err, ErrDependencyCycle)

	_, err = s.EditScene("s1", ScenePatch{SetDependencies: true, Dependencies: []string{"s1"}})
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = s.EditScene("s3", ScenePatch{SetDependencies: true, Dependencies: []string{"nope"}})
	require.ErrorIs(t, err, ErrUnknownScene)

	_, err = s.EditScene("nope", ScenePatch{Prompt: strp("x")})
	require.ErrorIs(t, err, ErrUnknownScene)

	assert.Empty(t, s.Current().Scenes[0].Dependencies)

	// Dropping a dependency is fine.
	sc, err := s.EditScene("s3", ScenePatch{SetDependencies: true})
	require.NoError(t, err)
	assert.Empty(t, sc.Dependencies)
}

func TestPlanSessionBuildLifecycle(t *testing.T) {
	s := NewPlanSession(samplePlan())
	require.NoError(t, s.BeginEdit())
	_, err := s.EditScene("s2", ScenePatch{Prompt: strp("she runs the pier")})
	require.NoError(t, err)

	plan, err := s.StartBuild()
	require.NoError(t, err)
	assert.Equal(t, "she runs the pier", plan.Scenes[1].Prompt)
	assert.Equal(t, PlanBuilding, s.State())
	require.ErrorIs(t, s.BeginEdit(), ErrPlanState)
	_, err = s.StartBuild()
	require.ErrorIs(t, err, ErrPlanState)

	boom := errors.New("503")
	s.failBuild(boom)
	assert.Equal(t, PlanEditing, s.State())
	assert.Equal(t, boom, s.LastError())
	assert.Equal(t, "she runs the pier", s.Current().Scenes[1].Prompt)

	_, err = s.StartBuild()
	require.NoError(t, err)
	assert.Nil(t, s.LastError())
	s.applyBuild([]SceneResult{{SceneID: "s1", Success: true}})
	assert.Equal(t, PlanApplied, s.State())
	require.Len(t, s.Results(), 1)

	_, err = s.StartBuild()
	require.ErrorIs(t, err, ErrPlanState)
}

func TestPlanSessionInvalidPlanBlocksBuild(t *testing.T) {
	p := samplePlan()
	p.Scenes[1].Model = "veo-2.0-generate-001"
	s := NewPlanSession(p)

	_, err := s.StartBuild()
	require.ErrorIs(t, err, ErrModeUnsupported)
	assert.Equal(t, PlanProposed, s.State())

	require.NoError(t, s.BeginEdit())
	mode := TextToVideo
	_, err = s.EditScene("s2", ScenePatch{Mode: &mode})
	require.NoError(t, err)
	_, err = s.StartBuild()
	require.NoError(t, err)
}
