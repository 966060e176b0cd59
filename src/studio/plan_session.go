package studio

import (
	"fmt"
	"sync"
)

// PlanSession tracks one plan from proposal to build. The proposed plan is
// never mutated; edits happen on a draft copy that cancel throws away.
type PlanSession struct {
	mu       sync.Mutex
	proposed *ExecutionPlan
	draft    *ExecutionPlan
	state    PlanState
	origin   PlanState
	lastErr  error
	results  []SceneResult
}

func NewPlanSession(plan *ExecutionPlan) *PlanSession {
	return &PlanSession{proposed: plan.Clone(), state: PlanProposed}
}

func (s *PlanSession) State() PlanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the transport error of the most recent failed build.
func (s *PlanSession) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Proposed returns a copy of the plan as generated.
func (s *PlanSession) Proposed() *ExecutionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposed.Clone()
}

// Current returns a copy of the draft while editing, else the proposed plan.
func (s *PlanSession) Current() *ExecutionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked().Clone()
}

func (s *PlanSession) currentLocked() *ExecutionPlan {
	if s.draft != nil {
		return s.draft
	}
	return s.proposed
}

// Results returns the scene results of an applied build.
func (s *PlanSession) Results() []SceneResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SceneResult, len(s.results))
	for i, r := range s.results {
		out[i] = r.clone()
	}
	return out
}

func (s *PlanSession) BeginEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case PlanEditing:
		return nil
	case PlanProposed:
		s.draft = s.proposed.Clone()
		s.state = PlanEditing
		return nil
	}
	return fmt.Errorf("%w: cannot edit while %s", ErrPlanState, s.state)
}

func (s *PlanSession) CancelEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PlanEditing {
		return fmt.Errorf("%w: not editing", ErrPlanState)
	}
	s.draft = nil
	s.state = PlanProposed
	return nil
}

// EditScene applies patch to one scene of the draft. The patch is applied to
// a copy first so a rejected edit leaves the draft unchanged.
func (s *PlanSession) EditScene(id string, patch ScenePatch) (Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PlanEditing {
		return Scene{}, fmt.Errorf("%w: start editing first", ErrPlanState)
	}
	i := s.draft.sceneIndex(id)
	if i < 0 {
		return Scene{}, fmt.Errorf("%w: %q", ErrUnknownScene, id)
	}
	edited := s.draft.Scenes[i].clone()
	if err := patch.apply(&edited); err != nil {
		return Scene{}, err
	}
	if patch.SetDependencies {
		trial := s.draft.Clone()
		trial.Scenes[i] = edited
		for _, dep := range edited.Dependencies {
			if dep == id {
				return Scene{}, fmt.Errorf("%w: scene %s depends on itself", ErrInvalidPlan, id)
			}
			if trial.sceneIndex(dep) < 0 {
				return Scene{}, fmt.Errorf("%w: %q", ErrUnknownScene, dep)
			}
		}
		if _, err := trial.Stages(); err != nil {
			return Scene{}, err
		}
	}
	s.draft.Scenes[i] = edited
	return edited.clone(), nil
}

// StartBuild moves to Building and returns the validated plan to submit.
func (s *PlanSession) StartBuild() (*ExecutionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PlanProposed && s.state != PlanEditing {
		return nil, fmt.Errorf("%w: cannot build while %s", ErrPlanState, s.state)
	}
	plan := s.currentLocked()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	s.origin = s.state
	s.state = PlanBuilding
	s.lastErr = nil
	return plan.Clone(), nil
}

// failBuild returns the session to where the build started.
func (s *PlanSession) failBuild(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PlanBuilding {
		return
	}
	s.state = s.origin
	s.lastErr = err
}

func (s *PlanSession) applyBuild(results []SceneResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PlanBuilding {
		return
	}
	s.state = PlanApplied
	s.results = make([]SceneResult, len(results))
	for i, r := range results {
		s.results[i] = r.clone()
	}
}
