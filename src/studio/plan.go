package studio

import (
	"fmt"
	"strings"
	"time"
)

type Orchestration struct {
	ParallelGroups   [][]string `json:"parallelGroups"`
	SequentialChains [][]string `json:"sequentialChains"`
}

// Scene is one planned unit of generation work.
type Scene struct {
	ID                string       `json:"id"`
	Description       string       `json:"description"`
	Prompt            string       `json:"prompt"`
	Mode              VideoSubMode `json:"mode"`
	DurationHint      string       `json:"durationHint"`
	PreGenerateImages bool         `json:"preGenerateImages"`
	ImagePrompts      []string     `json:"imagePrompts,omitempty"`
	Dependencies      []string     `json:"dependencies"`
	Reasoning         string       `json:"reasoning"`
	AspectRatio       string       `json:"aspectRatio,omitempty"`
	Resolution        string       `json:"resolution,omitempty"`
	Model             string       `json:"model,omitempty"`
}

// ExecutionPlan is a dependency-aware set of scenes. The backend decides how
// to schedule them; the client only reviews, edits and submits.
type ExecutionPlan struct {
	Scenes            []Scene       `json:"scenes"`
	Orchestration     Orchestration `json:"orchestration"`
	OverallStrategy   string        `json:"overallStrategy"`
	EstimatedDuration string        `json:"estimatedDuration"`
	CreatedAt         time.Time     `json:"createdAt"`
	ScriptHash        string        `json:"scriptHash"`
}

func cloneGroups(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, g := range in {
		out[i] = append([]string(nil), g...)
	}
	return out
}

func (s Scene) clone() Scene {
	out := s
	out.ImagePrompts = append([]string(nil), s.ImagePrompts...)
	out.Dependencies = append([]string(nil), s.Dependencies...)
	return out
}

// Clone returns a structurally independent copy.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Scenes = make([]Scene, len(p.Scenes))
	for i, s := range p.Scenes {
		out.Scenes[i] = s.clone()
	}
	out.Orchestration = Orchestration{
		ParallelGroups:   cloneGroups(p.Orchestration.ParallelGroups),
		SequentialChains: cloneGroups(p.Orchestration.SequentialChains),
	}
	return &out
}

// Scene looks a scene up by id.
func (p *ExecutionPlan) Scene(id string) (Scene, bool) {
	for _, s := range p.Scenes {
		if s.ID == id {
			return s, true
		}
	}
	return Scene{}, false
}

func (p *ExecutionPlan) sceneIndex(id string) int {
	for i, s := range p.Scenes {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Validate checks referential integrity, acyclicity and the capability policy.
func (p *ExecutionPlan) Validate() error {
	if p == nil || len(p.Scenes) == 0 {
		return fmt.Errorf("%w: plan has no scenes", ErrInvalidPlan)
	}
	ids := make(map[string]bool, len(p.Scenes))
	for _, s := range p.Scenes {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: scene with empty id", ErrInvalidPlan)
		}
		if ids[s.ID] {
			return fmt.Errorf("%w: duplicate scene id %q", ErrInvalidPlan, s.ID)
		}
		ids[s.ID] = true
	}
	for _, s := range p.Scenes {
		if !s.Mode.Valid() {
			return fmt.Errorf("%w: scene %s has unknown mode %q", ErrInvalidPlan, s.ID, s.Mode)
		}
		if s.Mode.mediaDriven() && !SupportsSubMode(s.Model, s.Mode) {
			return fmt.Errorf("%w: scene %s uses %s on %s", ErrModeUnsupported, s.ID, s.Mode, ModelLabel(s.Model))
		}
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return fmt.Errorf("%w: scene %s depends on itself", ErrInvalidPlan, s.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("%w: scene %s depends on %w %q", ErrInvalidPlan, s.ID, ErrUnknownScene, dep)
			}
		}
	}
	for name, groups := range map[string][][]string{
		"parallel group":   p.Orchestration.ParallelGroups,
		"sequential chain": p.Orchestration.SequentialChains,
	} {
		for _, g := range groups {
			for _, id := range g {
				if !ids[id] {
					return fmt.Errorf("%w: %s references %w %q", ErrInvalidPlan, name, ErrUnknownScene, id)
				}
			}
		}
	}
	if _, err := p.Stages(); err != nil {
		return err
	}
	return nil
}

// Stages groups scenes into dependency waves: every scene appears after all
// of its dependencies. Used for display only.
func (p *ExecutionPlan) Stages() ([][]string, error) {
	indeg := make(map[string]int, len(p.Scenes))
	next := make(map[string][]string, len(p.Scenes))
	for _, s := range p.Scenes {
		indeg[s.ID] += 0
		for _, dep := range s.Dependencies {
			indeg[s.ID]++
			next[dep] = append(next[dep], s.ID)
		}
	}
	var wave []string
	for _, s := range p.Scenes {
		if indeg[s.ID] == 0 {
			wave = append(wave, s.ID)
		}
	}
	var stages [][]string
	seen := 0
	for len(wave) > 0 {
		stages = append(stages, wave)
		seen += len(wave)
		var following []string
		for _, id := range wave {
			for _, n := range next[id] {
				indeg[n]--
				if indeg[n] == 0 {
					following = append(following, n)
				}
			}
		}
		wave = following
	}
	if seen != len(p.Scenes) {
		return nil, ErrDependencyCycle
	}
	return stages, nil
}

// ScenePatch edits one scene. Nil fields are left alone.
type ScenePatch struct {
	Description       *string
	Prompt            *string
	Mode              *VideoSubMode
	DurationHint      *string
	PreGenerateImages *bool
	ImagePrompts      []string
	Dependencies      []string
	SetDependencies   bool
	AspectRatio       *string
	Resolution        *string
	Model             *string
}

// apply mutates s in place and enforces the capability policy.
func (patch ScenePatch) apply(s *Scene) error {
	if patch.Mode != nil {
		if !patch.Mode.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownMode, *patch.Mode)
		}
		model := s.Model
		if patch.Model != nil {
			model = *patch.Model
		}
		if patch.Mode.mediaDriven() && !SupportsSubMode(model, *patch.Mode) {
			return fmt.Errorf("%w: %s with %s", ErrModeUnsupported, *patch.Mode, ModelLabel(model))
		}
		s.Mode = *patch.Mode
	}
	if patch.Model != nil {
		s.Model = *patch.Model
		if s.Mode.mediaDriven() && !SupportsSubMode(s.Model, s.Mode) {
			s.Mode = TextToVideo
		}
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.Prompt != nil {
		s.Prompt = *patch.Prompt
	}
	if patch.DurationHint != nil {
		s.DurationHint = *patch.DurationHint
	}
	if patch.PreGenerateImages != nil {
		s.PreGenerateImages = *patch.PreGenerateImages
	}
	if patch.ImagePrompts != nil {
		s.ImagePrompts = append([]string(nil), patch.ImagePrompts...)
	}
	if patch.SetDependencies {
		s.Dependencies = append([]string(nil), patch.Dependencies...)
	}
	if patch.AspectRatio != nil {
		s.AspectRatio = *patch.AspectRatio
	}
	if patch.Resolution != nil {
		s.Resolution = *patch.Resolution
	}
	return nil
}

// PlanState is the lifecycle position of a plan under review.
type PlanState int

const (
	PlanProposed PlanState = iota
	PlanEditing
	PlanBuilding
	PlanApplied
)

func (s PlanState) String() string {
	switch s {
	case PlanProposed:
		return "proposed"
	case PlanEditing:
		return "editing"
	case PlanBuilding:
		return "building"
	case PlanApplied:
		return "applied"
	}
	return "unknown"
}
