package architect

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// PlotType selects the narrative emphasis for the generated world. It
	// steers themes and pacing only; it never turns into a concrete plot.
	PlotType string

	// StartRequest is the caller-supplied input for one world-architect run.
	StartRequest struct {
		// WorldDescription is the free-form setting description, 1-8000 chars.
		WorldDescription string `json:"world_description"`
		// PlotType is one of the catalog values or "custom".
		PlotType PlotType `json:"plot_type"`
		// PlotTypeCustom carries the free-text plot description when
		// PlotType is "custom". At most 500 chars.
		PlotTypeCustom string `json:"plot_type_custom,omitempty"`
		// IsGlobalConflictEnabled controls whether the skeleton may carry a
		// world-level macro conflict. When false the conflict field of the
		// final skeleton is forced empty regardless of generator output.
		IsGlobalConflictEnabled bool `json:"is_global_conflict_enabled"`
	}

	// Question is one human-in-the-loop question the generator needs
	// answered before it can produce a quality skeleton.
	Question struct {
		ID       string   `json:"id"`
		Question string   `json:"question"`
		Options  []Option `json:"options,omitempty"`
	}

	// Option is a selectable answer for a Question.
	Option struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}

	// Answer holds the user's reply to one question: a selected option id,
	// free text, or both.
	Answer struct {
		SelectedOptionID string `json:"selected_option_id,omitempty"`
		FreeText         string `json:"free_text,omitempty"`
	}

	// WorldSkeleton is the final output of the workflow: a concise setting
	// preface (GamePrompt), a long base lore text (WorldBible) and an
	// optional world-level macro conflict.
	WorldSkeleton struct {
		GamePrompt     string `json:"game_prompt"`
		WorldBible     string `json:"world_bible"`
		GlobalConflict string `json:"global_conflict,omitempty"`
	}

	// result is the discriminated generator output: mode selects between a
	// question set and a finished skeleton.
	result struct {
		Mode      string         `json:"mode"`
		Questions []Question     `json:"questions,omitempty"`
		Skeleton  *WorldSkeleton `json:"skeleton,omitempty"`
	}
)

// Plot type catalog.
const (
	PlotAdventure         PlotType = "adventure"
	PlotMystery           PlotType = "mystery"
	PlotExploration       PlotType = "exploration"
	PlotSurvival          PlotType = "survival"
	PlotPoliticalIntrigue PlotType = "political_intrigue"
	PlotHeist             PlotType = "heist"
	PlotHorror            PlotType = "horror"
	PlotSliceOfLife       PlotType = "slice_of_life"
	PlotRomance           PlotType = "romance"
	PlotWarCampaign       PlotType = "war_campaign"
	PlotComedy            PlotType = "comedy"
	PlotCustom            PlotType = "custom"
)

// Result mode discriminants.
const (
	ModeQuestions = "questions"
	ModeDone      = "done"
)

const (
	maxWorldDescription = 8000
	maxPlotTypeCustom   = 500
	maxOptionID         = 64
	maxFreeText         = 2000
)

var plotTypes = map[PlotType]struct{}{
	PlotAdventure: {}, PlotMystery: {}, PlotExploration: {}, PlotSurvival: {},
	PlotPoliticalIntrigue: {}, PlotHeist: {}, PlotHorror: {}, PlotSliceOfLife: {},
	PlotRomance: {}, PlotWarCampaign: {}, PlotComedy: {}, PlotCustom: {},
}

// Validate checks the request against the input bounds.
func (r StartRequest) Validate() error {
	desc := strings.TrimSpace(r.WorldDescription)
	if desc == "" {
		return errors.New("world_description is required")
	}
	if len(r.WorldDescription) > maxWorldDescription {
		return fmt.Errorf("world_description exceeds %d characters", maxWorldDescription)
	}
	if _, ok := plotTypes[r.PlotType]; !ok {
		return fmt.Errorf("unknown plot_type %q", r.PlotType)
	}
	if len(r.PlotTypeCustom) > maxPlotTypeCustom {
		return fmt.Errorf("plot_type_custom exceeds %d characters", maxPlotTypeCustom)
	}
	return nil
}

// PlotText resolves the effective plot description: the catalog value, or the
// trimmed custom text when PlotType is custom.
func (r StartRequest) PlotText() string {
	if r.PlotType != PlotCustom {
		return string(r.PlotType)
	}
	return strings.TrimSpace(r.PlotTypeCustom)
}

// Validate checks one submitted answer against the field bounds.
func (a Answer) Validate() error {
	if len(a.SelectedOptionID) > maxOptionID {
		return fmt.Errorf("selected_option_id exceeds %d characters", maxOptionID)
	}
	if len(a.FreeText) > maxFreeText {
		return fmt.Errorf("free_text exceeds %d characters", maxFreeText)
	}
	return nil
}
