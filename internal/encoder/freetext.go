package encoder

import (
	"fmt"
	"strings"

	"organism/internal/axis"
	"organism/internal/state"
)

// #region freetext
// FreeText encodes conversational text events. The heuristics are cheap
// lexical proxies: diversity for novelty, question density for uncertainty,
// length for social engagement.
type FreeText struct {
	axes *axis.Registry
}

// NewFreeText returns the free-text encoder.
func NewFreeText(axes *axis.Registry) *FreeText {
	return &FreeText{axes: axes}
}

// Name implements Encoder.
func (e *FreeText) Name() string { return "freetext" }

// Encode implements Encoder. Reads payload key "text".
func (e *FreeText) Encode(stateDim int, ev state.Event) ([]float64, []string) {
	vec := make([]float64, stateDim)
	var notes []string

	text, _ := ev.Payload["text"].(string)
	if text == "" {
		notes = append(notes, "empty text payload")
		return vec, notes
	}

	tokens := strings.Fields(strings.ToLower(text))
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}

	var diversity float64
	if len(tokens) > 0 {
		diversity = float64(len(unique)) / float64(len(tokens))
	}
	questions := float64(strings.Count(text, "?"))
	length := clamp01(float64(len(tokens)) / 60.0)

	setAxis(vec, e.axes, "uncertainty", 0.03*clamp01(questions/2.0))
	setAxis(vec, e.axes, "curiosity", 0.04*diversity)
	setAxis(vec, e.axes, "social_need", -0.05*length)
	setAxis(vec, e.axes, "boredom", -0.04*length)
	setAxis(vec, e.axes, "pressure_autotalk", -0.03*length)

	notes = append(notes, fmt.Sprintf("freetext: tokens=%d diversity=%.3f questions=%.0f", len(tokens), diversity, questions))
	return vec, notes
}
// #endregion freetext
