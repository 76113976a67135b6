package runtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"organism/internal/homeostasis"
	"organism/internal/organ"
	"organism/internal/policy"
	"organism/internal/state"
)

// Reference scales normalizing raw health readings into [0,1].
const (
	latencyRefMS  = 2000.0
	frobeniusRef  = 1.0
	healthWindow  = 10 * time.Minute
	msgLoadWindow = time.Minute
)

// #region autonomous-tick
// AutonomousTick is the organism's self-driven path: recompute homeostasis
// from measured health, let the policy prior and the gates decide which
// optional organs run, apply their drive output, and check for regressions.
func (e *Engine) AutonomousTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	painPsych := e.recomputeHomeostasis()

	vec, err := e.store.GetVector()
	if err != nil {
		e.log.Warn("tick aborted", zap.Error(err))
		return
	}

	pred, err := e.pol.Predict(vec)
	if err != nil {
		e.log.Warn("policy predict failed", zap.Error(err))
		pred = policy.Prediction{Probs: make([]float64, len(policy.Actions))}
	}

	now := time.Now().UTC()
	for i, action := range policy.Actions {
		g, ok := e.gates.Gate(action)
		if !ok {
			continue
		}
		pressure := e.axisValue(vec, g.PressureAxis)
		proposed := 0.0
		if i < len(pred.Probs) {
			proposed = pred.Probs[i]
		}
		d := e.gates.Decide(action, pressure, proposed, now)
		if !d.Run {
			continue
		}

		e.runGatedOrgan(ctx, action)
		if pred.Version > 0 {
			e.lastPredictionFor(pred, i)
		}
		if s, err := e.hb.Step(); err == nil {
			vec = s.Vector
		}
	}

	// Always advance one tick so decay applies even on a quiet pass.
	if _, err := e.hb.Step(); err != nil {
		e.log.Warn("tick step failed", zap.Error(err))
	}

	if _, err := e.checker.Evaluate(painPsych, time.Now().UTC()); err != nil {
		e.log.Warn("regression check failed", zap.Error(err))
	}

	if status, err := e.Status(); err == nil {
		e.broker.publish(Update{Kind: "tick", State: status, At: time.Now().UTC()})
	}
}
// #endregion autonomous-tick

// #region gated-organs
// runGatedOrgan invokes one optional organ and routes its output back into
// the organism.
func (e *Engine) runGatedOrgan(ctx context.Context, action string) {
	o, ok := e.organs[action]
	if !ok {
		return
	}
	vec, err := e.store.GetVector()
	if err != nil {
		return
	}
	in := organ.Input{
		Axioms:       e.cfg.Axioms,
		StateSummary: e.stateSummary(vec),
		Context:      map[string]any{"trigger": "autonomous"},
	}
	res := e.invoker.Invoke(ctx, o, in)

	switch action {
	case "websense":
		e.absorbEvidence(res)
	case "evolve":
		e.absorbEvolution(res, vec)
	case "autotalk":
		if res.Reply != "" {
			e.broker.publish(Update{Kind: "autotalk", Reply: res.Reply, At: time.Now().UTC()})
		}
	case "daydream":
		e.absorbInsight(res)
	}

	if len(res.Drives) > 0 {
		e.enqueueDrives(res.Drives, res.Mode, action, "")
	}
}

// absorbEvidence stores websense findings as beliefs and domain trust, and
// feeds a web_evidence event through its operator.
func (e *Engine) absorbEvidence(res organ.Result) {
	var payload struct {
		Evidence []struct {
			Text   string  `json:"text"`
			Domain string  `json:"domain"`
			Trust  float64 `json:"trust"`
		} `json:"evidence"`
	}
	if err := json.Unmarshal(res.Raw, &payload); err != nil || len(payload.Evidence) == 0 {
		return
	}

	var trustSum float64
	for _, ev := range payload.Evidence {
		if _, err := e.beliefs.Add(ev.Text, "websense", clamp01(ev.Trust)); err != nil {
			e.log.Warn("belief write failed", zap.Error(err))
		}
		if ev.Domain != "" {
			if err := e.trust.Set(ev.Domain, clamp01(ev.Trust)); err != nil {
				e.log.Warn("trust write failed", zap.Error(err))
			}
		}
		trustSum += clamp01(ev.Trust)
	}

	ev := state.Event{
		Type: "web_evidence",
		Payload: map[string]any{
			"results": len(payload.Evidence),
			"trust":   trustSum / float64(len(payload.Evidence)),
		},
	}
	if err := e.hb.Enqueue(ev); err != nil {
		e.log.Warn("evidence enqueue failed", zap.Error(err))
	}
}

// absorbEvolution runs the evolve organ's proposal through plasticity on
// the generic drive operator.
func (e *Engine) absorbEvolution(res organ.Result, vec state.Vector) {
	if !res.Scored || len(res.Drives) == 0 {
		return
	}
	x := e.featureMap(vec)
	painBefore := e.axisValue(vec, "pain_psych")
	_, err := e.plastic.Apply("drive", res.Drives, x, clampReward(res.Reward), painBefore, "evolve proposal")
	if err != nil {
		e.log.Warn("evolve update failed", zap.Error(err))
	}
}

// absorbInsight keeps daydream output as a low-confidence belief.
func (e *Engine) absorbInsight(res organ.Result) {
	var payload struct {
		Insight string `json:"insight"`
	}
	if err := json.Unmarshal(res.Raw, &payload); err != nil || payload.Insight == "" {
		return
	}
	if _, err := e.beliefs.Add(payload.Insight, "organ", 0.3); err != nil {
		e.log.Warn("insight write failed", zap.Error(err))
	}
}
// #endregion gated-organs

// #region homeostasis
// recomputeHomeostasis derives the pain/fatigue readings from measured
// health and writes them through the trusted health event path, keeping
// the heartbeat the sole state writer. Returns the fresh pain_psych.
func (e *Engine) recomputeHomeostasis() float64 {
	vec, err := e.store.GetVector()
	if err != nil {
		e.log.Warn("homeostasis skipped", zap.Error(err))
		return 0
	}

	errRate, err := e.healths.ErrRate(healthWindow)
	if err != nil {
		e.log.Warn("err rate unavailable", zap.Error(err))
	}
	p95, err := e.healths.P95Latency(healthWindow)
	if err != nil {
		e.log.Warn("p95 unavailable", zap.Error(err))
	}
	msgs, err := e.store.CountEventsSince("user_message", time.Now().UTC().Add(-msgLoadWindow))
	if err != nil {
		e.log.Warn("msg load unavailable", zap.Error(err))
	}

	deltaFrob := 0.0
	if rows, err := e.updates.Recent(1); err == nil && len(rows) > 0 {
		deltaFrob = rows[0].DeltaFrobenius
	}

	energy := e.axisValue(vec, "energy")
	painPhys := homeostasis.PainPhysical(errRate, p95, latencyRefMS, energy, deltaFrob, frobeniusRef)

	axiomScores := [4]float64{
		e.axisValue(vec, "sat_a1"),
		e.axisValue(vec, "sat_a2"),
		e.axisValue(vec, "sat_a3"),
		e.axisValue(vec, "sat_a4"),
	}
	painPsych := homeostasis.PainPsych(axiomScores, e.quality)
	pain := homeostasis.Pain(painPhys, painPsych)

	fatigue := homeostasis.Fatigue(e.axisValue(vec, "fatigue"), pain, energy, errRate, float64(msgs))
	sleep := homeostasis.SleepPressure(fatigue)

	ev := state.Event{
		Type: "health",
		Payload: map[string]any{
			"drives": map[string]float64{
				"pain":           pain,
				"pain_physical":  painPhys,
				"pain_psych":     painPsych,
				"fatigue":        fatigue,
				"sleep_pressure": sleep,
			},
			"_mode":  "target",
			"source": "homeostasis",
		},
	}
	if err := e.hb.Enqueue(ev); err != nil {
		e.log.Warn("homeostasis enqueue failed", zap.Error(err))
		return painPsych
	}
	if _, err := e.hb.Step(); err != nil {
		e.log.Warn("homeostasis step failed", zap.Error(err))
	}
	return painPsych
}
// #endregion homeostasis
