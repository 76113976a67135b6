package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"organism/internal/organ"
	"organism/internal/policy"
	"organism/internal/state"
)

// fallbackReply is the degraded best-effort answer when the reasoning path
// fails. Internal errors never surface as stack traces at this boundary.
const fallbackReply = "I don't have enough information yet."

// #region turn-result
// TurnResult is what one processed turn produced.
type TurnResult struct {
	TurnID string
	Reply  string
	Reward float64
	State  map[string]float64
}
// #endregion turn-result

// #region process-turn
// ProcessTurn drives one external message through the organism: ingest,
// tick, decide, evaluate, learn, check for regression, publish. Always
// returns a best-effort reply.
func (e *Engine) ProcessTurn(ctx context.Context, text string) (TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	turnID := uuid.New().String()
	res := TurnResult{TurnID: turnID, Reply: fallbackReply}

	userEv := state.Event{
		Type:    "user_message",
		Payload: map[string]any{"text": text, "turn_id": turnID},
	}
	if err := e.hb.Enqueue(userEv); err != nil {
		// Without a durable event the turn cannot proceed; this is the one
		// hard failure here.
		return res, err
	}
	step, err := e.hb.Step()
	if err != nil {
		return res, err
	}

	vec := step.Vector
	in := organ.Input{
		Axioms:       e.cfg.Axioms,
		StateSummary: e.stateSummary(vec),
		Context:      map[string]any{"user_text": text, "turn_id": turnID},
	}

	var dec organ.Result
	if o, ok := e.organs["decider"]; ok {
		dec = e.invoker.Invoke(ctx, o, in)
	}
	if dec.Reply != "" {
		res.Reply = dec.Reply
	}
	if len(dec.Drives) > 0 {
		e.enqueueDrives(dec.Drives, dec.Mode, "decider", turnID)
		if s, err := e.hb.Step(); err == nil {
			vec = s.Vector
		}
	}

	// Self-evaluation scores the exchange and funds learning.
	evalIn := organ.Input{
		Axioms:       e.cfg.Axioms,
		StateSummary: e.stateSummary(vec),
		Context:      map[string]any{"user_text": text, "reply": res.Reply},
	}
	var eval organ.Result
	if o, ok := e.organs["self_eval"]; ok {
		eval = e.invoker.Invoke(ctx, o, evalIn)
	}
	if eval.Scored {
		res.Reward = clampReward(eval.Reward)
		e.noteQuality(eval)
		e.learnFromTurn(userEv, dec, res.Reward)
	}

	painPsych := e.recomputeHomeostasis()
	if _, err := e.checker.Evaluate(painPsych, time.Now().UTC()); err != nil {
		e.log.Warn("regression check failed", zap.Error(err))
	}

	if status, err := e.Status(); err == nil {
		res.State = status
	}
	e.broker.publish(Update{Kind: "turn", TurnID: turnID, Reply: res.Reply, State: res.State, At: time.Now().UTC()})

	e.log.Info("turn processed",
		zap.String("turn_id", turnID),
		zap.Float64("reward", res.Reward))
	return res, nil
}
// #endregion process-turn

// #region learning
// learnFromTurn feeds the scored exchange into both learners: the generic
// plasticity rule on the user_message operator, and the policy kernel if a
// gated action is awaiting credit.
func (e *Engine) learnFromTurn(userEv state.Event, dec organ.Result, reward float64) {
	vec, err := e.store.GetVector()
	if err != nil {
		e.log.Warn("learn skipped", zap.Error(err))
		return
	}
	painBefore := e.axisValue(vec, "pain_psych")

	if len(dec.Drives) > 0 && reward != 0 {
		var x map[string]float64
		if enc, ok := e.encoders.Lookup("freetext"); ok {
			feats, _ := enc.Encode(len(vec), userEv)
			x = e.featureMap(feats)
		}
		if len(x) > 0 {
			_, err := e.plastic.Apply("user_message", dec.Drives, x, reward, painBefore, "self_eval turn reward")
			if err != nil {
				e.log.Warn("plasticity update failed", zap.Error(err))
			}
		}
	}

	if e.lastPred != nil && e.lastAction >= 0 {
		_, err := e.pol.Update(e.lastPred.Version, e.lastPred.Features, e.lastAction, reward, "turn reward credit")
		if err != nil {
			e.log.Warn("policy update failed", zap.Error(err))
		}
		e.lastPred = nil
		e.lastAction = -1
	}
}

// noteQuality keeps the short ring of answer-quality scores that feeds
// psychological pain. Self-eval may report quality explicitly; otherwise
// the shifted reward stands in.
func (e *Engine) noteQuality(eval organ.Result) {
	q := (clampReward(eval.Reward) + 1) / 2
	var payload struct {
		Quality *float64 `json:"quality"`
	}
	if err := json.Unmarshal(eval.Raw, &payload); err == nil && payload.Quality != nil {
		q = clamp01(*payload.Quality)
	}
	e.quality = append(e.quality, q)
	if len(e.quality) > 5 {
		e.quality = e.quality[len(e.quality)-5:]
	}
}
// #endregion learning

// #region helpers
// enqueueDrives routes an organ's drive field through the ordinary event
// path under the generic drive operator.
func (e *Engine) enqueueDrives(drives map[string]float64, mode, source, turnID string) {
	if mode == "" {
		mode = "delta"
	}
	ev := state.Event{
		Type: "drive",
		Payload: map[string]any{
			"drives":  drives,
			"_mode":   mode,
			"source":  source,
			"turn_id": turnID,
		},
	}
	if err := e.hb.Enqueue(ev); err != nil {
		e.log.Warn("drive enqueue failed", zap.String("source", source), zap.Error(err))
	}
}

func clampReward(r float64) float64 {
	if r < -1 {
		return -1
	}
	if r > 1 {
		return 1
	}
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// lastPredictionFor records the policy prediction awaiting reward credit.
func (e *Engine) lastPredictionFor(pred policy.Prediction, action int) {
	p := pred
	e.lastPred = &p
	e.lastAction = action
}
// #endregion helpers
