package runtime

import (
	"organism/internal/inference"
	"organism/internal/organ"
)

// #region instructions
// Organ instruction blocks. Every organ answers through the same contract:
// structured JSON whose only state-bearing field is the drives shape.
const deciderInstructions = `You are the organism's decider. Read the state
and the user's message, then answer as the organism. Respond with a JSON
object: {"reply": "<your answer>", "drives": {"<axis>": <delta>}, "_mode":
"delta"}. Use small deltas (|delta| <= 0.2) only on non-vital axes such as
uncertainty, curiosity, boredom, social_need, confidence, or the pressure_*
axes.`

const selfEvalInstructions = `You are the organism's self-evaluation organ.
Given the user's message and the reply that was produced, score the reply.
Respond with JSON: {"reward": <float in [-1,1]>, "quality": <float in
[0,1]>, "drives": {"<axis>": <delta>}, "_mode": "delta"}.`

const websenseInstructions = `You are the organism's web-sense organ.
Propose what the organism should look up to reduce its uncertainty, and
summarize what it would likely find. Respond with JSON: {"evidence":
[{"text": "<finding>", "domain": "<source domain>", "trust": <0..1>}],
"drives": {"<axis>": <delta>}, "_mode": "delta"}.`

const daydreamInstructions = `You are the organism's daydream organ. Drift
over recent impressions and produce one insight. Respond with JSON:
{"insight": "<one sentence>", "drives": {"<axis>": <delta>}, "_mode":
"delta"}. Daydreaming usually lowers pressure_daydream and boredom.`

const evolveInstructions = `You are the organism's evolution organ. Propose
one small adjustment to how events should move the state. Respond with
JSON: {"drives": {"<axis>": <desired delta>}, "reward": <float in [-1,1]>,
"_mode": "delta"}. The drives are the state change you believe events of
this kind should produce.`

const autotalkInstructions = `You are the organism's spontaneous-speech
organ. Say one short thing the organism wants to say unprompted. Respond
with JSON: {"reply": "<one or two sentences>", "drives": {"<axis>":
<delta>}, "_mode": "delta"}. Speaking usually lowers pressure_autotalk and
social_need.`
// #endregion instructions

// #region build
// buildOrgans instantiates the default organ set over the shared client.
func buildOrgans(client *inference.Client) map[string]organ.Organ {
	opts := map[string]any{"temperature": 0.7}
	return map[string]organ.Organ{
		"decider":   organ.NewLLM("decider", deciderInstructions, client, opts),
		"self_eval": organ.NewLLM("self_eval", selfEvalInstructions, client, map[string]any{"temperature": 0.2}),
		"websense":  organ.NewLLM("websense", websenseInstructions, client, opts),
		"daydream":  organ.NewLLM("daydream", daydreamInstructions, client, map[string]any{"temperature": 1.0}),
		"evolve":    organ.NewLLM("evolve", evolveInstructions, client, opts),
		"autotalk":  organ.NewLLM("autotalk", autotalkInstructions, client, opts),
	}
}
// #endregion build
