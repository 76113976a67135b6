// Package homeostasis computes the organism's pain, fatigue, and sleep
// pressure from measured health signals. Everything here is deterministic
// and side-effect free, and deliberately outside the reach of plasticity:
// these readings are the ground truth the rollback valve trusts.
package homeostasis

import "math"

// #region weights
// Physical pain weights over error rate, latency, energy depletion, and
// operator churn.
const (
	wErrRate   = 0.55
	wLatency   = 0.25
	wEnergy    = 0.15
	wOperators = 0.05
)

// Psychological pain split between axiom satisfaction and answer quality.
const (
	wAxioms  = 0.60
	wQuality = 0.40
)

// AxiomWeights are the fixed weights over the four externally scored goal
// axes, in order.
var AxiomWeights = [4]float64{0.40, 0.25, 0.20, 0.15}

// Fatigue EMA and input mix.
const (
	fatigueCarry   = 0.85
	fatigueGain    = 0.15
	fPain          = 0.40
	fEnergyDeficit = 0.40
	fErrRate       = 0.25
	fMsgLoad       = 0.25
	msgLoadRef     = 4.0
)

// Sleep pressure floor and slope.
const (
	sleepFloor = 0.15
	sleepSlope = 0.85
)
// #endregion weights

// #region physical
// PainPhysical scores bodily distress from measured health signals.
// latencyRef and frobRef normalize the raw p95 latency and operator delta
// into [0,1] before weighting.
func PainPhysical(errRate, p95Latency, latencyRef, energy, deltaFrob, frobRef float64) float64 {
	lat := 0.0
	if latencyRef > 0 {
		lat = clip01(p95Latency / latencyRef)
	}
	churn := 0.0
	if frobRef > 0 {
		churn = clip01(deltaFrob / frobRef)
	}
	return wErrRate*clip01(errRate) +
		wLatency*lat +
		wEnergy*(1-Sigmoid(energy)) +
		wOperators*churn
}
// #endregion physical

// #region psychological
// PainPsych scores goal distress from four axiom-satisfaction scores and a
// set of answer-quality scores, all in [0,1].
func PainPsych(axiomScores [4]float64, qualityScores []float64) float64 {
	var axiomMean float64
	for i, s := range axiomScores {
		axiomMean += AxiomWeights[i] * clip01(s)
	}

	qualityMean := 0.0
	if len(qualityScores) > 0 {
		var sum float64
		for _, q := range qualityScores {
			sum += clip01(q)
		}
		qualityMean = sum / float64(len(qualityScores))
	}

	return wAxioms*(1-axiomMean) + wQuality*(1-qualityMean)
}

// Pain is the overall pain reading: the worse of the two channels.
func Pain(physical, psychological float64) float64 {
	return math.Max(physical, psychological)
}
// #endregion psychological

// #region fatigue
// Fatigue updates the exponential fatigue average from the current strain
// inputs. msgsPerMin is the recent conversational load.
func Fatigue(prev, pain, energy, errRate, msgsPerMin float64) float64 {
	strain := fPain*pain +
		fEnergyDeficit*(1-energy) +
		fErrRate*errRate +
		fMsgLoad*clip01(msgsPerMin/msgLoadRef)
	return fatigueCarry*prev + fatigueGain*strain
}

// SleepPressure maps fatigue onto the sleep drive.
func SleepPressure(fatigue float64) float64 {
	return sleepFloor + sleepSlope*fatigue
}
// #endregion fatigue

// #region math
// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
// #endregion math
