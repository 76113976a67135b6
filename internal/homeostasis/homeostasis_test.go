package homeostasis

import (
	"math"
	"testing"
)

func TestPainPhysicalEnergyOnly(t *testing.T) {
	// Healthy calls, 0.6 energy: only the energy term contributes.
	got := PainPhysical(0, 0, 2000, 0.6, 0, 1.0)
	want := 0.15 * (1 - Sigmoid(0.6))
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPainPhysicalWeightsSumToFullScale(t *testing.T) {
	// Worst case everywhere scores the full weight sum.
	got := PainPhysical(1.0, 5000, 2000, -100, 10, 1.0)
	want := 0.55 + 0.25 + 0.15*(1-Sigmoid(-100)) + 0.05
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPainPhysicalZeroRefs(t *testing.T) {
	// Zero reference scales must not divide by zero.
	got := PainPhysical(0, 1000, 0, 0.5, 1.0, 0)
	want := 0.15 * (1 - Sigmoid(0.5))
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPainPsychPerfectSatisfaction(t *testing.T) {
	got := PainPsych([4]float64{1, 1, 1, 1}, []float64{1, 1})
	if got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestPainPsychNoQualityHistory(t *testing.T) {
	// With no scored answers the quality term counts fully against.
	got := PainPsych([4]float64{1, 1, 1, 1}, nil)
	if math.Abs(got-0.40) > 1e-12 {
		t.Fatalf("expected 0.40, got %v", got)
	}
}

func TestPainPsychAxiomWeighting(t *testing.T) {
	// Only the first axiom satisfied: weighted mean is 0.40.
	got := PainPsych([4]float64{1, 0, 0, 0}, []float64{1})
	want := 0.60 * (1 - 0.40)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPainIsWorseChannel(t *testing.T) {
	if Pain(0.3, 0.7) != 0.7 {
		t.Fatal("pain must be the max of both channels")
	}
	if Pain(0.8, 0.1) != 0.8 {
		t.Fatal("pain must be the max of both channels")
	}
}

func TestFatigueEMACarry(t *testing.T) {
	// Zero strain: fatigue shrinks by the carry factor... except energy
	// deficit always contributes, so feed full energy.
	got := Fatigue(0.5, 0, 1.0, 0, 0)
	if math.Abs(got-0.85*0.5) > 1e-12 {
		t.Fatalf("expected %v, got %v", 0.85*0.5, got)
	}
}

func TestFatigueRisesUnderStrain(t *testing.T) {
	low := Fatigue(0.3, 0, 1.0, 0, 0)
	high := Fatigue(0.3, 1.0, 0.0, 1.0, 10)
	if high <= low {
		t.Fatalf("strain must raise fatigue: %v <= %v", high, low)
	}
}

func TestSleepPressureFloorAndSlope(t *testing.T) {
	if got := SleepPressure(0); math.Abs(got-0.15) > 1e-12 {
		t.Fatalf("expected floor 0.15, got %v", got)
	}
	if got := SleepPressure(1); math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("expected 1.0 at full fatigue, got %v", got)
	}
}

func TestSigmoid(t *testing.T) {
	if Sigmoid(0) != 0.5 {
		t.Fatalf("sigmoid(0) must be 0.5, got %v", Sigmoid(0))
	}
	if Sigmoid(10) < 0.99 || Sigmoid(-10) > 0.01 {
		t.Fatal("sigmoid tails wrong")
	}
}

func TestAxiomWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range AxiomWeights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-12 {
		t.Fatalf("axiom weights must sum to 1, got %v", sum)
	}
}
