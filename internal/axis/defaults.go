package axis

// defaultAxes is the initial state space, in index order. Order matters:
// stored vectors and operators address axes by index.
var defaultAxes = []string{
	"energy",
	"fatigue",
	"stress",
	"pain",
	"pain_physical",
	"pain_psych",
	"sleep_pressure",
	"uncertainty",
	"curiosity",
	"boredom",
	"social_need",
	"confidence",
	"pressure_websense",
	"pressure_daydream",
	"pressure_evolve",
	"pressure_autotalk",
	"sat_a1",
	"sat_a2",
	"sat_a3",
	"sat_a4",
}

// defaultProtected are the axes only trusted events may couple into.
var defaultProtected = map[string]bool{
	"energy":         true,
	"fatigue":        true,
	"sleep_pressure": true,
	"pain":           true,
	"pain_physical":  true,
	"pain_psych":     true,
	"sat_a1":         true,
	"sat_a2":         true,
	"sat_a3":         true,
	"sat_a4":         true,
}

// SeedDefaults registers the standard axes. Idempotent; safe on every
// startup.
func SeedDefaults(r *Registry) error {
	for _, name := range defaultAxes {
		var err error
		if defaultProtected[name] {
			_, err = r.EnsureProtected(name)
		} else {
			_, err = r.Ensure(name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
