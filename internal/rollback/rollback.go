// Package rollback is the safety valve over plasticity: if a believed-good
// update is followed by a regression of the protected pain reading, the
// adapter binding is reverted to the pre-update operator version and
// belief/domain-trust writes from the same window are undone. Regression
// is not an error, it is a first-class corrective action.
package rollback

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"organism/internal/adapter"
	"organism/internal/belief"
	"organism/internal/plasticity"
)

// #region config
// Config holds the regression thresholds.
type Config struct {
	RewardFloor  float64       // only updates above this are audited
	PainMargin   float64       // regression margin that triggers a revert
	RevertWindow time.Duration // correlated-write window after the update
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RewardFloor:  0.15,
		PainMargin:   0.12,
		RevertWindow: 5 * time.Minute,
	}
}
// #endregion config

// #region checker
// Checker evaluates pending believed-good updates against the current pain
// reading.
type Checker struct {
	updates  *plasticity.UpdateLog
	bindings *adapter.Registry
	beliefs  *belief.Store
	trust    *belief.TrustStore
	cfg      Config
	log      *zap.Logger
}

// NewChecker wires a rollback checker. beliefs and trust may be nil when
// the correlated-write defense is not wanted (tests).
func NewChecker(updates *plasticity.UpdateLog, bindings *adapter.Registry, beliefs *belief.Store, trust *belief.TrustStore, cfg Config, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{updates: updates, bindings: bindings, beliefs: beliefs, trust: trust, cfg: cfg, log: log}
}

// Reverted describes one rolled-back update.
type Reverted struct {
	LogID           int64
	EventType       string
	MatrixName      string
	RestoredVersion int
	BeliefsDeleted  int
	TrustReverted   int
}
// #endregion checker

// #region evaluate
// Evaluate runs the regression check after a homeostatic pain recompute.
// painPsych is the current protected psychological-pain reading. Updates
// with reward at or below the floor are never audited here: corrective
// (negative-reward) updates must persist by construction.
func (c *Checker) Evaluate(painPsych float64, now time.Time) ([]Reverted, error) {
	pending, err := c.updates.PendingPositive(c.cfg.RewardFloor)
	if err != nil {
		return nil, err
	}

	var reverted []Reverted
	for _, row := range pending {
		regression := painPsych - row.PainBefore
		if regression <= c.cfg.PainMargin {
			if err := c.updates.MarkEvaluated(row.ID, painPsych); err != nil {
				return reverted, err
			}
			continue
		}

		r, err := c.revert(row, painPsych, regression, now)
		if err != nil {
			return reverted, err
		}
		reverted = append(reverted, r)
	}
	return reverted, nil
}

func (c *Checker) revert(row plasticity.Row, painPsych, regression float64, now time.Time) (Reverted, error) {
	b, ok, err := c.bindings.Get(row.EventType)
	if err != nil {
		return Reverted{}, err
	}
	// Only repoint if the binding still refers to the regressed lineage;
	// a later update may already have moved it.
	if ok && b.MatrixName == row.MatrixName {
		b.MatrixVersion = row.FromVersion
		if err := c.bindings.Upsert(b); err != nil {
			return Reverted{}, fmt.Errorf("revert binding %s: %w", row.EventType, err)
		}
	}

	reason := fmt.Sprintf("pain regressed %.4f > margin %.4f after reward %.2f", regression, c.cfg.PainMargin, row.Reward)
	if err := c.updates.MarkRolledBack(row.ID, painPsych, reason); err != nil {
		return Reverted{}, err
	}

	out := Reverted{
		LogID:           row.ID,
		EventType:       row.EventType,
		MatrixName:      row.MatrixName,
		RestoredVersion: row.FromVersion,
	}

	// Correlated-write defense: one bad update tends to drag belief and
	// trust writes with it inside the same short window.
	windowEnd := row.CreatedAt.Add(c.cfg.RevertWindow)
	if windowEnd.After(now) {
		windowEnd = now
	}
	if c.beliefs != nil {
		n, err := c.beliefs.DeleteBetween(row.CreatedAt, windowEnd)
		if err != nil {
			return out, err
		}
		out.BeliefsDeleted = n
	}
	if c.trust != nil {
		n, err := c.trust.RevertBetween(row.CreatedAt, windowEnd)
		if err != nil {
			return out, err
		}
		out.TrustReverted = n
	}

	c.log.Warn("plasticity update rolled back",
		zap.Int64("log_id", row.ID),
		zap.String("event_type", row.EventType),
		zap.String("matrix", row.MatrixName),
		zap.Int("restored_version", row.FromVersion),
		zap.Float64("regression", regression),
		zap.Int("beliefs_deleted", out.BeliefsDeleted),
		zap.Int("trust_reverted", out.TrustReverted))
	return out, nil
}
// #endregion evaluate
