package engine

import (
	"context"
	"database/sql"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// PoolReport compares one pool's counters with the ledger.
type PoolReport struct {
	Pool       model.Pool `json:"pool"`
	Total      int        `json:"total"`
	Remaining  int        `json:"remaining"`
	Holding    int        `json:"holding"`
	Consistent bool       `json:"consistent"`
}

// InvariantReport is the result of VerifyMass.
type InvariantReport struct {
	MassID         uint64           `json:"mass_id"`
	Status         model.MassStatus `json:"status"`
	ExpectedStatus model.MassStatus `json:"expected_status"`
	Pools          []PoolReport     `json:"pools"`
	Consistent     bool             `json:"consistent"`
}

// VerifyMass recounts the reservations that hold a unit in each pool and
// checks remaining == total - holding and the derived status.  Counters and
// ledger are read in one transaction so the report is a consistent
// snapshot.
func (e *Engine) VerifyMass(ctx context.Context, massID uint64) (*InvariantReport, error) {
	var report *InvariantReport
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		m, err := e.masses.GetByIDTx(ctx, tx, massID)
		if err != nil {
			return err
		}
		report = &InvariantReport{
			MassID:         m.ID,
			Status:         m.Status,
			ExpectedStatus: model.DeriveMassStatus(m.IntentionRemaining, m.ThanksgivingRemaining),
			Consistent:     true,
		}
		for _, pool := range []model.Pool{model.PoolIntention, model.PoolThanksgiving} {
			holding, err := e.ledger.CountHoldingTx(ctx, tx, massID, pool)
			if err != nil {
				return err
			}
			pr := PoolReport{
				Pool:      pool,
				Total:     m.Total(pool),
				Remaining: m.Remaining(pool),
				Holding:   holding,
			}
			pr.Consistent = pr.Remaining == pr.Total-pr.Holding && pr.Remaining >= 0 && pr.Remaining <= pr.Total
			report.Consistent = report.Consistent && pr.Consistent
			report.Pools = append(report.Pools, pr)
		}
		report.Consistent = report.Consistent && report.Status == report.ExpectedStatus
		return nil
	})
	if err != nil {
		return nil, e.read(ctx, "verify_mass", err)
	}
	if !report.Consistent {
		metrics.ObserveOperation("verify_mass", "drift")
		e.logger.Error().Uint64(log.FieldMassID, massID).Interface("report", report).Msg("capacity invariant violated")
	}
	return report, nil
}
