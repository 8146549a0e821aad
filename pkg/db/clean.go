package db

import (
	"context"
	"fmt"
	"time"
)

// CleanOldData removes device events older than the retention period.
// Triggers are kept so the phase survives any retention setting.
func (db *DB) CleanOldData(ctx context.Context, retentionPeriod time.Duration) (err error) {
	cutoff := time.Now().Add(-retentionPeriod).UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.logger.Error().Err(rbErr).Msg("Failed to rollback")
			}

			return
		}

		err = tx.Commit()
	}()

	result, err := tx.ExecContext(ctx, "DELETE FROM device_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("%w device events: %w", ErrFailedToClean, err)
	}

	if n, rerr := result.RowsAffected(); rerr == nil && n > 0 {
		db.logger.Info().Int64("rows", n).Dur("retention", retentionPeriod).Msg("Cleaned old device events")
	}

	return nil
}
