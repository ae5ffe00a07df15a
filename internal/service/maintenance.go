package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/moneyimport/internal/database"
	"github.com/jask/moneyimport/internal/database/repository"
	"github.com/jask/moneyimport/internal/logger"
)

// MaintenanceService houses destructive operations surfaced through the CLI.
type MaintenanceService struct {
	DB       *sql.DB
	Sessions *repository.SessionRepo
}

// Reset reverts every completed import session, then drops merchant rules
// and accounts left without transactions. Session rows stay as the audit
// trail; the schema and seeded categories survive. It returns how many
// sessions were reverted.
func (s *MaintenanceService) Reset(ctx context.Context) (int, error) {
	if s.DB == nil || s.Sessions == nil {
		return 0, fmt.Errorf("maintenance: db not configured")
	}
	ids, err := s.Sessions.CompletedIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	for i, id := range ids {
		if _, err := s.Sessions.Revert(ctx, id); err != nil {
			return i, fmt.Errorf("revert session %s: %w", id, err)
		}
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM merchant_rules`); err != nil {
			return fmt.Errorf("reset merchant rules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id NOT IN (SELECT account_id FROM transactions)`); err != nil {
			return fmt.Errorf("reset accounts: %w", err)
		}
		return nil
	}); err != nil {
		return len(ids), err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	log := logger.FromContext(ctx)
	log.Info().Int("sessions", len(ids)).Msg("reset")
	return len(ids), nil
}
