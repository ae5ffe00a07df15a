package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jask/moneyimport/internal/database/repository"
)

// RuleEnricher categorizes a fresh session's uncategorized transactions from
// stored merchant rules. Rows that already carry a category are left alone.
type RuleEnricher struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.MerchantRuleRepo
}

func (e *RuleEnricher) Enrich(ctx context.Context, sessionID string) error {
	rows, err := e.Transactions.List(ctx, repository.TransactionFilters{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("list session transactions: %w", err)
	}
	var errs []error
	for _, tx := range rows {
		if tx.CategoryID != nil {
			continue
		}
		mr, err := e.Rules.Match(ctx, tx.RawDescription)
		if err != nil {
			errs = append(errs, fmt.Errorf("match %s: %w", tx.ID, err))
			continue
		}
		if mr == nil {
			continue
		}
		if err := e.Transactions.UpdateCategory(ctx, tx.ID, &mr.CategoryID); err != nil {
			errs = append(errs, fmt.Errorf("categorize %s: %w", tx.ID, err))
		}
	}
	return errors.Join(errs...)
}
