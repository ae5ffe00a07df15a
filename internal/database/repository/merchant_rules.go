package repository

import (
	"context"
	"database/sql"
	"errors"
)

// MerchantRuleRepo stores categorization rules.
type MerchantRuleRepo struct{ db *sql.DB }

func NewMerchantRuleRepo(db *sql.DB) *MerchantRuleRepo { return &MerchantRuleRepo{db: db} }

func (r *MerchantRuleRepo) Add(ctx context.Context, mr MerchantRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchant_rules(id, pattern, pattern_type, category_id, confidence, source, created_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, mr.ID, mr.Pattern, mr.PatternType, mr.CategoryID, mr.Confidence, mr.Source)
	return err
}

// Match returns the best rule for description: an exact rule first, then the
// most confident "contains" rule. It returns nil when nothing matches.
func (r *MerchantRuleRepo) Match(ctx context.Context, description string) (*MerchantRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, pattern, pattern_type, category_id, confidence, source, created_at
	FROM merchant_rules WHERE pattern_type = 'exact' AND pattern = ? COLLATE NOCASE
	`, description)
	mr, err := scanRule(row)
	if err == nil {
		return mr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	row = r.db.QueryRowContext(ctx, `
	SELECT id, pattern, pattern_type, category_id, confidence, source, created_at
	FROM merchant_rules WHERE pattern_type = 'contains' AND ? LIKE '%' || pattern || '%'
	ORDER BY confidence DESC LIMIT 1
	`, description)
	mr, err = scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return mr, err
}

func scanRule(row scanner) (*MerchantRule, error) {
	var mr MerchantRule
	if err := row.Scan(&mr.ID, &mr.Pattern, &mr.PatternType, &mr.CategoryID, &mr.Confidence, &mr.Source, &mr.CreatedAt); err != nil {
		return nil, err
	}
	return &mr, nil
}
