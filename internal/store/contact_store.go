package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/mailsync/internal/model"
)

// UpsertContact inserts or replaces a contact rule. The match value is
// lower-cased at the boundary so lookups are case-insensitive.
func (s *SQLiteStore) UpsertContact(ctx context.Context, rule model.ContactRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO contact_rules (
			match_type, match_value, entity_type, entity_name, entity_path
		) VALUES (?, ?, ?, ?, ?)`,
		string(rule.MatchType), strings.ToLower(rule.MatchValue),
		string(rule.EntityType), rule.EntityName, rule.EntityPath,
	)
	if err != nil {
		return fmt.Errorf("upserting contact rule %s/%s: %w",
			rule.MatchType, rule.MatchValue, err)
	}

	return nil
}

// FindContactByEmail looks up an exact email rule for the given address.
// Returns nil when no rule matches.
func (s *SQLiteStore) FindContactByEmail(
	ctx context.Context,
	addr string,
) (*model.ContactRule, error) {
	return s.findContact(ctx, model.MatchEmail, addr)
}

// FindContactByDomain looks up a domain rule for the given sender domain.
// Returns nil when no rule matches.
func (s *SQLiteStore) FindContactByDomain(
	ctx context.Context,
	domain string,
) (*model.ContactRule, error) {
	return s.findContact(ctx, model.MatchDomain, domain)
}

// IsNoiseDomain reports whether the given domain is in the noise table.
func (s *SQLiteStore) IsNoiseDomain(ctx context.Context, domain string) (bool, error) {
	rule, err := s.findContact(ctx, model.MatchNoiseDomain, domain)
	if err != nil {
		return false, err
	}
	return rule != nil, nil
}

// findContact retrieves a single contact rule by type and value.
func (s *SQLiteStore) findContact(
	ctx context.Context,
	matchType model.MatchType,
	matchValue string,
) (*model.ContactRule, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT match_type, match_value, entity_type, entity_name, entity_path
		FROM contact_rules
		WHERE match_type = ? AND match_value = ?`,
		string(matchType), strings.ToLower(matchValue),
	)
	if err != nil {
		return nil, fmt.Errorf("finding contact rule %s/%s: %w",
			matchType, matchValue, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		rule       model.ContactRule
		mType      string
		entityType string
	)
	if err := rows.Scan(
		&mType, &rule.MatchValue, &entityType,
		&rule.EntityName, &rule.EntityPath,
	); err != nil {
		return nil, fmt.Errorf("scanning contact rule: %w", err)
	}

	rule.MatchType = model.MatchType(mType)
	rule.EntityType = model.ParseCategory(entityType)

	return &rule, nil
}
