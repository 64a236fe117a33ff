package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

const relationshipPriorityOrder = `CASE l.relationship
	WHEN 'same_class' THEN 4
	WHEN 'similar_indication' THEN 3
	WHEN 'generic_equivalent' THEN 2
	ELSE 1 END`

// RelatedDrugAdapter implements RelatedDrugRepository.
type RelatedDrugAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewRelatedDrugAdapter creates a new adapter.
func NewRelatedDrugAdapter(client *postgres.Client) repositories.RelatedDrugRepository {
	return &RelatedDrugAdapter{
		client: client,
		db:     client.Goqu(),
		now:    time.Now,
	}
}

// ReplaceForSource upserts the given links and drops the source's links to
// targets outside the set, in one transaction.
func (a *RelatedDrugAdapter) ReplaceForSource(ctx context.Context, sourceDrugID string, links []*entities.RelatedDrugLink) error {
	if sourceDrugID == "" {
		return apperrors.NewValidationError("source drug id is required")
	}

	targets := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, link := range links {
		switch {
		case link.SourceDrugID != sourceDrugID:
			return apperrors.NewValidationError(fmt.Sprintf("link source %s does not match %s", link.SourceDrugID, sourceDrugID))
		case link.TargetDrugID == sourceDrugID:
			return apperrors.NewValidationError("a drug cannot be related to itself")
		case seen[link.TargetDrugID]:
			return apperrors.NewValidationError(fmt.Sprintf("duplicate related link to %s", link.TargetDrugID))
		case link.Confidence < 0 || link.Confidence > 1:
			return apperrors.NewValidationError(fmt.Sprintf("confidence %v out of range", link.Confidence))
		}
		seen[link.TargetDrugID] = true
		targets = append(targets, link.TargetDrugID)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin related links transaction", err)
	}
	defer tx.Rollback()

	now := a.now().UTC()
	upsert := `
		INSERT INTO related_drug_links
			(id, source_drug_id, target_drug_id, relationship, confidence, reason, origin, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_drug_id, target_drug_id)
		DO UPDATE SET
			relationship = EXCLUDED.relationship,
			confidence = EXCLUDED.confidence,
			reason = EXCLUDED.reason,
			origin = EXCLUDED.origin,
			updated_at = EXCLUDED.updated_at
	`
	for _, link := range links {
		if link.ID == "" {
			link.ID = uuid.New().String()
		}
		if link.CreatedAt.IsZero() {
			link.CreatedAt = now
		}
		link.UpdatedAt = now

		if _, err := tx.ExecContext(ctx, upsert,
			link.ID,
			link.SourceDrugID,
			link.TargetDrugID,
			string(link.Relationship),
			link.Confidence,
			nullString(link.Reason),
			link.Origin,
			link.CreatedAt,
			link.UpdatedAt,
		); err != nil {
			return apperrors.NewInternalError("failed to upsert related link", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM related_drug_links WHERE source_drug_id = $1 AND NOT (target_drug_id = ANY($2::uuid[]))`,
		sourceDrugID, pq.Array(targets),
	); err != nil {
		return apperrors.NewInternalError("failed to prune related links", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit related links", err)
	}
	return nil
}

// ListBySource returns a drug's links with target display fields.
func (a *RelatedDrugAdapter) ListBySource(ctx context.Context, sourceDrugID string, limit int) ([]*entities.RelatedDrugLink, error) {
	ds := a.db.From(goqu.T("related_drug_links").As("l")).
		Join(goqu.T(drugsTable).As("d"), goqu.On(goqu.I("d.id").Eq(goqu.I("l.target_drug_id")))).
		Select(
			"l.id", "l.source_drug_id", "l.target_drug_id", "l.relationship", "l.confidence",
			"l.reason", "l.origin", "l.created_at", "l.updated_at",
			"d.slug", "d.brand_name", "d.generic_name",
		).
		Where(goqu.I("l.source_drug_id").Eq(sourceDrugID)).
		Order(
			goqu.I("l.confidence").Desc(),
			goqu.L(relationshipPriorityOrder).Desc(),
			goqu.I("l.target_drug_id").Asc(),
		)
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build related links query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list related links", err)
	}
	defer rows.Close()

	links := []*entities.RelatedDrugLink{}
	for rows.Next() {
		link := &entities.RelatedDrugLink{}
		var relationship string
		var reason, genericName sql.NullString
		if err := rows.Scan(
			&link.ID,
			&link.SourceDrugID,
			&link.TargetDrugID,
			&relationship,
			&link.Confidence,
			&reason,
			&link.Origin,
			&link.CreatedAt,
			&link.UpdatedAt,
			&link.TargetSlug,
			&link.TargetBrandName,
			&genericName,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan related link", err)
		}
		link.Relationship = entities.RelationshipType(relationship)
		link.Reason = reason.String
		link.TargetGenericName = genericName.String
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate related links", err)
	}

	sort.SliceStable(links, func(i, j int) bool { return links[i].RankBefore(links[j]) })
	return links, nil
}
