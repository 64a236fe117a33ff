package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// EnrichmentAdapter implements EnrichmentRepository.
type EnrichmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewEnrichmentAdapter creates a new adapter.
func NewEnrichmentAdapter(client *postgres.Client) repositories.EnrichmentRepository {
	return &EnrichmentAdapter{
		client: client,
		db:     client.Goqu(),
		now:    time.Now,
	}
}

// GetByDrugID retrieves enrichment by drug ID.
func (a *EnrichmentAdapter) GetByDrugID(ctx context.Context, drugID string) (*entities.EnrichmentRecord, error) {
	query, args, err := a.db.Select(
		"id",
		"drug_id",
		"title",
		"meta_description",
		"summary",
		"section_summaries",
		"faqs",
		"structured_data",
		"keywords",
		"confidence",
		"is_published",
		"is_reviewed",
		"review_reason",
		"provider",
		"model",
		"last_attempt_at",
		"last_success_at",
		"created_at",
		"updated_at",
	).
		From("drug_enrichments").
		Where(goqu.Ex{"drug_id": drugID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build enrichment query", err)
	}

	var sectionsRaw, faqsRaw, structuredRaw []byte
	var title, metaDescription, summary, reviewReason, provider, model sql.NullString
	var confidence sql.NullFloat64
	var lastAttempt, lastSuccess sql.NullTime
	record := &entities.EnrichmentRecord{}

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&record.ID,
		&record.DrugID,
		&title,
		&metaDescription,
		&summary,
		&sectionsRaw,
		&faqsRaw,
		&structuredRaw,
		pq.Array(&record.Keywords),
		&confidence,
		&record.IsPublished,
		&record.IsReviewed,
		&reviewReason,
		&provider,
		&model,
		&lastAttempt,
		&lastSuccess,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("enrichment for drug %s not found", drugID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get drug enrichment", err)
	}

	record.Title = title.String
	record.MetaDescription = metaDescription.String
	record.Summary = summary.String
	record.ReviewReason = reviewReason.String
	record.Provider = provider.String
	record.Model = model.String
	if confidence.Valid {
		c := confidence.Float64
		record.Confidence = &c
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		record.LastAttemptAt = &t
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		record.LastSuccessAt = &t
	}

	record.SectionSummaries = map[string]string{}
	if len(sectionsRaw) > 0 {
		_ = json.Unmarshal(sectionsRaw, &record.SectionSummaries)
	}
	if len(faqsRaw) > 0 {
		_ = json.Unmarshal(faqsRaw, &record.FAQs)
	}
	if json.Valid(structuredRaw) && string(structuredRaw) != "null" {
		record.StructuredData = json.RawMessage(structuredRaw)
	}

	return record, nil
}

// SaveGenerated upserts generated content along with its score and publication state.
func (a *EnrichmentAdapter) SaveGenerated(ctx context.Context, record *entities.EnrichmentRecord) error {
	if record == nil || record.DrugID == "" {
		return apperrors.NewValidationError("enrichment drug_id is required")
	}
	if record.Confidence == nil {
		return apperrors.NewValidationError("generated enrichment requires a confidence score")
	}
	if record.LastSuccessAt == nil {
		return apperrors.NewValidationError("generated enrichment requires last_success_at")
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := a.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.LastAttemptAt = record.LastSuccessAt

	sectionsBytes, _ := json.Marshal(orEmptyMap(record.SectionSummaries))
	faqsBytes, _ := json.Marshal(orEmptyFAQs(record.FAQs))

	query := `
		INSERT INTO drug_enrichments
			(id, drug_id, title, meta_description, summary, section_summaries, faqs, structured_data,
			 keywords, confidence, is_published, is_reviewed, review_reason, provider, model,
			 last_attempt_at, last_success_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (drug_id)
		DO UPDATE SET
			title = EXCLUDED.title,
			meta_description = EXCLUDED.meta_description,
			summary = EXCLUDED.summary,
			section_summaries = EXCLUDED.section_summaries,
			faqs = EXCLUDED.faqs,
			structured_data = EXCLUDED.structured_data,
			keywords = EXCLUDED.keywords,
			confidence = EXCLUDED.confidence,
			is_published = EXCLUDED.is_published,
			is_reviewed = EXCLUDED.is_reviewed,
			review_reason = EXCLUDED.review_reason,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_success_at = EXCLUDED.last_success_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := a.client.DB().QueryRowContext(
		ctx,
		query,
		record.ID,
		record.DrugID,
		record.Title,
		record.MetaDescription,
		record.Summary,
		string(sectionsBytes),
		string(faqsBytes),
		nullJSON(record.StructuredData),
		pq.Array(nonNil(record.Keywords)),
		*record.Confidence,
		record.IsPublished,
		record.IsReviewed,
		nullString(record.ReviewReason),
		record.Provider,
		record.Model,
		record.LastAttemptAt.UTC(),
		record.LastSuccessAt.UTC(),
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert drug enrichment", err)
	}

	return nil
}

// MarkAttempt records a failed attempt. Existing content, confidence and
// publication flags are left as they were.
func (a *EnrichmentAdapter) MarkAttempt(ctx context.Context, drugID string, at time.Time) error {
	if drugID == "" {
		return apperrors.NewValidationError("drug_id is required")
	}
	now := a.now().UTC()

	query := `
		INSERT INTO drug_enrichments (id, drug_id, last_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (drug_id)
		DO UPDATE SET
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := a.client.DB().ExecContext(ctx, query, uuid.New().String(), drugID, at.UTC(), now, now); err != nil {
		return apperrors.NewInternalError("failed to record enrichment attempt", err)
	}
	return nil
}

// ListDue returns drugs that have never been enriched or whose content has
// expired, oldest first, skipping those with a recent failed attempt.
func (a *EnrichmentAdapter) ListDue(ctx context.Context, staleBefore, retryBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT d.id
		FROM drugs d
		LEFT JOIN drug_enrichments e ON e.drug_id = d.id
		WHERE (e.last_success_at IS NULL OR e.last_success_at < $1)
		  AND (e.last_attempt_at IS NULL OR e.last_attempt_at < $2)
		ORDER BY e.last_success_at ASC NULLS FIRST, d.id ASC
		LIMIT $3
	`

	rows, err := a.client.DB().QueryContext(ctx, query, staleBefore.UTC(), retryBefore.UTC(), limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list due enrichments", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewInternalError("failed to scan drug id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate due enrichments", err)
	}
	return ids, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyFAQs(faqs []entities.FAQ) []entities.FAQ {
	if faqs == nil {
		return []entities.FAQ{}
	}
	return faqs
}
