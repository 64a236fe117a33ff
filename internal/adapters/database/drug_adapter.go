package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/repositories"
	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

const drugsTable = "drugs"

var drugColumns = []interface{}{
	"id", "external_id", "set_id", "slug", "brand_name", "generic_name", "manufacturer",
	"indications", "contraindications", "warnings", "dosage", "ingredients",
	"adverse_reactions", "pharm_classes", "source_fetched_at", "source_stale",
	"created_at", "updated_at",
}

// DrugAdapter implements DrugRepository
type DrugAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewDrugAdapter creates a new drug adapter
func NewDrugAdapter(client *postgres.Client) repositories.DrugRepository {
	return &DrugAdapter{
		client: client,
		db:     client.Goqu(),
		now:    time.Now,
	}
}

// Upsert inserts a drug or refreshes the row with the same external identifier
func (a *DrugAdapter) Upsert(ctx context.Context, drug *entities.DrugRecord) error {
	if drug == nil || drug.ExternalID == "" || drug.Slug == "" {
		return apperrors.NewValidationError("drug external_id and slug are required")
	}
	if drug.ID == "" {
		drug.ID = uuid.New().String()
	}
	now := a.now().UTC()
	if drug.CreatedAt.IsZero() {
		drug.CreatedAt = now
	}
	drug.UpdatedAt = now

	record := goqu.Record{
		"id":                drug.ID,
		"external_id":       drug.ExternalID,
		"set_id":            nullString(drug.SetID),
		"slug":              drug.Slug,
		"brand_name":        drug.BrandName,
		"generic_name":      nullString(drug.GenericName),
		"manufacturer":      nullString(drug.Manufacturer),
		"indications":       pq.Array(nonNil(drug.Indications)),
		"contraindications": pq.Array(nonNil(drug.Contraindications)),
		"warnings":          pq.Array(nonNil(drug.Warnings)),
		"dosage":            pq.Array(nonNil(drug.Dosage)),
		"ingredients":       pq.Array(nonNil(drug.Ingredients)),
		"adverse_reactions": pq.Array(nonNil(drug.AdverseReactions)),
		"pharm_classes":     pq.Array(nonNil(drug.PharmClasses)),
		"source_fetched_at": drug.SourceFetchedAt.UTC(),
		"source_stale":      false,
		"created_at":        drug.CreatedAt,
		"updated_at":        drug.UpdatedAt,
	}

	update := goqu.Record{}
	for col := range record {
		if col == "id" || col == "external_id" || col == "created_at" {
			continue
		}
		update[col] = goqu.L("EXCLUDED." + col)
	}

	query, args, err := a.db.Insert(drugsTable).
		Rows(record).
		OnConflict(goqu.DoUpdate("external_id", update)).
		Returning("id", "created_at").
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build drug upsert", err)
	}

	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&drug.ID, &drug.CreatedAt); err != nil {
		return apperrors.NewInternalError("failed to upsert drug", err)
	}
	drug.SourceStale = false
	return nil
}

// GetByID retrieves a drug by ID
func (a *DrugAdapter) GetByID(ctx context.Context, id string) (*entities.DrugRecord, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("drug with id %s not found", id))
}

// GetBySlug retrieves a drug by slug
func (a *DrugAdapter) GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error) {
	return a.getOne(ctx, goqu.Ex{"slug": slug}, fmt.Sprintf("drug with slug %s not found", slug))
}

// GetByExternalID retrieves a drug by its source identifier
func (a *DrugAdapter) GetByExternalID(ctx context.Context, externalID string) (*entities.DrugRecord, error) {
	return a.getOne(ctx, goqu.Ex{"external_id": externalID}, fmt.Sprintf("drug with external_id %s not found", externalID))
}

func (a *DrugAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.DrugRecord, error) {
	query, args, err := a.db.Select(drugColumns...).From(drugsTable).Where(where).Limit(1).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build drug query", err)
	}

	drug, err := scanDrug(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get drug", err)
	}
	return drug, nil
}

// GetByIDs retrieves multiple drugs by their IDs
func (a *DrugAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.DrugRecord, error) {
	if len(ids) == 0 {
		return []*entities.DrugRecord{}, nil
	}
	return a.list(ctx, a.db.Select(drugColumns...).From(drugsTable).Where(goqu.Ex{"id": ids}))
}

// FindByName returns drugs whose brand or generic name matches, ignoring case
func (a *DrugAdapter) FindByName(ctx context.Context, name string) ([]*entities.DrugRecord, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return []*entities.DrugRecord{}, nil
	}

	ds := a.db.Select(drugColumns...).From(drugsTable).
		Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("brand_name")).Eq(name),
			goqu.Func("LOWER", goqu.C("generic_name")).Eq(name),
		)).
		Order(goqu.C("updated_at").Desc()).
		Limit(10)
	return a.list(ctx, ds)
}

// FindCandidates returns drugs overlapping on ingredients, classes or indication terms
func (a *DrugAdapter) FindCandidates(ctx context.Context, q repositories.CandidateQuery) ([]*entities.DrugRecord, error) {
	var clauses []exp.Expression
	if len(q.Ingredients) > 0 {
		clauses = append(clauses, goqu.L("ingredients && ?", pq.Array(lowerAll(q.Ingredients))))
	}
	if len(q.PharmClasses) > 0 {
		clauses = append(clauses, goqu.L("pharm_classes && ?", pq.Array(q.PharmClasses)))
	}
	if len(q.IndicationTerms) > 0 {
		patterns := make([]string, 0, len(q.IndicationTerms))
		for _, term := range q.IndicationTerms {
			patterns = append(patterns, "%"+term+"%")
		}
		clauses = append(clauses, goqu.L("EXISTS (SELECT 1 FROM unnest(indications) AS ind WHERE ind ILIKE ANY(?))", pq.Array(patterns)))
	}
	if len(clauses) == 0 {
		return []*entities.DrugRecord{}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}

	ds := a.db.Select(drugColumns...).From(drugsTable).
		Where(goqu.Or(clauses...)).
		Order(goqu.C("updated_at").Desc()).
		Limit(uint(limit))
	if q.ExcludeID != "" {
		ds = ds.Where(goqu.C("id").Neq(q.ExcludeID))
	}
	return a.list(ctx, ds)
}

// MarkSourceStale flags one drug for refetch on next read
func (a *DrugAdapter) MarkSourceStale(ctx context.Context, id string) error {
	query, args, err := a.db.Update(drugsTable).
		Set(goqu.Record{"source_stale": true, "updated_at": a.now().UTC()}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build stale update", err)
	}

	res, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to mark drug stale", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("drug with id %s not found", id))
	}
	return nil
}

// MarkAllSourceStale flags every drug for refetch on next read
func (a *DrugAdapter) MarkAllSourceStale(ctx context.Context) (int64, error) {
	query, args, err := a.db.Update(drugsTable).
		Set(goqu.Record{"source_stale": true, "updated_at": a.now().UTC()}).
		Where(goqu.Ex{"source_stale": false}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build stale update", err)
	}

	res, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark drugs stale", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// List retrieves drugs ordered by last update
func (a *DrugAdapter) List(ctx context.Context, filter repositories.DrugFilter) ([]*entities.DrugRecord, error) {
	ds := a.db.Select(drugColumns...).From(drugsTable).Order(goqu.C("updated_at").Asc(), goqu.C("id").Asc())
	if filter.UpdatedBefore != nil {
		ds = ds.Where(goqu.C("updated_at").Lt(filter.UpdatedBefore.UTC()))
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	return a.list(ctx, ds)
}

func (a *DrugAdapter) list(ctx context.Context, ds *goqu.SelectDataset) ([]*entities.DrugRecord, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build drug list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list drugs", err)
	}
	defer rows.Close()

	drugs := []*entities.DrugRecord{}
	for rows.Next() {
		drug, err := scanDrug(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan drug", err)
		}
		drugs = append(drugs, drug)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate drugs", err)
	}
	return drugs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDrug(row rowScanner) (*entities.DrugRecord, error) {
	drug := &entities.DrugRecord{}
	var setID, genericName, manufacturer sql.NullString

	err := row.Scan(
		&drug.ID,
		&drug.ExternalID,
		&setID,
		&drug.Slug,
		&drug.BrandName,
		&genericName,
		&manufacturer,
		pq.Array(&drug.Indications),
		pq.Array(&drug.Contraindications),
		pq.Array(&drug.Warnings),
		pq.Array(&drug.Dosage),
		pq.Array(&drug.Ingredients),
		pq.Array(&drug.AdverseReactions),
		pq.Array(&drug.PharmClasses),
		&drug.SourceFetchedAt,
		&drug.SourceStale,
		&drug.CreatedAt,
		&drug.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	drug.SetID = setID.String
	drug.GenericName = genericName.String
	drug.Manufacturer = manufacturer.String
	return drug, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw []byte) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
