package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
)

type MockDrugService struct {
	mock.Mock
}

func (m *MockDrugService) GetBySlug(ctx context.Context, slug string) (*entities.DrugRecord, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DrugRecord), args.Error(1)
}

func (m *MockDrugService) FetchAndCache(ctx context.Context, externalID string) (*entities.DrugRecord, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DrugRecord), args.Error(1)
}

func (m *MockDrugService) GetRelated(ctx context.Context, drugID string, limit int) ([]*entities.RelatedDrugLink, error) {
	args := m.Called(ctx, drugID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RelatedDrugLink), args.Error(1)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, drugID string, opts services.EnrichOptions) (*entities.EnrichmentResult, error) {
	args := m.Called(ctx, drugID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EnrichmentResult), args.Error(1)
}

type MockBatchEnricher struct {
	mock.Mock
}

func (m *MockBatchEnricher) Run(ctx context.Context, drugIDs []string, opts services.EnrichOptions) (*services.BatchResult, error) {
	args := m.Called(ctx, drugIDs, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BatchResult), args.Error(1)
}

func (m *MockBatchEnricher) Start(ctx context.Context, drugIDs []string, forceRefresh bool) ([]string, error) {
	args := m.Called(ctx, drugIDs, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context, scope, drugID string) (*services.InvalidationResult, error) {
	args := m.Called(ctx, scope, drugID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InvalidationResult), args.Error(1)
}

type MockBreakers struct {
	mock.Mock
}

func (m *MockBreakers) Snapshot() []breaker.Snapshot {
	args := m.Called()
	return args.Get(0).([]breaker.Snapshot)
}

func (m *MockBreakers) Reset(name string) error {
	return m.Called(name).Error(0)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
