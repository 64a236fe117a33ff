package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

func TestInvalidate_DrugScope(t *testing.T) {
	drugs := newMemDrugs(lipitor(), crestor())
	labels := &mockLabelInvalidator{}
	labels.On("InvalidateLabel", mock.Anything, "0071-0155").Return(nil)

	svc := services.NewCacheInvalidationService(drugs, labels)
	res, err := svc.Invalidate(context.Background(), "drug", "drug-42")
	require.NoError(t, err)

	assert.Equal(t, services.InvalidationScopeDrug, res.Scope)
	assert.Equal(t, int64(1), res.DrugsMarked)
	assert.True(t, drugs.drugs["drug-42"].SourceStale)
	assert.False(t, drugs.drugs["drug-77"].SourceStale)
	labels.AssertExpectations(t)
}

func TestInvalidate_DrugScopeLabelFailureIsNotFatal(t *testing.T) {
	drugs := newMemDrugs(lipitor())
	labels := &mockLabelInvalidator{}
	labels.On("InvalidateLabel", mock.Anything, "0071-0155").Return(errors.New("redis down"))

	res, err := services.NewCacheInvalidationService(drugs, labels).InvalidateDrug(context.Background(), "drug-42")
	require.NoError(t, err)
	assert.Equal(t, "drug-42", res.DrugID)
}

func TestInvalidate_GlobalScope(t *testing.T) {
	drugs := newMemDrugs(lipitor(), crestor())
	labels := &mockLabelInvalidator{}
	labels.On("InvalidateAllLabels", mock.Anything).Return(nil)

	res, err := services.NewCacheInvalidationService(drugs, labels).Invalidate(context.Background(), " GLOBAL ", "")
	require.NoError(t, err)

	assert.Equal(t, services.InvalidationScopeGlobal, res.Scope)
	assert.Equal(t, int64(2), res.DrugsMarked)
	assert.True(t, drugs.drugs["drug-42"].SourceStale)
	assert.True(t, drugs.drugs["drug-77"].SourceStale)
	labels.AssertExpectations(t)
}

func TestInvalidate_Errors(t *testing.T) {
	svc := services.NewCacheInvalidationService(newMemDrugs(lipitor()), nil)

	_, err := svc.Invalidate(context.Background(), "region", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))

	_, err = svc.Invalidate(context.Background(), "drug", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))

	_, err = svc.Invalidate(context.Background(), "drug", "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))
}
