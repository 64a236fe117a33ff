package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaCurry/prescriber-point-sub001/internal/application/services"
	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
	"github.com/asaCurry/prescriber-point-sub001/pkg/breaker"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

func waitOpts() services.EnrichOptions {
	return services.EnrichOptions{WaitForCompletion: true}
}

func TestEnrich_GeneratesAndPublishes(t *testing.T) {
	f := newFixture(lipitor(), crestor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.9)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusGenerated, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceEnrichment, res.Content.Source)
	assert.Equal(t, "Lipitor (Atorvastatin): Uses and Safety", res.Content.Title)
	require.NotNil(t, res.Confidence)
	assert.Equal(t, 0.9, *res.Confidence)

	saved := f.enrichments.get("drug-42")
	require.NotNil(t, saved)
	assert.True(t, saved.IsPublished)
	assert.False(t, saved.IsReviewed)
	assert.Empty(t, saved.ReviewReason)
	assert.Equal(t, "scripted", saved.Provider)
	assert.Equal(t, f.now, *saved.LastSuccessAt)
	assert.Contains(t, string(saved.StructuredData), `"@type":"Drug"`)
	assert.Equal(t, saved.StructuredData, res.Content.StructuredData)

	links := f.related.get("drug-42")
	require.Len(t, links, 1)
	assert.Equal(t, "drug-77", links[0].TargetDrugID)
}

func TestEnrich_ConcurrentWaitersShareOneProviderCall(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	f.provider.gate = make(chan struct{})
	o := f.orchestrator(0.9)

	var wg sync.WaitGroup
	results := make([]*entities.EnrichmentResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Enrich(context.Background(), "drug-42", waitOpts())
		}()
	}

	require.Eventually(t, func() bool { return f.provider.enrichmentCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(f.provider.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), f.provider.enrichmentCalls.Load())
	assert.Equal(t, results[0].Content, results[1].Content)
	assert.Equal(t, entities.ContentSourceEnrichment, results[0].Content.Source)
	assert.Equal(t, 1, f.enrichments.saves)
}

func TestEnrich_IdempotentWithinValidityWindow(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.9)

	first, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	f.now = f.now.Add(23 * time.Hour)
	second, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusGenerated, first.Status)
	assert.Equal(t, entities.StatusFresh, second.Status)
	assert.Equal(t, int32(1), f.provider.enrichmentCalls.Load())
	assert.Equal(t, first.Content, second.Content)
}

func TestEnrich_ForceRefreshRegenerates(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.9)

	_, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	res, err := o.Enrich(context.Background(), "drug-42", services.EnrichOptions{WaitForCompletion: true, ForceRefresh: true})
	require.NoError(t, err)

	assert.Equal(t, entities.StatusGenerated, res.Status)
	assert.Equal(t, int32(2), f.provider.enrichmentCalls.Load())
}

func TestEnrich_LowConfidenceIsHeldBackAndRawContentServed(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.55)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	saved := f.enrichments.get("drug-42")
	require.NotNil(t, saved)
	assert.False(t, saved.IsPublished)
	assert.False(t, saved.IsReviewed)
	assert.Equal(t, entities.ReviewReasonBelowPublish, saved.ReviewReason)
	assert.Equal(t, 0.55, *saved.Confidence)

	assert.Equal(t, entities.StatusPendingReview, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceRaw, res.Content.Source)
	assert.Equal(t, "Lipitor (atorvastatin calcium)", res.Content.Title)

	// Pending review is fresh: no regeneration, still raw.
	again, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPendingReview, again.Status)
	assert.Equal(t, entities.ContentSourceRaw, again.Content.Source)
	assert.Equal(t, int32(1), f.provider.enrichmentCalls.Load())
}

func TestEnrich_BelowAcceptanceIsDiscarded(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.2)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusFailed, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceRaw, res.Content.Source)
	assert.Zero(t, f.enrichments.saves)

	record := f.enrichments.get("drug-42")
	require.NotNil(t, record)
	assert.Nil(t, record.LastSuccessAt)
	assert.Equal(t, f.now, *record.LastAttemptAt)
}

func TestEnrich_RejectedRefreshKeepsPublishedContent(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	score := newScoreSequence(0.9, 0.2)
	o := f.orchestratorWithScorer(score)

	_, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	published := f.now
	f.now = f.now.Add(48 * time.Hour)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.provider.enrichmentCalls.Load())
	assert.Equal(t, entities.StatusStale, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceEnrichment, res.Content.Source)
	require.NotNil(t, res.Confidence)
	assert.Equal(t, 0.9, *res.Confidence)

	record := f.enrichments.get("drug-42")
	assert.True(t, record.IsPublished)
	assert.Equal(t, 0.9, *record.Confidence)
	assert.Equal(t, published, *record.LastSuccessAt)
	assert.Equal(t, f.now, *record.LastAttemptAt)
	assert.Equal(t, 1, f.enrichments.saves)
}

func TestEnrich_ProviderFailureFallsBackToRaw(t *testing.T) {
	f := newFixture(lipitor(), crestor())
	f.provider.enrichment = []providerReply{{err: apperrors.NewTransientError("upstream 503", nil)}}
	o := f.orchestrator(0.9)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusFailed, res.Status)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Confidence)
	assert.Equal(t, entities.ContentSourceRaw, res.Content.Source)
	assert.Contains(t, string(res.Content.StructuredData), `"name":"Lipitor"`)

	record := f.enrichments.get("drug-42")
	require.NotNil(t, record)
	assert.Nil(t, record.LastSuccessAt)
	assert.Nil(t, record.Confidence)
	assert.Equal(t, f.now, *record.LastAttemptAt)

	// Related links still come from heuristics, without a provider call.
	assert.Equal(t, int32(0), f.provider.relatedCalls.Load())
	require.Len(t, f.related.get("drug-42"), 1)
	assert.Equal(t, entities.LinkOriginHeuristic, f.related.get("drug-42")[0].Origin)
}

func TestEnrich_FailedRefreshKeepsServingStalePublishedContent(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}, {err: apperrors.NewTransientError("timeout", nil)}}
	o := f.orchestrator(0.9)

	_, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	f.now = f.now.Add(48 * time.Hour)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusStale, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceEnrichment, res.Content.Source)
	require.NotNil(t, res.Confidence)
	assert.Equal(t, 0.9, *res.Confidence)

	record := f.enrichments.get("drug-42")
	assert.Equal(t, f.now, *record.LastAttemptAt)
	assert.Equal(t, f.now.Add(-48*time.Hour), *record.LastSuccessAt)
}

func TestEnrich_FailedRefreshKeepsGeneratedRelatedLinks(t *testing.T) {
	f := newFixture(lipitor(), crestor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}, {err: apperrors.NewTransientError("timeout", nil)}}
	f.provider.related = []providerReply{{text: `[{"name":"Crestor","relationship":"same_class","reason":"statin"}]`}}
	o := f.orchestrator(0.9)

	_, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	f.now = f.now.Add(48 * time.Hour)
	_, err = o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	links := f.related.get("drug-42")
	require.Len(t, links, 1)
	assert.Equal(t, entities.LinkOriginGeneration, links[0].Origin)
	assert.Equal(t, int32(1), f.provider.relatedCalls.Load())
}

func TestEnrich_BreakerOpensAfterThresholdAndSkipsProvider(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{err: apperrors.NewTransientError("generation timed out", context.DeadlineExceeded)}}
	o := f.orchestrator(0.9)

	for i := 0; i < 5; i++ {
		res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
		require.NoError(t, err)
		assert.Equal(t, entities.StatusFailed, res.Status)
	}
	assert.Equal(t, breaker.StateOpen, f.breakers.Get(breaker.OperationEnrichment).State())
	assert.Equal(t, breaker.StateClosed, f.breakers.Get(breaker.OperationRelatedDrugs).State())

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	assert.Equal(t, entities.StatusFailed, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, int32(5), f.provider.enrichmentCalls.Load())
}

func TestEnrich_MalformedOutputDoesNotTripBreaker(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: "I cannot help with that."}}
	o := f.orchestrator(0.9)

	for i := 0; i < 6; i++ {
		res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
		require.NoError(t, err)
		assert.Equal(t, entities.StatusFailed, res.Status)
	}
	assert.Equal(t, breaker.StateClosed, f.breakers.Get(breaker.OperationEnrichment).State())
	assert.Equal(t, int32(6), f.provider.enrichmentCalls.Load())
}

func TestEnrich_BackgroundPathReturnsFallbackThenPersists(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.9)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := o.Enrich(ctx, "drug-42", services.EnrichOptions{})
	require.NoError(t, err)
	cancel()

	assert.Equal(t, entities.StatusInProgress, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceRaw, res.Content.Source)

	o.Wait()
	saved := f.enrichments.get("drug-42")
	require.NotNil(t, saved)
	assert.True(t, saved.IsPublished)
}

func TestEnrich_StaleWhileRevalidate(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	o := f.orchestrator(0.9)

	_, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	f.now = f.now.Add(25 * time.Hour)

	res, err := o.Enrich(context.Background(), "drug-42", services.EnrichOptions{})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusStale, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, entities.ContentSourceEnrichment, res.Content.Source)

	o.Wait()
	assert.Equal(t, int32(2), f.provider.enrichmentCalls.Load())
	assert.Equal(t, f.now, *f.enrichments.get("drug-42").LastSuccessAt)
}

func TestEnrich_LockHeldElsewhereReturnsInProgress(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	f.locker.held["enrich:drug-42"] = true
	o := f.orchestrator(0.9)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)

	assert.Equal(t, entities.StatusInProgress, res.Status)
	assert.True(t, res.Degraded)
	assert.Equal(t, int32(0), f.provider.enrichmentCalls.Load())
}

func TestEnrich_LockUnavailableStillGenerates(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	f.locker.err = errors.New("redis: connection refused")
	o := f.orchestrator(0.9)

	res, err := o.Enrich(context.Background(), "drug-42", waitOpts())
	require.NoError(t, err)
	assert.Equal(t, entities.StatusGenerated, res.Status)
}

func TestEnrich_UnknownDrug(t *testing.T) {
	f := newFixture(lipitor())
	o := f.orchestrator(0.9)

	_, err := o.Enrich(context.Background(), "missing", waitOpts())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeNotFound))

	_, err = o.Enrich(context.Background(), "", waitOpts())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeValidation))
}

func TestEnrich_CallerCancellationWhileWaiting(t *testing.T) {
	f := newFixture(lipitor())
	f.provider.enrichment = []providerReply{{text: enrichmentJSON()}}
	f.provider.gate = make(chan struct{})
	o := f.orchestrator(0.9)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Enrich(ctx, "drug-42", waitOpts())
		done <- err
	}()

	require.Eventually(t, func() bool { return f.provider.enrichmentCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The leader keeps running and persists for later readers.
	close(f.provider.gate)
	require.Eventually(t, func() bool { return f.enrichments.get("drug-42") != nil }, time.Second, time.Millisecond)
}
