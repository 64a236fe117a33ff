package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestRate(t *testing.T) {
	if got := Rate(3, 4); !almostEqual(got, 0.75) {
		t.Errorf("expected 0.75, got %f", got)
	}
	if got := Rate(3, 0); !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0 for empty total, got %f", got)
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{0.2, 0.4, 0.9}); !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := Mean(nil); !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0 for no values, got %f", got)
	}
}

func TestAgreement_AllMatch(t *testing.T) {
	d := []Decision{DecisionPublish, DecisionReview}
	if got := Agreement(d, d); !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestAgreement_Partial(t *testing.T) {
	expected := []Decision{DecisionPublish, DecisionReview, DecisionReject, DecisionMalformed}
	predicted := []Decision{DecisionPublish, DecisionPublish, DecisionReject, DecisionReview}
	if got := Agreement(expected, predicted); !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestAgreement_LengthMismatch(t *testing.T) {
	expected := []Decision{DecisionPublish, DecisionReview}
	predicted := []Decision{DecisionPublish}
	if got := Agreement(expected, predicted); !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestAgreement_Empty(t *testing.T) {
	if got := Agreement(nil, nil); !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}
