package evaluation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asaCurry/prescriber-point-sub001/internal/domain/entities"
)

func TestLoadGoldenCases_ValidFile(t *testing.T) {
	content := `[
		{"id": "c1", "drug": {"brand_name": "Lipitor", "generic_name": "atorvastatin calcium"}, "output": "{\"title\":\"Lipitor\"}", "expected": "review"},
		{"id": "c2", "drug": {"generic_name": "metformin"}, "output": "not json", "expected": "malformed"}
	]`
	path := writeTempFile(t, content)

	cases, err := LoadGoldenCases(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].Drug.BrandName != "Lipitor" {
		t.Errorf("expected brand Lipitor, got %s", cases[0].Drug.BrandName)
	}
	if cases[1].Expected != DecisionMalformed {
		t.Errorf("expected malformed, got %s", cases[1].Expected)
	}
}

func TestLoadGoldenCases_InvalidFile(t *testing.T) {
	_, err := LoadGoldenCases("/nonexistent/path.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadGoldenCases_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, `not valid json`)
	_, err := LoadGoldenCases(path)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestValidateGoldenCases(t *testing.T) {
	drug := &entities.DrugRecord{BrandName: "Lipitor"}
	tests := []struct {
		name    string
		cases   []GoldenCase
		wantErr string
	}{
		{
			name:  "valid",
			cases: []GoldenCase{{ID: "c1", Drug: drug, Expected: DecisionPublish}},
		},
		{
			name:    "missing id",
			cases:   []GoldenCase{{Drug: drug, Expected: DecisionPublish}},
			wantErr: "missing id",
		},
		{
			name: "duplicate id",
			cases: []GoldenCase{
				{ID: "c1", Drug: drug, Expected: DecisionPublish},
				{ID: "c1", Drug: drug, Expected: DecisionReview},
			},
			wantErr: "duplicate id",
		},
		{
			name:    "unnamed drug",
			cases:   []GoldenCase{{ID: "c1", Drug: &entities.DrugRecord{}, Expected: DecisionPublish}},
			wantErr: "brand or generic name",
		},
		{
			name:    "unknown decision",
			cases:   []GoldenCase{{ID: "c1", Drug: drug, Expected: "maybe"}},
			wantErr: "invalid expected decision",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGoldenCases(tt.cases)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "golden.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
