package pricing

import (
	"testing"

	"github.com/Simplici0/liveprice/internal/flow"
)

func TestAnalyze(t *testing.T) {
	policy := DefaultConfidencePolicy()

	tests := []struct {
		name        string
		data        func() flow.Data
		want        Confidence
		wantMissing int
	}{
		{
			name:        "empty flow",
			data:        func() flow.Data { return flow.Data{} },
			want:        ConfidenceLow,
			wantMissing: 10,
		},
		{
			name:        "complete flow",
			data:        func() flow.Data { return completeFlow() },
			want:        ConfidenceHigh,
			wantMissing: 0,
		},
		{
			name: "nested duration counts",
			data: func() flow.Data {
				d := completeFlow()
				d.Duration = &flow.Duration{Timeline: &flow.Timeline{EstimatedHours: 4}}
				return d
			},
			want:        ConfidenceHigh,
			wantMissing: 0,
		},
		{
			name: "height in feet counts",
			data: func() flow.Data {
				d := completeFlow()
				d.AreaOfWork.BuildingHeightStories = 0
				d.AreaOfWork.BuildingHeightFeet = 32
				return d
			},
			want:        ConfidenceHigh,
			wantMissing: 0,
		},
		{
			name: "duration missing",
			data: func() flow.Data {
				d := completeFlow()
				d.Duration = nil
				return d
			},
			want:        ConfidenceMedium,
			wantMissing: 1,
		},
		{
			name: "customer contact missing",
			data: func() flow.Data {
				d := completeFlow()
				d.ProjectSetup.CustomerEmail = ""
				d.ProjectSetup.CustomerPhone = "  "
				return d
			},
			want:        ConfidenceMedium,
			wantMissing: 2,
		},
		{
			name: "scope missing",
			data: func() flow.Data {
				d := completeFlow()
				d.ScopeDetails = nil
				return d
			},
			want:        ConfidenceLow,
			wantMissing: 1,
		},
		{
			name: "area missing",
			data: func() flow.Data {
				d := completeFlow()
				d.AreaOfWork = nil
				return d
			},
			want:        ConfidenceLow,
			wantMissing: 3,
		},
		{
			name: "building type missing",
			data: func() flow.Data {
				d := completeFlow()
				d.ProjectSetup.BuildingType = ""
				return d
			},
			want:        ConfidenceLow,
			wantMissing: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := policy.Analyze(tt.data())
			if c.Confidence != tt.want {
				t.Errorf("confidence = %s, want %s (missing %v)", c.Confidence, tt.want, c.Missing)
			}
			if len(c.Missing) != tt.wantMissing {
				t.Errorf("missing = %v, want %d entries", c.Missing, tt.wantMissing)
			}
		})
	}
}

func TestAnalyze_MissingOrderIsStable(t *testing.T) {
	c := DefaultConfidencePolicy().Analyze(flow.Data{})

	want := []string{
		FieldCustomerName, FieldCustomerEmail, FieldCustomerPhone, FieldBuildingType, FieldServiceType,
		FieldHeight, FieldTotalSqft, FieldMeasurements, FieldSelectedServices, FieldEstimatedHours,
	}
	for i, field := range want {
		if c.Missing[i] != field {
			t.Fatalf("missing[%d] = %s, want %s", i, c.Missing[i], field)
		}
	}
}

func TestAnalyze_MinPopulatedStepsIsConfigurable(t *testing.T) {
	d := completeFlow()
	d.Duration = nil

	strict := ConfidencePolicy{MinPopulatedSteps: 4}
	if got := strict.Analyze(d).Confidence; got != ConfidenceLow {
		t.Fatalf("strict confidence = %s, want low", got)
	}
}

func TestConfidenceCap(t *testing.T) {
	if got := ConfidenceHigh.Cap(ConfidenceMedium); got != ConfidenceMedium {
		t.Fatalf("high capped = %s, want medium", got)
	}
	if got := ConfidenceLow.Cap(ConfidenceMedium); got != ConfidenceLow {
		t.Fatalf("low capped = %s, want low", got)
	}
}
