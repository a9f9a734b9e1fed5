package refund

import (
	"testing"

	"github.com/codr1/courtbook/internal/models"
)

func TestCalculate(t *testing.T) {
	policy := models.DefaultCancellationPolicy()

	tests := []struct {
		name        string
		price       int64
		hours       float64
		wantPercent int
		wantAmount  int64
	}{
		{"well ahead", 2000, 72, 100, 2000},
		{"exactly free threshold", 2000, 24, 100, 2000},
		{"just under free threshold", 2000, 23.99, 50, 1000},
		{"exactly partial threshold", 2000, 12, 50, 1000},
		{"just under partial threshold", 2000, 11.99, 0, 0},
		{"already started", 2000, -2, 0, 0},
		{"odd price rounds half up", 1005, 13, 50, 503},
		{"free booking", 0, 48, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.price, tt.hours, policy)
			if got.Percent != tt.wantPercent || got.AmountMinor != tt.wantAmount {
				t.Fatalf("Calculate(%d, %v) = %+v, want %d%% / %d", tt.price, tt.hours, got, tt.wantPercent, tt.wantAmount)
			}
		})
	}
}

func TestCalculateTierProperty(t *testing.T) {
	policies := []models.CancellationPolicy{
		models.DefaultCancellationPolicy(),
		{FreeCancellationHours: 48, PartialRefundHours: 6, PartialRefundPercent: 25},
		{FreeCancellationHours: 10, PartialRefundHours: 10, PartialRefundPercent: 75},
		{FreeCancellationHours: 0, PartialRefundHours: 0, PartialRefundPercent: 0},
	}
	for _, p := range policies {
		for h := -48.0; h <= 96; h += 0.5 {
			got := Calculate(10000, h, p)
			var want int
			switch {
			case h >= float64(p.FreeCancellationHours):
				want = 100
			case h >= float64(p.PartialRefundHours):
				want = p.PartialRefundPercent
			}
			if got.Percent != want {
				t.Fatalf("policy %+v, h=%v: percent = %d, want %d", p, h, got.Percent, want)
			}
			if got.AmountMinor != int64(want)*100 {
				t.Fatalf("policy %+v, h=%v: amount = %d", p, h, got.AmountMinor)
			}
		}
	}
}

func TestCalculateNoRefundWindowCollapses(t *testing.T) {
	policy := models.CancellationPolicy{
		FreeCancellationHours: 24,
		PartialRefundHours:    12,
		PartialRefundPercent:  50,
		NoRefundHours:         6,
	}
	between := Calculate(2000, 8, policy)
	past := Calculate(2000, 2, policy)
	if between != past || between.Percent != 0 {
		t.Fatalf("between windows %+v, past no-refund %+v", between, past)
	}
}

func TestFull(t *testing.T) {
	if got := Full(4200); got.Percent != 100 || got.AmountMinor != 4200 {
		t.Fatalf("Full = %+v", got)
	}
}
