package money

import "testing"

func TestDistribute(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []int64
	}{
		{
			name:    "even split no remainder",
			total:   10000,
			weights: []int64{1, 1},
			want:    []int64{5000, 5000},
		},
		{
			name:    "remainder goes to largest weight",
			total:   10,
			weights: []int64{1, 1, 1},
			want:    []int64{4, 3, 3},
		},
		{
			name:    "proportional refund across captures",
			total:   3000,
			weights: []int64{8000, 4000},
			want:    []int64{2000, 1000},
		},
		{
			name:    "uneven weights",
			total:   10000,
			weights: []int64{7000, 3000},
			want:    []int64{7000, 3000},
		},
		{
			name:    "single weight takes everything",
			total:   999,
			weights: []int64{123},
			want:    []int64{999},
		},
		{
			name:    "zero total",
			total:   0,
			weights: []int64{5, 5},
			want:    []int64{0, 0},
		},
		{
			name:    "zero weight gets nothing",
			total:   100,
			weights: []int64{0, 1},
			want:    []int64{0, 100},
		},
		{
			name:    "all zero weights",
			total:   100,
			weights: []int64{0, 0},
			want:    []int64{0, 0},
		},
		{
			name:    "empty weights",
			total:   100,
			weights: nil,
			want:    []int64{},
		},
		{
			name:    "tiny total over many weights stays non-negative",
			total:   2,
			weights: []int64{1, 1, 1, 1},
			want:    []int64{0, 0, 1, 1},
		},
		{
			name:    "total below weight count",
			total:   1,
			weights: []int64{1, 1, 1},
			want:    []int64{1, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distribute(tt.total, tt.weights)
			if len(got) != len(tt.want) {
				t.Fatalf("Distribute(%d, %v) length = %d, want %d",
					tt.total, tt.weights, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Distribute(%d, %v) = %v, want %v",
						tt.total, tt.weights, got, tt.want)
				}
			}
		})
	}
}

// Exact-sum and non-negativity must hold for every input, not just the
// table above. Exercise a deterministic sweep of totals and weight vectors.
func TestDistributeProperties(t *testing.T) {
	seed := int64(42)
	next := func(mod int64) int64 {
		seed = (seed*6364136223846793005 + 1442695040888963407) % (1 << 31)
		if seed < 0 {
			seed = -seed
		}
		return seed % mod
	}

	for iter := 0; iter < 2000; iter++ {
		n := int(next(5)) + 1
		weights := make([]int64, n)
		for i := range weights {
			weights[i] = next(20000)
		}
		total := next(1000000)

		got := Distribute(total, weights)

		var weightSum, gotSum int64
		for i, w := range weights {
			weightSum += w
			if got[i] < 0 {
				t.Fatalf("Distribute(%d, %v) = %v has negative share", total, weights, got)
			}
			gotSum += got[i]
		}

		want := total
		if weightSum <= 0 || total <= 0 {
			want = 0
		}
		if gotSum != want {
			t.Fatalf("Distribute(%d, %v) = %v sums to %d, want %d", total, weights, got, gotSum, want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "150.00", want: 15000},
		{input: "0.99", want: 99},
		{input: "7.5", want: 750},
		{input: "100", want: 10000},
		{input: ".50", want: 50},
		{input: " 12.34 ", want: 1234},
		{input: "0", want: 0},
		{input: "-1.00", wantErr: true},
		{input: "1.234", wantErr: true},
		{input: "12a.00", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDecimal(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 15000, want: "150.00"},
		{cents: 99, want: "0.99"},
		{cents: 5, want: "0.05"},
		{cents: 0, want: "0.00"},
		{cents: -1234, want: "-12.34"},
	}

	for _, tt := range tests {
		if got := FormatCents(tt.cents); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
