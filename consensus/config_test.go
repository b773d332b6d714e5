package consensus

import "testing"

func TestNumForConsensus(t *testing.T) {
	cases := []struct {
		n    int
		f    float64
		want int
	}{
		// N - (ceil(N*(1-f)) - 1) - 1 == N - ceil(N*(1-f)), f = 0.667
		// (Harmony's historical default)
		{n: 4, f: 0.667, want: 2},
		{n: 7, f: 0.667, want: 4},
		{n: 10, f: 0.667, want: 6},
		{n: 1, f: 0.667, want: 0},
		// f = 1.0: unanimity required, nobody may be missing
		{n: 5, f: 1.0, want: 5},
		// f = 0.0: the whole committee may be missing, zero commits suffice
		{n: 5, f: 0.0, want: 0},
	}
	for _, c := range cases {
		got := NumForConsensus(c.n, c.f)
		if got != c.want {
			t.Errorf("NumForConsensus(%d, %v) = %d, want %d", c.n, c.f, got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NumConsensusSets != 1 {
		t.Errorf("default NumConsensusSets = %d, want 1", cfg.NumConsensusSets)
	}
	if cfg.ToleranceFraction != 0.667 {
		t.Errorf("default ToleranceFraction = %v, want 0.667", cfg.ToleranceFraction)
	}
}
