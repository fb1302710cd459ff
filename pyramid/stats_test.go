package pyramid

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func sortedReference(samples []float64) []float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted
}

func checkAgainstReference(t *testing.T, name string, samples []float64, stats ChannelStats) {
	t.Helper()
	n := len(samples)
	sorted := sortedReference(samples)
	mean, variance := stat.PopMeanVariance(samples, nil)
	sd := math.Sqrt(variance)
	if math.Abs(stats.Mean-mean) > 1e-9*math.Max(1, math.Abs(mean)) {
		t.Errorf("%s: expected mean %g, got %g\n", name, mean, stats.Mean)
	}
	if math.Abs(stats.SD-sd) > 1e-9*math.Max(1, sd) {
		t.Errorf("%s: expected sd %g, got %g\n", name, sd, stats.SD)
	}
	if stats.Median != sorted[n/2] {
		t.Errorf("%s: expected median %g, got %g\n", name, sorted[n/2], stats.Median)
	}
	if stats.Q1 != sorted[n/4] {
		t.Errorf("%s: expected q1 %g, got %g\n", name, sorted[n/4], stats.Q1)
	}
	if stats.Q3 != sorted[3*n/4] {
		t.Errorf("%s: expected q3 %g, got %g\n", name, sorted[3*n/4], stats.Q3)
	}
	if stats.Domain[0] != sorted[0] || stats.Domain[1] != sorted[n-1] {
		t.Errorf("%s: expected domain [%g, %g], got %v\n", name, sorted[0], sorted[n-1], stats.Domain)
	}
}

func TestChannelStatsSequence(t *testing.T) {
	samples := make([]uint16, 1000)
	ref := make([]float64, 1000)
	for i := range samples {
		samples[i] = uint16(999 - i)
		ref[i] = float64(999 - i)
	}
	stats, err := GetChannelStats(samples)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Median != 500 {
		t.Errorf("expected median 500, got %g\n", stats.Median)
	}
	if stats.Q1 != 250 || stats.Q3 != 750 {
		t.Errorf("expected quartiles 250 and 750, got %g and %g\n", stats.Q1, stats.Q3)
	}
	if stats.Mean != 499.5 {
		t.Errorf("expected mean 499.5, got %g\n", stats.Mean)
	}
	checkAgainstReference(t, "sequence", ref, stats)

	// 999 positive samples: bottom rank floor(0.4995) = 0, top rank floor(998.5) = 998.
	if stats.ContrastLimits != [2]float64{1, 999} {
		t.Errorf("expected contrast limits [1 999], got %v\n", stats.ContrastLimits)
	}
	if samples[0] != 999 || samples[999] != 0 {
		t.Errorf("input samples were reordered\n")
	}
}

func TestChannelStatsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{1, 2, 3, 7, 100, 601, 5000, 100003} {
		samples := make([]float32, n)
		ref := make([]float64, n)
		for i := range samples {
			v := float32(rng.Intn(4096))
			samples[i] = v
			ref[i] = float64(v)
		}
		stats, err := GetChannelStats(samples)
		if err != nil {
			t.Fatal(err)
		}
		checkAgainstReference(t, "random", ref, stats)
	}
}

func TestContrastLimitsIgnoreBackground(t *testing.T) {
	// mostly-zero background with a bright object
	samples := make([]uint8, 100000)
	for i := 90000; i < len(samples); i++ {
		samples[i] = uint8(10 + i%200)
	}
	stats, err := GetChannelStats(samples)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Median != 0 {
		t.Errorf("expected background median 0, got %g\n", stats.Median)
	}
	positive := make([]float64, 0, 10000)
	for _, v := range samples {
		if v > 0 {
			positive = append(positive, float64(v))
		}
	}
	sorted := sortedReference(positive)
	m := len(sorted)
	bottom := sorted[int(math.Floor(float64(m)*0.0005))]
	top := sorted[int(math.Floor(float64(m)*0.9995))]
	if stats.ContrastLimits != [2]float64{bottom, top} {
		t.Errorf("expected contrast limits [%g %g], got %v\n", bottom, top, stats.ContrastLimits)
	}
	if stats.ContrastLimits[0] < 10 {
		t.Errorf("contrast limits should exclude background: %v\n", stats.ContrastLimits)
	}
}

func TestChannelStatsAllZero(t *testing.T) {
	stats, err := RasterStats(Raster{Data: make([]int16, 64), Width: 8, Height: 8})
	if err != nil {
		t.Fatal(err)
	}
	if stats.ContrastLimits != [2]float64{0, 0} {
		t.Errorf("expected zero contrast limits with no positive samples, got %v\n", stats.ContrastLimits)
	}
	if _, err := GetChannelStats([]uint8{}); err == nil {
		t.Errorf("expected error on empty samples\n")
	}
	if _, err := RasterStats(Raster{Data: []string{"a"}}); err == nil {
		t.Errorf("expected error on unsupported buffer\n")
	}
}
