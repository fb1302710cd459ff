package pyramid

import (
	"fmt"
	"math"
)

// Fraction of positive samples clipped at each end when choosing contrast limits.
const contrastCutoff = 0.0005

// ChannelStats summarizes the samples of one band and recommends a display window.
type ChannelStats struct {
	Mean   float64
	SD     float64 // population standard deviation
	Median float64
	Q1     float64
	Q3     float64

	// Domain is the [min, max] of all samples.
	Domain [2]float64

	// ContrastLimits is a display window that ignores zero background and the
	// extreme 0.05% of positive samples at either end.
	ContrastLimits [2]float64
}

func (s ChannelStats) String() string {
	return fmt.Sprintf("mean %g, sd %g, median %g, q1 %g, q3 %g, domain %v, contrast limits %v",
		s.Mean, s.SD, s.Median, s.Q1, s.Q3, s.Domain, s.ContrastLimits)
}

// RasterStats computes channel statistics for a single-band raster.
func RasterStats(r Raster) (ChannelStats, error) {
	switch d := r.Data.(type) {
	case []uint8:
		return GetChannelStats(d)
	case []uint16:
		return GetChannelStats(d)
	case []uint32:
		return GetChannelStats(d)
	case []int8:
		return GetChannelStats(d)
	case []int16:
		return GetChannelStats(d)
	case []int32:
		return GetChannelStats(d)
	case []float32:
		return GetChannelStats(d)
	case []float64:
		return GetChannelStats(d)
	}
	return ChannelStats{}, fmt.Errorf("unsupported sample buffer %T: %w", r.Data, ErrFormat)
}

// GetChannelStats computes statistics over the samples.  The median is the sample of
// rank n/2, and the quartiles are the samples of rank n/4 and 3n/4 (rounded down) in
// sorted order.  The passed slice is not modified.
func GetChannelStats[T Number](samples []T) (ChannelStats, error) {
	n := len(samples)
	if n == 0 {
		return ChannelStats{}, fmt.Errorf("no samples for channel statistics: %w", ErrBounds)
	}
	var stats ChannelStats

	minv, maxv := samples[0], samples[0]
	var total float64
	for _, v := range samples {
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
		total += float64(v)
	}
	stats.Mean = total / float64(n)
	stats.Domain = [2]float64{float64(minv), float64(maxv)}

	var sumSquared float64
	for _, v := range samples {
		d := float64(v) - stats.Mean
		sumSquared += d * d
	}
	stats.SD = math.Sqrt(sumSquared / float64(n))

	// Quartile selections reuse the partial order left by the median selection.
	arr := make([]T, n)
	copy(arr, samples)
	mid := n / 2
	q1 := n / 4
	q3 := 3 * n / 4
	floydRivest(arr, mid, 0, n-1)
	stats.Median = float64(arr[mid])
	floydRivest(arr, q1, 0, mid)
	stats.Q1 = float64(arr[q1])
	floydRivest(arr, q3, mid, n-1)
	stats.Q3 = float64(arr[q3])

	positive := make([]T, 0, n)
	for _, v := range samples {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if m := len(positive); m > 0 {
		top := int(math.Floor(float64(m) * (1 - contrastCutoff)))
		bottom := int(math.Floor(float64(m) * contrastCutoff))
		floydRivest(positive, top, 0, m-1)
		floydRivest(positive, bottom, 0, top)
		stats.ContrastLimits = [2]float64{float64(positive[bottom]), float64(positive[top])}
	}
	return stats, nil
}

// floydRivest rearranges arr[left:right+1] so that arr[k] holds the value it would
// have if that range were sorted, everything before it is <= and everything after it
// is >=.  Runs in linear expected time.
func floydRivest[T Number](arr []T, k, left, right int) {
	for right > left {
		if right-left > 600 {
			n := float64(right - left + 1)
			m := float64(k - left + 1)
			z := math.Log(n)
			s := 0.5 * math.Exp(2*z/3)
			sd := 0.5 * math.Sqrt(z*s*(n-s)/n)
			if m-n/2 < 0 {
				sd = -sd
			}
			newLeft := max(left, int(math.Floor(float64(k)-m*s/n+sd)))
			newRight := min(right, int(math.Floor(float64(k)+(n-m)*s/n+sd)))
			floydRivest(arr, k, newLeft, newRight)
		}
		t := arr[k]
		i, j := left, right
		arr[left], arr[k] = arr[k], arr[left]
		if arr[right] > t {
			arr[left], arr[right] = arr[right], arr[left]
		}
		for i < j {
			arr[i], arr[j] = arr[j], arr[i]
			i++
			j--
			for arr[i] < t {
				i++
			}
			for arr[j] > t {
				j--
			}
		}
		if arr[left] == t {
			arr[left], arr[j] = arr[j], arr[left]
		} else {
			j++
			arr[j], arr[right] = arr[right], arr[j]
		}
		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}
