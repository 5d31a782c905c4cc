// Package stats implements the order statistics used to calibrate input
// channels: an in-place quickselect median and quantile, and a two-level
// block accumulator that bounds memory while sampling a whole plane.
//
// Median and Quantile reorder their argument. They partition around a
// median-of-three pivot until the target rank is isolated; the slice is left
// partially ordered, not sorted. Use MedianCopy or QuantileCopy when the
// caller still needs the original order.
package stats

// big is the "minus infinity" seed of the even-length tie search.
const big = 1e30

// Median returns the median of samples, reordering them.
//
// Zero samples give 0, one sample gives itself and two give their mean. For
// an even count the element of rank n/2 is averaged with the largest of the
// lower n/2 elements, unless one of those equals it, in which case the
// element itself is returned.
func Median(samples []float32) float32 {
	n := len(samples)
	switch n {
	case 0:
		return 0
	case 1:
		return samples[0]
	case 2:
		return float32(0.5 * float64(samples[0]+samples[1]))
	}

	med := n / 2
	selectRank(samples, med)

	if n&1 == 1 {
		return samples[med]
	}

	ref := samples[med]
	valmax := float32(-big)
	nless := 0
	for _, v := range samples[:n/2] {
		if v < ref {
			nless++
			if v > valmax {
				valmax = v
			}
		}
	}
	if nless < n/2 {
		return ref
	}
	return float32(float64(ref+valmax) / 2.0)
}

// Quantile returns the element of rank floor(frac*(n-0.5001)), reordering
// samples. frac is clamped to [0,1]; an empty slice gives 0.
func Quantile(samples []float32, frac float32) float32 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	if frac > 1 {
		frac = 1
	} else if frac < 0 {
		frac = 0
	}
	k := int(float64(frac) * (float64(n) - 0.5001))
	selectRank(samples, k)
	return samples[k]
}

// MedianCopy is Median on a private copy of samples.
func MedianCopy(samples []float32) float32 {
	return Median(append([]float32(nil), samples...))
}

// QuantileCopy is Quantile on a private copy of samples.
func QuantileCopy(samples []float32, frac float32) float32 {
	return Quantile(append([]float32(nil), samples...), frac)
}

// selectRank partially orders arr so that arr[k] holds the element of rank
// k, everything before it is <= arr[k] and everything after is >= arr[k].
func selectRank(arr []float32, k int) {
	low, high := 0, len(arr)-1
	ll := low + 1
	for high > ll {
		// Median of low, middle and high goes to low.
		mid := low + (high-low)/2
		if arr[mid] > arr[high] {
			arr[mid], arr[high] = arr[high], arr[mid]
		}
		if arr[low] > arr[high] {
			arr[low], arr[high] = arr[high], arr[low]
		}
		if arr[mid] > arr[low] {
			arr[mid], arr[low] = arr[low], arr[mid]
		}
		arr[mid], arr[ll] = arr[ll], arr[mid]

		hh := high
		for {
			ll++
			for arr[low] > arr[ll] {
				ll++
			}
			hh--
			for arr[hh] > arr[low] {
				hh--
			}
			if hh < ll {
				break
			}
			arr[ll], arr[hh] = arr[hh], arr[ll]
		}
		arr[low], arr[hh] = arr[hh], arr[low]

		if hh <= k {
			low = ll
		}
		if hh >= k {
			high = hh - 1
		}
		ll = low + 1
	}
	if high == ll && arr[low] > arr[high] {
		arr[low], arr[high] = arr[high], arr[low]
	}
}
