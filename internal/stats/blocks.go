package stats

// BlockSize is the number of samples read per calibration block (4 MB of
// float32 samples).
const BlockSize = 4 * 1024 * 1024 / 4

// Blocks reduces a plane to background, low and high levels without holding
// it in memory. Each block added contributes one candidate per statistic;
// the final values are medians of those candidates.
type Blocks struct {
	// MinFrac and MaxFrac are the quantile fractions used for the low and
	// high levels.
	MinFrac, MaxFrac float32
	// WantMin and WantMax enable the quantile candidates.
	WantMin, WantMax bool

	back, low, high []float32
}

// Add consumes one block, reordering it.
//
// The block median comes first and leaves the block partially ordered; the
// low quantile is then taken over the lower half and the high quantile over
// the upper half.
func (b *Blocks) Add(block []float32) {
	if len(block) == 0 {
		return
	}
	b.back = append(b.back, Median(block))
	half := len(block) / 2
	if b.WantMin {
		b.low = append(b.low, Quantile(block[:half], b.MinFrac))
	}
	if b.WantMax {
		b.high = append(b.high, Quantile(block[half:half+half], b.MaxFrac))
	}
}

// Count returns the number of blocks added.
func (b *Blocks) Count() int { return len(b.back) }

// Background returns the median of the block medians.
func (b *Blocks) Background() float32 { return MedianCopy(b.back) }

// Low returns the median of the low-quantile candidates.
func (b *Blocks) Low() float32 { return MedianCopy(b.low) }

// High returns the median of the high-quantile candidates.
func (b *Blocks) High() float32 { return MedianCopy(b.high) }

// Medians returns a copy of the per-block medians.
func (b *Blocks) Medians() []float32 {
	return append([]float32(nil), b.back...)
}
