package engine

import (
	"errors"
	"hash/fnv"
)

// FrameCheck holds the tunable frame-validity thresholds.
type FrameCheck struct {
	// DarknessRatio rejects a frame when more than this share of sampled
	// bytes sits below DarknessThreshold.
	DarknessRatio float64

	// DarknessThreshold is the brightness floor for the darkness test.
	DarknessThreshold byte

	// MinBuckets is the minimum number of distinct coarse brightness
	// buckets a real panorama shows. Loading screens are flat.
	MinBuckets int

	// SampleStride spaces the bytes sampled from the frame.
	SampleStride int
}

var (
	// ErrFrameDark marks a frame rejected as mostly black.
	ErrFrameDark = errors.New("frame is mostly dark")

	// ErrFrameFlat marks a frame rejected as too uniform, a loading
	// screen rather than a panorama.
	ErrFrameFlat = errors.New("frame is too uniform")

	// ErrFrameShort marks a buffer too small to judge.
	ErrFrameShort = errors.New("frame buffer too small")
)

// Validate classifies an encoded frame buffer as a usable panorama or not.
// It samples the raw bytes rather than decoding the image; the heuristics
// only need a rough brightness distribution.
func (fc FrameCheck) Validate(buf []byte) error {
	stride := fc.SampleStride
	if stride < 1 {
		stride = 1
	}
	if len(buf) < stride*8 {
		return ErrFrameShort
	}

	var dark, total int
	buckets := make(map[byte]struct{})
	for i := 0; i < len(buf); i += stride {
		b := buf[i]
		total++
		if b < fc.DarknessThreshold {
			dark++
		}
		buckets[b>>5] = struct{}{}
	}

	if float64(dark)/float64(total) > fc.DarknessRatio {
		return ErrFrameDark
	}
	if len(buckets) < fc.MinBuckets {
		return ErrFrameFlat
	}
	return nil
}

// Hash returns a cheap rolling hash over the sampled bytes of a frame,
// used only to detect an unchanged frame between captures.
func (fc FrameCheck) Hash(buf []byte) uint64 {
	stride := fc.SampleStride
	if stride < 1 {
		stride = 1
	}
	h := fnv.New64a()
	one := make([]byte, 1)
	for i := 0; i < len(buf); i += stride {
		one[0] = buf[i]
		h.Write(one)
	}
	return h.Sum64()
}
