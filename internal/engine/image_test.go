package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFrameCheck() FrameCheck {
	return FrameCheck{
		DarknessRatio:     0.8,
		DarknessThreshold: 24,
		MinBuckets:        5,
		SampleStride:      1,
	}
}

// variedFrame fills a buffer with the full byte range so every brightness
// bucket is represented and nothing is dark.
func variedFrame(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(64 + i%192)
	}
	return buf
}

func TestValidateRejectsBlackFrame(t *testing.T) {
	fc := testFrameCheck()
	assert.ErrorIs(t, fc.Validate(make([]byte, 4096)), ErrFrameDark)
}

func TestValidateRejectsFlatFrame(t *testing.T) {
	fc := testFrameCheck()
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = 200
	}
	assert.ErrorIs(t, fc.Validate(buf), ErrFrameFlat)
}

func TestValidateAcceptsVariedFrame(t *testing.T) {
	fc := testFrameCheck()
	assert.NoError(t, fc.Validate(variedFrame(4096)))
}

func TestValidateRejectsShortBuffer(t *testing.T) {
	fc := testFrameCheck()
	fc.SampleStride = 512
	assert.ErrorIs(t, fc.Validate(make([]byte, 100)), ErrFrameShort)
}

func TestHashDeterministic(t *testing.T) {
	fc := testFrameCheck()
	buf := variedFrame(4096)
	assert.Equal(t, fc.Hash(buf), fc.Hash(buf))
}

func TestHashDistinguishesDifferentFrames(t *testing.T) {
	fc := testFrameCheck()
	a := variedFrame(4096)
	b := make([]byte, 4096)
	for i := range b {
		b[i] = byte(255 - a[i])
	}
	assert.NotEqual(t, fc.Hash(a), fc.Hash(b))
}
