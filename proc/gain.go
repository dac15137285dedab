package proc

import (
	"encoding/binary"
	"math"
)

// ApplyGain scales interleaved signed 16-bit little-endian PCM in place,
// saturating at the sample limits.
func ApplyGain(pcm []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		v := math.Round(float64(s) * gain)
		v = min(max(v, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(v)))
	}
}
