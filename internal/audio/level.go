package audio

import "math"

// RMS returns the root mean square amplitude of a frame. Used as the
// silence gate for the recognizer and for the mic level meter.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// MeanAbs returns the mean absolute amplitude, used for the visual level bar.
func MeanAbs(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(samples))
}

// ToFloat32 converts 16-bit PCM samples to float32 in [-1, 1], the format
// the whisper and sherpa engines expect.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// ToBytes converts 16-bit PCM samples to little-endian bytes, the format
// the vosk recognizer expects.
func ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
