package audio

import (
	"fmt"
	"math"
)

// BytesToInt16 decodes little-endian 16-bit PCM bytes into samples.
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// Int16ToFloat32 converts int16 PCM samples to float32 in [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// Float32ToInt16 converts float32 samples to int16 PCM, clipping to [-1, 1].
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		out[i] = int16(sample * 32767.0)
	}
	return out
}

// Resample converts samples from inputRate to outputRate using linear
// interpolation. Adequate for speech; a higher quality filter is not worth
// the dependency for this path.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// ResamplePCM resamples raw 16-bit little-endian PCM bytes.
func ResamplePCM(data []byte, inputRate, outputRate int) ([]byte, error) {
	if inputRate == outputRate {
		return data, nil
	}
	samples, err := BytesToInt16(data)
	if err != nil {
		return nil, err
	}
	return Int16ToBytes(Resample(samples, inputRate, outputRate)), nil
}

// CalculateRMS calculates the root mean square of audio samples. Useful for
// tracing audio levels and detecting silence.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
