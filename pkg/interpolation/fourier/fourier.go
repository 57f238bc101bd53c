// Package fourier fills audio gaps by extending the tonal content of the
// surrounding audio (a bidirectional spectral sieve).
package fourier

import (
	"math"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/xaionaro-go/audiosync/pkg/interpolation"
)

const (
	// DefaultWindowSize is the maximum number of samples used for FFT analysis.
	DefaultWindowSize = 1024

	// MinRequiredSamples is the minimum number of samples needed on each side
	// of the gap to perform a meaningful spectral analysis.
	MinRequiredSamples = 4

	// DefaultSieveSensitivity determines how far a spectral peak must stand
	// above the average noise floor to be considered significant.
	DefaultSieveSensitivity = 2.5

	// SpectrumNormalization scales the magnitudes from a two-sided forward FFT
	// to their real-world amplitudes for synthesis.
	SpectrumNormalization = 2.0
)

type Interpolator struct {
	WindowSize       int
	SieveSensitivity float64
}

var _ interpolation.Interpolator = (*Interpolator)(nil)

func New() *Interpolator {
	return &Interpolator{
		WindowSize:       DefaultWindowSize,
		SieveSensitivity: DefaultSieveSensitivity,
	}
}

// Interpolate projects the spectral peaks of a window before the gap forward
// and of a window after the gap backward, blends the two projections with a
// cubic (3t^2 - 2t^3) weight and shifts the result so that it meets the
// boundary samples exactly.
func (i *Interpolator) Interpolate(before, after []float64, gapLen int) []float64 {
	result := make([]float64, gapLen)
	if gapLen == 0 || len(before) < MinRequiredSamples || len(after) < MinRequiredSamples {
		return result
	}

	n := largestPowerOfTwo(min(len(before), i.WindowSize, len(after)))
	windowBefore := before[len(before)-n:]
	windowAfter := after[:n]

	forward := i.sieve(windowBefore).synthesize(gapLen, func(k int) float64 { return float64(n + k) })
	backward := i.sieve(windowAfter).synthesize(gapLen, func(k int) float64 { return float64(k - gapLen) })

	startDiff := forward[0] - windowBefore[n-1]
	endDiff := backward[gapLen-1] - windowAfter[0]

	for k := range result {
		t := float64(k+1) / float64(gapLen+1)
		w := t * t * (3 - 2*t)
		result[k] = (1-w)*(forward[k]-startDiff) + w*(backward[k]-endDiff)
	}
	return result
}

func largestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

type partial struct {
	Bin       int
	Amplitude float64
	Phase     float64
}

type tonalModel struct {
	WindowSize int
	DC         float64
	Partials   []partial
}

// sieve keeps only the local spectral maxima standing above the average magnitude.
func (i *Interpolator) sieve(samples []float64) tonalModel {
	n := len(samples)
	coeffs := make([]complex128, n)
	for k, v := range samples {
		coeffs[k] = complex(v, 0)
	}
	model := tonalModel{WindowSize: n}
	if err := fourier.Forward(coeffs); err != nil {
		return model
	}

	magnitudes := make([]float64, n)
	var avg float64
	for k, c := range coeffs {
		magnitudes[k] = cmplx.Abs(c)
		avg += magnitudes[k]
	}
	threshold := avg / float64(n) * i.SieveSensitivity

	invN := 1 / float64(n)
	model.DC = real(coeffs[0]) * invN
	for k := 1; k < n/2; k++ {
		if magnitudes[k] <= threshold || magnitudes[k] <= magnitudes[k-1] || magnitudes[k] <= magnitudes[k+1] {
			continue
		}
		model.Partials = append(model.Partials, partial{
			Bin:       k,
			Amplitude: magnitudes[k] * SpectrumNormalization * invN,
			Phase:     cmplx.Phase(coeffs[k]),
		})
	}
	return model
}

// synthesize evaluates the model at the window-relative positions given by "position".
func (m tonalModel) synthesize(length int, position func(k int) float64) []float64 {
	result := make([]float64, length)
	invN := 1 / float64(m.WindowSize)
	for k := range result {
		t := position(k)
		sum := m.DC
		for _, p := range m.Partials {
			sum += p.Amplitude * math.Cos(2*math.Pi*float64(p.Bin)*t*invN+p.Phase)
		}
		result[k] = sum
	}
	return result
}
