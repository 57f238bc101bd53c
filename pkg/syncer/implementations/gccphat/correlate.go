package gccphat

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// WhiteningFloor is the energy threshold (relative to the strongest bin)
	// below which bins are not whitened; 60dB down.
	WhiteningFloor = 0.001
)

// fftSize is the smallest power of two that fits a linear
// (non-circular) correlation of the two lengths.
func fftSize(n1, n2 int) int {
	n := 1
	for n < n1+n2-1 {
		n <<= 1
	}
	return n
}

func spectrum(samples []float64, n int) []complex128 {
	padded := make([]complex128, n)
	for i, v := range samples {
		padded[i] = complex(v, 0)
	}
	return fft.FFT(padded)
}

// correlationPeak computes the GCC-PHAT correlation of two spectra of
// length N and returns the (sub-sample) index of its peak in [0, N)
// together with the confidence. Index k means comp[t+k] ~ ref[t].
func correlationPeak(fref, fcomp []complex128, sampleRate float64, minFreq, maxFreq float64) (float64, float64, error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("sampleRate must be positive: got %v", sampleRate)
	}
	if len(fref) != len(fcomp) {
		return 0, 0, fmt.Errorf("fref and fcomp must have same length: %d != %d", len(fref), len(fcomp))
	}
	n := len(fref)
	if n == 0 {
		return 0, 0, fmt.Errorf("empty spectra")
	}

	binMin := 0
	binMax := n / 2
	if minFreq > 0 {
		binMin = int(minFreq * float64(n) / sampleRate)
	}
	if maxFreq > 0 && maxFreq < sampleRate/2 {
		binMax = int(maxFreq * float64(n) / sampleRate)
	}

	cross := make([]complex128, n)
	maxMag := 0.0
	for i := range cross {
		cross[i] = fcomp[i] * cmplx.Conj(fref[i])
		if mag := cmplx.Abs(cross[i]); mag > maxMag {
			maxMag = mag
		}
	}
	threshold := maxMag * WhiteningFloor

	activeBins := 0
	for i := range cross {
		idx := i
		if i > n/2 {
			idx = n - i
		}
		if idx < binMin || idx > binMax {
			cross[i] = 0
			continue
		}

		mag := cmplx.Abs(cross[i])
		if mag <= threshold || mag <= 1e-12 {
			cross[i] = 0
			continue
		}
		cross[i] /= complex(mag, 0)
		activeBins++
	}
	if activeBins == 0 {
		return 0, 0, nil
	}

	timeDomain := fft.IFFT(cross)

	maxVal := -1.0
	maxIdx := 0
	for i, v := range timeDomain {
		if val := cmplx.Abs(v); val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	// parabolic sub-sample refinement, wrapping around the edges
	peak := float64(maxIdx)
	y1 := cmplx.Abs(timeDomain[(maxIdx-1+n)%n])
	y3 := cmplx.Abs(timeDomain[(maxIdx+1)%n])
	if denom := y1 - 2*maxVal + y3; math.Abs(denom) > 1e-12 {
		peak += (y1 - y3) / (2 * denom)
	}

	// A perfect match puts activeBins/N into a single sample.
	confidence := min(maxVal*float64(n)/float64(activeBins), 1)
	return peak, confidence, nil
}

// CrossCorrelate calculates the sample shift of 'fcomp' relative to 'fref' using GCC-PHAT.
// The fref and fcomp slices are expected to be the FFTs of the reference and comparison snippets.
// Both must have the same length N; shifts are reported within (-N/2, N/2].
//
// Arguments:
// - sampleRate: Used to calculate frequency bin indices for band limiting.
// - minFreq: Minimum frequency to consider (Hz). Use 0 for no limit.
// - maxFreq: Maximum frequency to consider (Hz). Use 0 or >sampleRate/2 for no limit.
//
// Returns (shift, confidence, error). A positive shift means 'comp' leads 'ref'.
func CrossCorrelate(fref, fcomp []complex128, sampleRate float64, minFreq, maxFreq float64) (float64, float64, error) {
	peak, confidence, err := correlationPeak(fref, fcomp, sampleRate, minFreq, maxFreq)
	if err != nil {
		return 0, 0, err
	}
	n := float64(len(fref))
	shift := -peak
	if shift <= -n/2 {
		shift += n
	}
	return shift, confidence, nil
}
