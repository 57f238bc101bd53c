// Package interpolation synthesizes audio for a gap between two known
// fragments, so that they can be joined without an audible click.
package interpolation

type Interpolator interface {
	// Interpolate returns gapLen samples to be placed between
	// the end of "before" and the beginning of "after".
	Interpolate(before, after []float64, gapLen int) []float64
}
