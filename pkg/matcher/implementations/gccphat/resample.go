package gccphat

// resample converts mono samples to another rate: down-sampling averages
// the input over each output period, up-sampling interpolates linearly.
func resample(in []float32, from, to uint32) []float64 {
	if from == to {
		out := make([]float64, len(in))
		for i, v := range in {
			out[i] = float64(v)
		}
		return out
	}

	ratio := float64(from) / float64(to)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float64, outLen)

	if ratio > 1 {
		for i := range out {
			begin := int(float64(i) * ratio)
			end := min(max(int(float64(i+1)*ratio), begin+1), len(in))
			var sum float64
			for _, v := range in[begin:end] {
				sum += float64(v)
			}
			out[i] = sum / float64(end-begin)
		}
		return out
	}

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		v0 := float64(in[idx])
		v1 := v0
		if idx+1 < len(in) {
			v1 = float64(in[idx+1])
		}
		out[i] = v0 + (v1-v0)*frac
	}
	return out
}
