package faultline

// A TracesSampler makes per-transaction sampling decisions. It returns the
// probability, between 0.0 and 1.0, that the transaction described by the
// sampling context is sampled. Return values outside that range disable
// sampling for the transaction.
type TracesSampler interface {
	Sample(ctx SamplingContext) float64
}

// TracesSamplerFunc is an adapter to allow the use of ordinary functions as a
// TracesSampler.
type TracesSamplerFunc func(ctx SamplingContext) float64

var _ TracesSampler = TracesSamplerFunc(nil)

func (f TracesSamplerFunc) Sample(ctx SamplingContext) float64 {
	return f(ctx)
}
