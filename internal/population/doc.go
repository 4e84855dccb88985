// Package population summarises the edge positions of one chip.
//
// Valid edges are binned into an integer histogram whose empty bins are
// dropped, and a single Gaussian is fitted to the histogram with a bounded,
// derivative-free global optimiser followed by a local polish. A chip whose
// population is empty or whose fit fails yields a *FitError rather than a
// fabricated peak.
package population
