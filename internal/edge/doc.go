// Package edge finds, for every pixel of a threshold scan, the control value
// at which the pixel starts counting.
//
// A scan volume holds one count image per control step. The Extractor walks
// the step axis of each pixel and records the control value of the first step
// whose count reaches the edge threshold. Pixels that never reach it, pixels
// that are already above it at the first scanned step, and masked pixels get
// sentinel values outside the valid range [MinValid, MaxValid].
//
// Volumes are read through VolumeSource in slices of whole pixel rows so that
// memory stays bounded by the slice size, not by the detector size.
package edge
