// Package planner turns edge maps, chip statistics and response models into
// the codes written to the detector: a threshold-N code and a DAC-pixel code
// per chip, and a 5-bit adjustment word per pixel.
//
// The adjustment word packs the DAC adjustment in bits 0-3 (0..15) and the
// threshold-N selection in bit 4. Every operation returns freshly allocated
// slices and leaves its inputs untouched.
package planner
