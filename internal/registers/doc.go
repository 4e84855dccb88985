// Package registers writes equalisation results into detector chip
// registers.
//
// Writer is the hardware boundary. Recorder implements it on top of a store
// file so that a full pipeline can run without a detector, and MockWriter
// records calls for tests. The Push helpers split global results into
// per-chip register values.
package registers
