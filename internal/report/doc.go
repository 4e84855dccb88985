// Package report renders equalisation results for review: a PNG of every
// chip's edge population with its fitted Gaussian, and an HTML page of
// per-chip summaries and edge heatmaps.
package report
