// Package equalisation runs the detector equalisation stages.
//
// Every stage reads named datasets from one or more store files and writes
// its results into a fresh result file, so the output of one stage is the
// named input of the next. Equaliser carries the detector layout and tuning
// but no state between calls; Pipeline sequences the stages over a set of
// acquired scans and records progress in a run ledger so it can resume.
package equalisation
