// Package snapshot produces point-in-time fleet snapshots with derived ETAs
// on a fixed cadence and fans them out to pull and push consumers.
package snapshot
