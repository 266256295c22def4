// Package registry holds the read-only route geometry and vehicle
// assignments the engine projects against. An Index is immutable; refreshes
// happen out-of-band by loading a new Index and swapping it in.
package registry
