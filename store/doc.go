// Package store keeps the authoritative current state of every vehicle in
// the fleet, sharded by vehicle id. Updates are last-writer-wins by report
// ordering key, never by wall-clock arrival order.
package store
