// Package ingest accepts position reports from vehicle feeds, validates
// them, and applies them to the vehicle state store. Delivery may be
// out-of-order, duplicated, or delayed; all three are tolerated here.
package ingest
