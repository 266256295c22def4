// Package eta projects vehicle arrival times at downstream stops from the
// current vehicle state and the route geometry.
package eta
