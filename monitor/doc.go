// Package monitor watches for vehicles whose reports have stopped arriving
// and transitions them out of service.
package monitor
