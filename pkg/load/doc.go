// Package load runs a scenario from a fixed pool of virtual users and records
// latency and error metrics into a run.
package load
