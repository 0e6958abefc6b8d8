// Package diagnostics backs the doctor command: it checks that the task
// store and every execution node answer, and samples host and process
// resource usage.
//
//   - Checker: pings the store and probes the nodes concurrently, each
//     check bounded by its own timeout.
//
//   - SystemMetricsCollector: CPU, memory, disk and load average via
//     gopsutil, plus the Go runtime's goroutine and heap figures.
package diagnostics
