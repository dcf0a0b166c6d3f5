// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime telemetry for wsproto servers and clients: Prometheus collectors
// fed by the protocol engine, and named debug probes exported as JSON.
package control
