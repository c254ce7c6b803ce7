// Package session owns client<->job service session transport policy.
//
// Ownership boundary:
// - reconnect backoff policy
// - transport timeouts and keepalive defaults
// - transport security validation
//
// Connection lifecycle lives in internal/conn; this package holds only
// pure policy so it can be exercised without a network.
package session
