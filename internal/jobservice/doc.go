// Package jobservice is a stand-in for the remote job service: it speaks
// the /ws/status frame protocol, runs a timed pipeline per submitted job
// and tracks quota usage, so the client can be exercised end to end.
package jobservice
