// Package daemon supervises the ordered set of managed services that
// make up the running process. Services start in registration order and
// stop in reverse; a failed start rolls back the services already
// started. Shutdown is bounded by a configurable timeout and SIGTERM or
// SIGINT triggers an orderly stop with exit code 0.
package daemon
