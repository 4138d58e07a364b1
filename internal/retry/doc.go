// Package retry holds the exponential backoff policy shared by the HTTP client
// and the event stream reconnect loop, plus a small retry driver with an
// injectable sleeper so tests never wait on real timers.
package retry
