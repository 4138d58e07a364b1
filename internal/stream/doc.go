// Package stream maintains the single server-push connection shared by every
// workflow in the process.
//
// A Manager multiplexes logical subscriptions (resource identifiers such as
// "session:abc" or "post:123") over one SSE connection whose resource list is
// fixed when it opens. Adding a new identifier re-establishes the connection
// with the union of all active identifiers; bursts of subscriptions coalesce
// into one redial. Transport failures move the manager through ERROR and
// RECONNECTING with capped exponential backoff until the attempt budget is
// spent, after which it stays in ERROR until a fresh subscription or an explicit
// Reconnect.
//
// Frames are decoded once at the boundary into the closed Event variants
// (Connected, StatusUpdate, PostUpdate, VideoStatus, AgentEvent,
// OrchestratorEvent, UnknownEvent). Delivery is at-most-once with no ordering
// guarantee across reconnects; consumers treat each status as authoritative.
//
// Manager methods may be called from inside handlers and state listeners.
// Timers and transports are injected (Clock, Dialer) so tests run on virtual
// time.
package stream
