// Package stream fans operation progress out to WebSocket subscribers.
//
// The registry maps stream keys ("<conversationId>:<assistantMessageId>")
// to subscriber connections with a reverse index per connection; publish
// serializes the payload once and removes subscribers whose send fails.
// The progress emitter delivers events synchronously to listeners and
// throttles intermediate progress events while always forwarding the
// started, complete, and error states.
package stream
