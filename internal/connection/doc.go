// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one WebSocket connection to a remote endpoint at a time
//   - Probes liveness with an application-level ping/pong heartbeat
//   - Reconnects after unexpected closures with capped exponential backoff
//   - Suspends heartbeating when the user goes idle and closes the connection
//     after a further idle period, reconnecting when activity resumes
//   - Fans out every inbound payload to registered handlers
package connection
