// Package relay implements the task event fan-out hub using the actor pattern.
//
// The Hub owns the connection registry and the admin group in a single goroutine
// fed by a command channel (no mutexes). Per-connection writer goroutines decouple
// slow clients from the fan-out loop. Payloads are opaque: the hub rebroadcasts
// received frames verbatim and never inspects task data.
package relay
