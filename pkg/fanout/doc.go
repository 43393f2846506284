// Package fanout delivers real-time events to live client connections
// across every process of a deployment.
//
// Each process runs one Hub owning its local websocket sessions and their
// room memberships. Rooms follow a fixed naming convention: user_<id>
// groups all connections of one user, role_<role> groups all connections
// holding a role. Authenticating a connection automatically joins both.
//
// Broadcasts are routed through a Bridge, the shared publish/subscribe
// channel every process subscribes to. The publishing hub delivers to its
// local connections immediately and the bus carries the envelope to the
// other processes, which re-emit it to their own matching connections.
// Delivery is best-effort and at-most-once: nothing is persisted, a
// connection that is offline at broadcast time never sees that event, and
// slow consumers are evicted rather than allowed to block delivery.
//
// A bridge outage degrades broadcasts to local-process-only delivery with
// a logged warning. Callers are never blocked or failed by the bus.
//
//	hub, err := fanout.NewHub(fanout.NewRedisBridge(client))
//	go hub.Run(ctx)
//	mux.Handle("/ws", fanout.NewWSHandler(hub))
//
//	hub.BroadcastToRoom(ctx, fanout.UserRoom("u-42"), "notification", payload)
package fanout
