// Package dispatch orchestrates notification delivery. Event producers
// hand it a fully-formed NotificationEvent; the dispatcher resolves the
// recipient set, gates each recipient through the policy engine, fans
// out over the recipient's enabled channels, and persists a delivery
// record per recipient and channel for later inspection.
//
// Channels are independent: the web channel broadcasts to the
// recipient's fanout room, the mobile channel pushes through the device
// registry, and the messaging channel enqueues a delivery job for event
// types with a registered route. One channel's backend being down never
// blocks the others, and per-recipient failures never abort delivery to
// the remaining recipients.
package dispatch
