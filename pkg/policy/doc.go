// Package policy decides, per recipient, whether and where a notification
// event should be delivered. Eligibility is evaluated in a fixed rule
// order — do-not-disturb, quiet hours, priority visibility, per-type
// overrides — where the first blocking rule wins. Urgent events bypass DND
// and quiet hours; high-priority events bypass quiet hours only.
//
// Settings rows are created lazily with defaults on first access and
// updated with partial patches: only supplied fields overwrite. The
// engine also drives the auto-archive/auto-delete retention sweep against
// the notification record store.
package policy
