// Package notifier delivers outbound chat messages asynchronously through a
// bounded queue and a worker pool, with a shared rate limit, jittered retry
// and duplicate suppression.
//
// Duplicate suppression keys on Notification.DedupKey when set, otherwise on
// a hash of channel, target, priority and text. With PersistDedup the window
// survives restarts through the storage layer.
//
// Reminders wraps a Service as the reminder sink of the dose matcher.
package notifier
