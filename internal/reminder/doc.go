// Package reminder holds the reminder model, the natural-language time
// resolver and the persisted, concurrency-safe reminder store.
package reminder
