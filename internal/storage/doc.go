// Package storage persists what the reminder subsystem reads and writes.
//
// It keeps:
//   - per-user learning preferences (reminder switch, time, daily target)
//     as the JSON document of the user_settings table
//   - vocabulary items with their next review date
//   - a per-user "reminded on day" marker used to send at most one
//     reminder per day
//
// Two drivers exist: "sqlite" (modernc.org/sqlite, no cgo) and "memory".
package storage
