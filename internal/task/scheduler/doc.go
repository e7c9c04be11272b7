// Package scheduler registers named wall-clock triggers on robfig/cron.
//
// Execution is delegated to internal/task/engine. The scheduler is
// responsible only for:
//   - registering and replacing triggers by name
//   - computing the slot each firing belongs to
//   - enqueueing tasks into the task engine
package scheduler
