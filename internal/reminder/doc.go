// Package reminder keeps one daily review reminder per user in step with
// the user's persisted settings.
//
// The Manager subscribes to settings events on the event bus and installs,
// replaces or removes the user's trigger (job id "reminder_<user_id>").
// Reconcile rebuilds the registry from storage at startup. When a trigger
// fires, Fire re-reads the settings, claims the day, selects the due words
// and sends either a reminder or an encouragement message.
package reminder
