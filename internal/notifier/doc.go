// Package notifier delivers bot messages to users' private chats.
//
// Sends are synchronous and share one token bucket so scheduled reminders
// and command replies together stay under the platform's rate limit. A
// failed send is reported to the caller and counted; it is never retried.
//
// The service keeps a small in-memory history of recent sends for the
// status endpoint.
package notifier
