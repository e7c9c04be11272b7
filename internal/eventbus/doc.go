// Package eventbus is the process-wide publish/subscribe bus that carries
// user-settings changes to the components reacting to them.
//
// One Bus is constructed in internal/app and handed to every producer and
// consumer; there is no package-level instance.
package eventbus
