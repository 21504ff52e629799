// Package session coordinates authorization state per feature group.
//
// A Coordinator owns the lifecycle of one named session (for example
// "calendar" on Google): it decides when the user has to be asked for
// consent, stores the resulting credential, and turns a rejected credential
// into the Expired state. It never opens a consent window on behalf of a
// background call; the caller has to Connect again explicitly.
//
//	Disconnected -> Connecting -> Connected -> Expired -> Connecting
//	                    |              |           |
//	                    +-> Disconnected <---------+ (Disconnect)
package session
