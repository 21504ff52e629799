// Package request performs provider API calls with the stored credential.
//
// The wrapper never starts an interactive authorization. A missing or
// rejected credential is reported as ExpiredOrRevoked and it is up to the
// session coordinator to ask the user to reconnect.
package request
