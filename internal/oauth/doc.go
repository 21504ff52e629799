// Package oauth holds the types shared by every part of the provider
// authorization layer: scope sets, credentials, the authorization error
// taxonomy, state generation, at-rest encryption of persisted credentials and
// the security audit logger.
//
// Nothing in this package talks to a provider. The popup channel, token store,
// request wrapper and session coordinators build on these types.
package oauth
