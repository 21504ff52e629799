// Package gmail reads and sends mail for the user's Gmail inbox.
//
// The client covers what the dashboard shows: the newest inbox messages,
// sending a plain-text message and marking a message as read. Requests run
// through a provider session, which supplies the bearer token and clears it
// when Google rejects it.
package gmail
