// Package calendar lists and edits events on the user's primary Google
// calendar.
//
// Every call runs through a provider session, so the bearer token comes from
// the token store and a rejected token clears the stored credential:
//
//	client := calendar.NewClient(coordinator)
//	events, err := client.ListEvents(ctx, time.Now(), 10)
//	if oauth.IsKind(err, oauth.KindExpiredOrRevoked) {
//	    // ask the user to reconnect
//	}
package calendar
