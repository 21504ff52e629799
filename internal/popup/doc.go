// Package popup runs interactive authorization flows.
//
// A flow opens the provider's consent page in a window, then waits for one of
// three terminal signals: a message from the redirect landing page delivered
// through the Bus, the window being closed, or the flow timeout. Whichever
// arrives first decides the result and the flow is torn down exactly once.
//
// At most one flow per provider is in flight; concurrent callers join it.
package popup
