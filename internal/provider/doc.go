// Package provider is the static registry of the identity providers the
// dashboard integrates with, the features each provider serves and the OAuth
// scopes those features need.
//
// It also describes how an implicit-grant authorization URL is built for each
// provider and which callback message types signal success or failure.
package provider
