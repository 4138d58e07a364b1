// Package credentials owns the only durable client state: the bearer
// credential and the per-workflow active session identifiers.
//
// Store implements apiclient.TokenSource and apiclient.LogoutHandler. Logout
// clears the credential and broadcasts to every registered listener so the
// watcher and workflows can drop authenticated state together.
package credentials
