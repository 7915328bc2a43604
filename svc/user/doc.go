// Package user holds the account model and its persistence, including the
// stripe customer id mapping used to resolve provider events to users.
package user
