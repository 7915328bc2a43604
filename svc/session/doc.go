// Package session manages refresh-credential session lifecycles.
//
// Each session is a pair of credentials: a short-lived stateless access
// token and a long-lived refresh token backed by a database row. Refresh
// tokens rotate on use, meaning every successful refresh revokes the
// presented token and issues a successor, so a stolen refresh token stops
// working the moment the legitimate client refreshes. Presenting an
// already-consumed token is treated as a reuse signal and logged.
//
// Revoked rows are retained until their natural expiry so reuse remains
// detectable, then removed by the periodic Sweep.
package session
