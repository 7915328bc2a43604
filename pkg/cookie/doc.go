// Package cookie manages HTTP cookies with secure defaults (HttpOnly,
// SameSite=Lax, path "/"). The auth module uses it to carry the refresh
// credential between browser and server.
package cookie
