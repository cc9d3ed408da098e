// Package auth verifies signed identity assertions.
//
// The server never talks to the identity provider; it only checks the
// HS256 signature on the JWT a client presents and extracts the display
// name and photo that ride on presence events. With no secret
// configured the server runs in anonymous mode and this package is
// bypassed entirely.
package auth
