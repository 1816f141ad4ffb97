// Package session verifies who is calling.
//
// Access tokens are PASETO v4.public carrying the user id ("uid") and role
// ("role"). Verified tokens become a Principal, which handlers place on the
// request context. Token issuance belongs to the login flow; Issue exists here
// for that flow, the dev smoke tool and tests.
package session
