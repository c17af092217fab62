// ABOUTME: Package documentation for the user token service
// ABOUTME: Explains the sign-in flow from link to magic code to cached token

// Package oauth is the bot's user token service. It implements
// turn.UserTokenProvider for channels that have no token service of their
// own, which is all of them.
//
// # Sign-in flow
//
//  1. An OAuth prompt asks for a sign-in link. The Service builds the
//     provider's authorization URL with a signed state parameter naming the
//     user, channel and connection.
//  2. The provider redirects the browser to the callback handler. The
//     handler verifies the state, exchanges the authorization code and
//     stores the token as pending under a random six-digit magic code, which
//     the page shows to the user.
//  3. The user pastes the code into the chat. The prompt calls GetUserToken
//     with it; a matching code promotes the pending token to the user's
//     cached token.
//
// Later turns get the cached token directly. Expired tokens are refreshed
// when the provider issued a refresh token and dropped otherwise.
//
// # Storage
//
// Tokens live in a store.Storage under "oauth/tokens/..." and
// "oauth/pending/..." keys, sealed with NaCl secretbox. The key is derived
// from the configured vault secret, so a database copy alone reveals nothing.
//
// # Listening
//
// Listen opens the callback listener on a plain TCP address or, when
// Tailscale is enabled, on the tailnet through tsnet. Funnel makes the
// callback reachable from the public internet, which most providers require.
package oauth
