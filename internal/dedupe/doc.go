// Package dedupe suppresses redelivered inbound activities.
//
// Channel transports may deliver the same platform event more than once
// (sync retries, reconnects). Middleware keys each inbound activity by
// channel, conversation and activity id and drops any key seen within the
// cache TTL before the bot's turn handler runs.
package dedupe
