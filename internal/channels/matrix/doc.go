// ABOUTME: Package documentation for the Matrix channel adapter
// ABOUTME: Describes event mapping, formatting and login

// Package matrix connects the bot to Matrix rooms through mautrix.
//
// Inbound m.room.message text events become message activities: the sender
// is the activity's From, the room is the conversation and the event id is
// the activity id. Edits (m.replace) become messageUpdate activities for the
// original event. The bot's own events, rooms outside the allow list and
// messages without the command prefix are ignored.
//
// Outbound messages are rendered from Markdown with goldmark into
// formatted_body, replies carry m.in_reply_to, updates are sent as m.replace
// edits and deletes as redactions. Typing activities drive the typing
// notification and delay activities pause the send loop.
package matrix
