// Package activity defines the conversational events that flow between
// channel transports and the bot.
//
// # Activities
//
// An Activity is one structured event: a user message, a typing indicator,
// a system event, an edit, a deletion. Transports produce inbound activities
// and the turn pipeline produces outbound copies. The wire shape follows the
// Bot Framework schema so activities can be persisted and replayed as JSON.
//
// Common types:
//
//   - message: text and/or attachments
//   - event: named out-of-band payload (e.g. "tokens/response")
//   - typing: typing indicator
//   - delay: pause before the next outbound activity
//   - conversationUpdate, endOfConversation
//
// # Conversation References
//
// A ConversationReference is the addressing data needed to reply to (or
// proactively message) a conversation:
//
//	ref := activity.ExtractReference(inbound)
//	reply := activity.ApplyReference(activity.NewMessage("hi"), ref, false)
//
// ApplyReference is directional. Outgoing application (isIncoming == false)
// sets From to the bot, Recipient to the user, and ReplyToID to the
// referenced activity. Incoming application inverts the roles and sets ID
// instead, which is how a proactive turn is synthesized from a stored
// reference. The reference itself is never modified.
package activity
