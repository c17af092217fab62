// ABOUTME: Conversation reference extraction and application
// ABOUTME: Stamps outbound activities so they route back to the originating conversation

package activity

// ConversationReference is the addressing snapshot of an activity.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
}

// ExtractReference returns the conversation reference for an inbound activity.
// The sender becomes the user and the recipient becomes the bot.
func ExtractReference(a *Activity) ConversationReference {
	if a == nil {
		return ConversationReference{}
	}
	return ConversationReference{
		ActivityID:   a.ID,
		User:         copyAccount(a.From),
		Bot:          copyAccount(a.Recipient),
		Conversation: copyConversation(a.Conversation),
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
	}
}

// ApplyReference stamps the reference onto the activity and returns it.
//
// Outgoing (isIncoming == false): From = bot, Recipient = user, ReplyToID =
// reference activity id. Incoming: From = user, Recipient = bot, ID =
// reference activity id. Accounts are copied so later edits to the activity
// never reach the reference.
func ApplyReference(a *Activity, ref ConversationReference, isIncoming bool) *Activity {
	if a == nil {
		a = &Activity{}
	}
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = copyConversation(ref.Conversation)
	if isIncoming {
		a.From = copyAccount(ref.User)
		a.Recipient = copyAccount(ref.Bot)
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
	} else {
		a.From = copyAccount(ref.Bot)
		a.Recipient = copyAccount(ref.User)
		if ref.ActivityID != "" {
			a.ReplyToID = ref.ActivityID
		}
	}
	return a
}

// Key returns "channel/conversation", the unit of turn serialization and
// conversation state.
func (r ConversationReference) Key() string {
	return r.ChannelID + "/" + r.ConversationID()
}

// ConversationID returns the referenced conversation id, or "".
func (r ConversationReference) ConversationID() string {
	if r.Conversation == nil {
		return ""
	}
	return r.Conversation.ID
}

func copyAccount(acc *ChannelAccount) *ChannelAccount {
	if acc == nil {
		return nil
	}
	c := *acc
	return &c
}

func copyConversation(conv *ConversationAccount) *ConversationAccount {
	if conv == nil {
		return nil
	}
	c := *conv
	return &c
}
