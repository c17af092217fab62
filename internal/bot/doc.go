// ABOUTME: Package documentation for the bot turn handler
// ABOUTME: Describes the control flow from inbound activity to persisted dialog stack

// Package bot is the conversational core: a turn handler that loads the
// conversation's dialog stack, lets the active dialog handle the activity,
// starts the main menu when nothing is active and leaves persistence to the
// state.AutoSave middleware.
//
// A few words interrupt whatever is running: "cancel" clears the stack,
// "help" explains the bot and "logout" signs the user out of the configured
// OAuth connection.
//
// The dialogs are small on purpose. They exercise every prompt type:
//
//	main      choice prompt routing to the others
//	reminder  text, date/time and confirm prompts in a waterfall
//	profile   text and choice prompts, stored in user state
//	signin    OAuth prompt
//
// Saved reminders are also added to a schedule shared by all users.
// RunReminders polls it and delivers each due reminder as a proactive turn on
// the channel it was set from, removing it from the user's list.
package bot
