// Package chat observes Twitch chat membership over IRC.
//
// An Observer holds one IRC connection and any number of joined channels.
// For each joined channel it keeps the handles seen in chat since the last
// Reset, in first-seen order. Only chat message authors count; users who
// merely joined the channel are not recorded. Its own nickname and anonymous
// logins are never recorded.
//
// Credentials: with TWITCH_NICKNAME and TWITCH_OAUTH_TOKEN set the observer
// logs in as that user; otherwise it connects anonymously, which is enough to
// read chat.
package chat
