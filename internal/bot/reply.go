package bot

import "encoding/json"

// Scripted reply values for the conversation_started welcome message.
const (
	ReplyTypePicture = "picture"
	WelcomeText      = "Welcome"
	WelcomeMedia     = "https://a-picture"
)

// welcomeReply is the fixed welcome body returned for conversation_started.
// Values are literal constants, not configurable per request.
type welcomeReply struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Media string `json:"media"`
}

// WelcomeReply returns the scripted picture reply shown when a user opens a
// conversation with the bot.
func WelcomeReply() []byte {
	body, _ := json.Marshal(welcomeReply{
		Type:  ReplyTypePicture,
		Text:  WelcomeText,
		Media: WelcomeMedia,
	})
	return body
}

// EmptyReply returns the empty acknowledgement body used for subscribed,
// unsubscribed and unknown events.
func EmptyReply() []byte {
	return []byte(`{}`)
}
