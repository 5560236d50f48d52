package slack

// Message is the part of a chat message a thread signal is built from.
type Message struct {
	TS         string `yaml:"ts"`
	ThreadTS   string `yaml:"thread_ts"`
	User       string `yaml:"user"`
	Text       string `yaml:"text"`
	ReplyCount int    `yaml:"reply_count"`
}

// Thread is a parent message followed by its replies.
type Thread struct {
	Channel  string
	ThreadTS string
	Messages []Message
}
