package telegram

import "encoding/json"

// Update is one event from getUpdates. Fields other than text messages are
// not modeled; updates without a message are skipped by the poller.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message.
type Message struct {
	Text string `json:"text"`
	Chat Chat   `json:"chat"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// response is the Bot API envelope.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}
