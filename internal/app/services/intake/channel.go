package intake

import (
	"github.com/tidwall/gjson"

	"github.com/openmuni/grievance-core/pkg/apperr"
)

// ChannelMessage is the channel-agnostic shape the intake machine consumes,
// parsed out of whatever envelope a messaging provider actually sends.
type ChannelMessage struct {
	Channel     string
	Address     string
	Text        string
	ImageHandle string
}

// Reply is the channel-agnostic response the webhook hands back to the
// provider to relay to the citizen.
type Reply struct {
	Text string `json:"text"`
}

// ParseChannelPayload tolerantly extracts a ChannelMessage from a raw
// provider webhook body using gjson, so schema drift in fields this package
// never reads (provider metadata, delivery receipts, etc.) never breaks
// parsing. It supports the two common provider shapes: a flat
// {channel, from, text, image_handle} body, and a nested
// {channel, message: {from, text, image_handle}} body.
func ParseChannelPayload(raw []byte) (ChannelMessage, error) {
	body := string(raw)
	if !gjson.Valid(body) {
		return ChannelMessage{}, apperr.InvalidInputf("malformed channel payload")
	}

	channel := firstMatch(body, "channel", "source", "message.channel")
	address := firstMatch(body, "from", "address", "sender", "message.from", "message.address")
	text := firstMatch(body, "text", "body", "message.text", "message.body")
	image := firstMatch(body, "image_handle", "image", "message.image_handle", "message.image")

	if channel == "" || address == "" {
		return ChannelMessage{}, apperr.InvalidInputf("channel payload missing channel or sender address")
	}

	return ChannelMessage{Channel: channel, Address: address, Text: text, ImageHandle: image}, nil
}

func firstMatch(body string, paths ...string) string {
	for _, p := range paths {
		if v := gjson.Get(body, p); v.Exists() {
			return v.String()
		}
	}
	return ""
}
