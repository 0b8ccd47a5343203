package view

import (
	"encoding/json"
	"html/template"
	"strings"

	"foresight/internal/models"

	"github.com/tidwall/gjson"
)

// EmptyChatText is shown when a session has no history yet.
const EmptyChatText = "Your analysis is ready! You can now ask questions about the uploaded documents or request a general summary."

// FailedReplyText replaces a reply when the upstream call fails.
const FailedReplyText = "Failed to get response from server. Please try again."

// ChatMessages converts the upstream history payload. Anything but a
// successful status yields an empty list.
func ChatMessages(raw json.RawMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return out
	}
	doc := gjson.ParseBytes(raw)
	if doc.Get("status").String() != "success" {
		return out
	}
	doc.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		role := models.ChatRoleAI
		if msg.Get("sender").String() == "user" {
			role = models.ChatRoleUser
		}
		out = append(out, models.ChatMessage{
			Role:      role,
			Text:      msg.Get("message").String(),
			Timestamp: msg.Get("timestamp").String(),
		})
		return true
	})
	return out
}

// ReplyText picks the reply out of a chat/message response: bot_response,
// then response.response, then response, then message, else the raw JSON.
func ReplyText(raw json.RawMessage) string {
	if !gjson.ValidBytes(raw) {
		return string(raw)
	}
	doc := gjson.ParseBytes(raw)
	for _, p := range []string{"bot_response", "response.response", "response", "message"} {
		v := doc.Get(p)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return string(raw)
}

// ChatLine is a message prepared for the template.
type ChatLine struct {
	Role models.ChatRole
	HTML template.HTML
}

// ChatLines renders messages, with AI replies treated as markdown.
func ChatLines(msgs []models.ChatMessage) []ChatLine {
	if len(msgs) == 0 {
		return []ChatLine{{Role: models.ChatRoleAI, HTML: template.HTML(template.HTMLEscapeString(EmptyChatText))}}
	}
	lines := make([]ChatLine, 0, len(msgs))
	for _, m := range msgs {
		var body template.HTML
		if m.Role == models.ChatRoleAI {
			body = Markdown(m.Text)
		} else {
			body = template.HTML(strings.ReplaceAll(template.HTMLEscapeString(m.Text), "\n", "<br>"))
		}
		lines = append(lines, ChatLine{Role: m.Role, HTML: body})
	}
	return lines
}
