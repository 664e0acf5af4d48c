package model

import (
	"encoding/json"
	"strings"
)

// IncomingMessage is one turn as posted by the client. Historical client
// versions sent several shapes: a plain content string, an AI-SDK style
// parts array, a content array of typed parts, or a bare text field.
// ExtractText is the single place all of them are normalized.
type IncomingMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Parts   []MessagePart   `json:"parts,omitempty"`
	Text    string          `json:"text,omitempty"`
}

type MessagePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ExtractText returns the textual content of the message, ignoring
// image and other non-text parts. Returns "" when the message carries
// no text at all.
func (m IncomingMessage) ExtractText() string {
	if len(m.Parts) > 0 {
		var texts []string
		for _, p := range m.Parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	if len(m.Content) > 0 {
		var s string
		if err := json.Unmarshal(m.Content, &s); err == nil {
			return s
		}
		var parts []MessagePart
		if err := json.Unmarshal(m.Content, &parts); err == nil {
			for _, p := range parts {
				if p.Type == "text" && p.Text != "" {
					return p.Text
				}
			}
			return ""
		}
	}

	return m.Text
}

// NormalizedRole maps any non-user role onto the assistant side of the
// transcript; the raw log only distinguishes the two speakers.
func (m IncomingMessage) NormalizedRole() ChatRole {
	if m.Role == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}
