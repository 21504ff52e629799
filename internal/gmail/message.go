package gmail

import (
	"encoding/base64"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Summary is the part of a message the dashboard lists.
type Summary struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	Snippet string   `json:"snippet"`
	Unread  bool     `json:"unread"`
	Labels  []string `json:"labels,omitempty"`
}

// Summarize extracts the listed fields of m.
func Summarize(m *gmail.Message) Summary {
	s := Summary{
		ID:      m.Id,
		From:    HeaderValue(m, "From"),
		Subject: HeaderValue(m, "Subject"),
		Date:    HeaderValue(m, "Date"),
		Snippet: m.Snippet,
		Labels:  m.LabelIds,
	}
	for _, l := range m.LabelIds {
		if l == labelUnread {
			s.Unread = true
			break
		}
	}
	return s
}

// HeaderValue returns the first header of m named header, compared case
// insensitively.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

// MessageBody returns the decoded plain-text body of m: the payload body when
// it has one, else the first text/plain part. It returns "" when neither
// exists or decoding fails.
func MessageBody(m *gmail.Message) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	if m.Payload.Body != nil && m.Payload.Body.Data != "" {
		return decodeBody(m.Payload.Body.Data)
	}

	var data string
	walkParts(m.Payload, func(part *gmail.MessagePart) bool {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			data = part.Body.Data
			return false
		}
		return true
	})
	return decodeBody(data)
}

// walkParts visits part and its descendants depth first until fn returns
// false.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart) bool) bool {
	if part == nil {
		return true
	}
	if !fn(part) {
		return false
	}
	for _, sub := range part.Parts {
		if !walkParts(sub, fn) {
			return false
		}
	}
	return true
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	data = strings.TrimRight(data, "=")
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

func buildMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Subject: " + encodeRFC2047(subject) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// encodeRFC2047 encodes non-ASCII header values.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}
