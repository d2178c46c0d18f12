package domain

import "time"

// User is a resolved chat user (value object)
type User struct {
	ID       string
	Username string
}

// Notice is a platform-neutral message payload
type Notice struct {
	Content string
	Embeds  []Embed
}

// Embed is one rich card inside a notice
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Thumbnail   string
	Image       string
	Footer      string
	Timestamp   time.Time
	Fields      []EmbedField
}

// EmbedField is a name/value row of an embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// AddField appends a field and returns the embed for chaining
func (e *Embed) AddField(name, value string, inline bool) *Embed {
	e.Fields = append(e.Fields, EmbedField{Name: name, Value: value, Inline: inline})
	return e
}
