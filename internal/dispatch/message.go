package dispatch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/MrWong99/kojo/internal/enforce"
)

// Attachment is a file attached to a chat message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Message is an inbound chat message, already translated from the platform
// type.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string

	AuthorID  string
	AuthorTag string
	AuthorBot bool

	Content     string
	Attachments []Attachment

	// Member is the author's guild member, when the platform delivered it
	// with the message. Nil in DMs.
	Member enforce.Member

	// Link is a jump link to the message.
	Link string
}

// Origin returns the context string sent to the classifier with text and
// links from this message.
func (m Message) Origin() string {
	guild, channel := m.GuildID, m.ChannelID
	if guild == "" {
		guild = "DM"
	}
	if channel == "" {
		channel = "N/A"
	}
	return "guild=" + guild + " channel=" + channel
}

// Subject returns the moderation subject for this message.
func (m Message) Subject() Subject {
	return Subject{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		UserID:    m.AuthorID,
		UserTag:   m.AuthorTag,
		Content:   m.Content,
		Member:    m.Member,
		Link:      m.Link,
	}
}

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// FirstURL returns the first http(s) link in text.
func FirstURL(text string) (string, bool) {
	u := urlPattern.FindString(text)
	return u, u != ""
}

// MediaKind classifies an attachment for routing.
type MediaKind int

const (
	MediaOther MediaKind = iota
	MediaImage
	MediaVideo
)

// String returns the kind name used in logs.
func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "other"
	}
}

var (
	imageExt = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|bmp|tiff)$`)
	videoExt = regexp.MustCompile(`(?i)\.(mp4|mov|webm|mkv|avi)$`)
)

// DetectKind decides whether a is an image or a video. The declared media
// type wins, then the filename extension, then the extension of the URL
// path.
func DetectKind(a Attachment) MediaKind {
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaImage
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo
	}
	if k := kindByExt(a.Filename); k != MediaOther {
		return k
	}
	return kindByExt(urlPath(a.URL))
}

func kindByExt(name string) MediaKind {
	switch {
	case imageExt.MatchString(name):
		return MediaImage
	case videoExt.MatchString(name):
		return MediaVideo
	}
	return MediaOther
}

// urlPath returns the path of raw without query or fragment.
func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	p, _, _ := strings.Cut(raw, "?")
	return p
}
