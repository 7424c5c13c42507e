package line

// Message is one part of an outbound bundle. The platform distinguishes
// parts by Type; unused fields are omitted from the wire payload.
type Message struct {
	Type string `json:"type"`

	// text messages
	Text string `json:"text,omitempty"`

	// video messages
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`

	// flex messages
	AltText  string      `json:"altText,omitempty"`
	Contents interface{} `json:"contents,omitempty"`
}

// NewTextMessage builds a plain text part.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// NewVideoMessage builds a video part. If no preview is given the content
// URL doubles as the preview image, matching platform requirements.
func NewVideoMessage(contentURL, previewURL string) Message {
	if previewURL == "" {
		previewURL = contentURL
	}
	return Message{Type: "video", OriginalContentURL: contentURL, PreviewImageURL: previewURL}
}

// NewFlexMessage builds a flex part from a bubble container.
func NewFlexMessage(altText string, bubble *Bubble) Message {
	return Message{Type: "flex", AltText: altText, Contents: bubble}
}

// NewRawFlexMessage builds a flex part from pre-built contents, used when
// a caller supplies a complete flex payload (e.g. event promo passthrough).
func NewRawFlexMessage(altText string, contents interface{}) Message {
	return Message{Type: "flex", AltText: altText, Contents: contents}
}
