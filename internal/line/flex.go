package line

// Typed subset of the platform's flex message components. Only the shapes
// the content builders actually emit are modeled; contents slices are
// heterogeneous so they hold any of the component structs below.

// Bubble is the top-level flex container.
type Bubble struct {
	Type   string     `json:"type"`
	Size   string     `json:"size,omitempty"`
	Hero   *FlexImage `json:"hero,omitempty"`
	Body   *FlexBox   `json:"body,omitempty"`
	Footer *FlexBox   `json:"footer,omitempty"`
}

// NewBubble creates a bubble container of the given size.
func NewBubble(size string) *Bubble {
	return &Bubble{Type: "bubble", Size: size}
}

// FlexBox is a layout container for other components.
type FlexBox struct {
	Type            string        `json:"type"`
	Layout          string        `json:"layout"`
	Spacing         string        `json:"spacing,omitempty"`
	Margin          string        `json:"margin,omitempty"`
	PaddingAll      string        `json:"paddingAll,omitempty"`
	BackgroundColor string        `json:"backgroundColor,omitempty"`
	JustifyContent  string        `json:"justifyContent,omitempty"`
	AlignItems      string        `json:"alignItems,omitempty"`
	Contents        []interface{} `json:"contents"`
}

// NewBox creates a flex box with the given layout and contents.
func NewBox(layout string, contents ...interface{}) *FlexBox {
	return &FlexBox{Type: "box", Layout: layout, Contents: contents}
}

// FlexText is a text component.
type FlexText struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
	Align  string `json:"align,omitempty"`
	Margin string `json:"margin,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

// FlexButton is a button component carrying a tap action.
type FlexButton struct {
	Type   string  `json:"type"`
	Style  string  `json:"style,omitempty"`
	Color  string  `json:"color,omitempty"`
	Height string  `json:"height,omitempty"`
	Action *Action `json:"action"`
}

// FlexSeparator is a horizontal rule.
type FlexSeparator struct {
	Type   string `json:"type"`
	Margin string `json:"margin,omitempty"`
	Color  string `json:"color,omitempty"`
}

// FlexImage is an image component (used as bubble hero).
type FlexImage struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Size        string `json:"size,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	AspectMode  string `json:"aspectMode,omitempty"`
}

// Action is a tap action attached to a button.
type Action struct {
	Type        string `json:"type"`
	Label       string `json:"label,omitempty"`
	URI         string `json:"uri,omitempty"`
	Data        string `json:"data,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}

// URIAction opens an external URL.
func URIAction(label, uri string) *Action {
	return &Action{Type: "uri", Label: label, URI: uri}
}

// PostbackAction sends an action data string back through the webhook.
func PostbackAction(label, data, displayText string) *Action {
	return &Action{Type: "postback", Label: label, Data: data, DisplayText: displayText}
}
