package drip

import (
	"fmt"

	"github.com/jujuling/fanline/internal/line"
)

// Card styling shared by the drip bundles.
const (
	cardBackground = "#1a1a2e"
	accentColor    = "#f72585"
	mutedTextColor = "#cccccc"

	// NextContentAction is the postback data string that advances the
	// chain. Post bundles embed it so every delivered step invites the
	// next request.
	NextContentAction = "action=next_content"
)

// Terminal and locked responses. Both are idempotent against state.
const (
	terminalText = "You've seen everything! Thanks for following the story to the end. ✨"
	lockedText   = "The next chapter is about to unlock. Stay tuned ⏳"
)

// TerminalMessage is the bundle returned once the sequence is complete.
func TerminalMessage() []line.Message {
	return []line.Message{line.NewTextMessage(terminalText)}
}

// LockedMessage is the bundle returned while the target segment is gated.
func LockedMessage() []line.Message {
	return []line.Message{line.NewTextMessage(lockedText)}
}

// GameBundle builds the single interactive message for a game step. The
// action URL carries the round number into the external experience.
func GameBundle(step ContentStep, gameURL string) []line.Message {
	subtitle := step.Subtitle
	if subtitle == "" {
		subtitle = "Ready when you are."
	}
	bubble := line.NewBubble("giga")
	bubble.Body = &line.FlexBox{
		Type: "box", Layout: "vertical", PaddingAll: "0px",
		Contents: []interface{}{
			&line.FlexBox{
				Type: "box", Layout: "vertical", PaddingAll: "40px", BackgroundColor: cardBackground,
				JustifyContent: "center", AlignItems: "center",
				Contents: []interface{}{
					&line.FlexText{Type: "text", Text: step.Title, Weight: "bold", Size: "xxl", Color: accentColor, Align: "center"},
					&line.FlexText{Type: "text", Text: subtitle, Wrap: true, Size: "md", Color: mutedTextColor, Align: "center", Margin: "lg"},
				},
			},
			&line.FlexBox{
				Type: "box", Layout: "vertical", PaddingAll: "16px", BackgroundColor: cardBackground,
				Contents: []interface{}{
					&line.FlexButton{
						Type: "button", Style: "primary", Color: accentColor, Height: "md",
						Action: line.URIAction("Play now 🎮", fmt.Sprintf("%s?round=%d", gameURL, step.Round)),
					},
				},
			},
		},
	}
	return []line.Message{line.NewFlexMessage(step.Title+" - play the game", bubble)}
}

// PostBundle builds the message parts for a post step: an optional leading
// video, then a card whose sole action re-issues the advance request.
func PostBundle(step ContentStep) []line.Message {
	var msgs []line.Message
	if step.VideoURL != "" {
		msgs = append(msgs, line.NewVideoMessage(step.VideoURL, step.ThumbnailURL))
	}

	bubble := line.NewBubble("giga")
	bubble.Body = &line.FlexBox{
		Type: "box", Layout: "vertical", PaddingAll: "0px",
		Contents: []interface{}{
			&line.FlexBox{
				Type: "box", Layout: "vertical", PaddingAll: "20px", BackgroundColor: cardBackground,
				Contents: []interface{}{
					&line.FlexText{Type: "text", Text: step.Title, Weight: "bold", Size: "lg", Color: "#ffffff"},
					&line.FlexText{Type: "text", Text: step.Text, Wrap: true, Size: "sm", Color: mutedTextColor, Margin: "md"},
				},
			},
			&line.FlexBox{
				Type: "box", Layout: "vertical", PaddingAll: "16px", BackgroundColor: cardBackground,
				Contents: []interface{}{
					&line.FlexButton{
						Type: "button", Style: "primary", Color: accentColor,
						Action: line.PostbackAction("Continue ▶", NextContentAction, "Continue"),
					},
				},
			},
		},
	}
	msgs = append(msgs, line.NewFlexMessage(step.Title, bubble))
	return msgs
}
