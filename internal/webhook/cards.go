package webhook

import (
	"github.com/jujuling/fanline/internal/line"
)

const (
	cardBackground = "#1a1a2e"
	accentColor    = "#f72585"
	mutedTextColor = "#cccccc"

	promoCode = "FANLINE2026"
	ticketURL = "https://tickets.example.com/fanline"

	welcomeText = "Thanks for adding us! 💜 Tap the button below whenever you're ready to start the story."

	campaignQuestion = "One quick question: can you make it to the release event?"
)

// PromoCard is the flex card handed out for the get_promo_code action.
func PromoCard() []line.Message {
	bubble := line.NewBubble("mega")
	bubble.Body = &line.FlexBox{
		Type: "box", Layout: "vertical", PaddingAll: "24px", BackgroundColor: cardBackground,
		Contents: []interface{}{
			&line.FlexText{Type: "text", Text: "Your promo code", Size: "sm", Color: mutedTextColor, Align: "center"},
			&line.FlexText{Type: "text", Text: promoCode, Weight: "bold", Size: "xxl", Color: accentColor, Align: "center", Margin: "md"},
			&line.FlexSeparator{Type: "separator", Margin: "lg", Color: "#333355"},
			&line.FlexText{Type: "text", Text: "Show this code at the merch counter.", Wrap: true, Size: "xs", Color: mutedTextColor, Align: "center", Margin: "lg"},
		},
	}
	bubble.Footer = &line.FlexBox{
		Type: "box", Layout: "vertical", PaddingAll: "16px", BackgroundColor: cardBackground,
		Contents: []interface{}{
			&line.FlexButton{
				Type: "button", Style: "primary", Color: accentColor,
				Action: line.URIAction("Get tickets 🎫", ticketURL),
			},
		},
	}
	return []line.Message{line.NewFlexMessage("Your promo code", bubble)}
}

// WelcomeBundle is the follow greeting: a text message plus the
// availability question card. campaign names the event the yes/no answer
// is recorded against.
func WelcomeBundle(displayName, campaign string) []line.Message {
	greeting := welcomeText
	if displayName != "" {
		greeting = displayName + ", " + welcomeText
	}

	bubble := line.NewBubble("mega")
	bubble.Body = &line.FlexBox{
		Type: "box", Layout: "vertical", PaddingAll: "24px", BackgroundColor: cardBackground,
		Contents: []interface{}{
			&line.FlexText{Type: "text", Text: campaignQuestion, Wrap: true, Size: "md", Color: "#ffffff"},
			&line.FlexBox{
				Type: "box", Layout: "horizontal", Margin: "xl", Spacing: "md",
				Contents: []interface{}{
					&line.FlexButton{
						Type: "button", Style: "primary", Color: accentColor,
						Action: line.PostbackAction("I'll be there 🙌", "event="+campaign+"&answer=yes", "I'll be there"),
					},
					&line.FlexButton{
						Type: "button", Style: "secondary",
						Action: line.PostbackAction("Can't make it", "event="+campaign+"&answer=no", "Can't make it"),
					},
				},
			},
		},
	}
	return []line.Message{
		line.NewTextMessage(greeting),
		line.NewFlexMessage(campaignQuestion, bubble),
	}
}

// campaignAck maps the availability answer onto the canned acknowledgment.
func campaignAck(answer string) string {
	if answer == "yes" {
		return "Amazing! 🎉 We'll save you a spot. See you there!"
	}
	return "No worries, thanks for letting us know. We'll share the highlights here. 💜"
}
