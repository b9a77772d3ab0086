package assistant

import (
	"strings"
	"time"
	"unicode"
)

const apology = "I understand you're asking about something, but I need my full AI model " +
	"to provide a proper response. Please ensure the language model is properly configured."

// Fallback answers common small talk when the language model is unavailable
// or returns nothing.
func Fallback(input string, now time.Time) string {
	lower := strings.ToLower(input)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		words[w] = true
	}

	switch {
	case words["hello"] || words["hi"] || words["hey"]:
		return "Hello! I'm CommandEcho, your AI assistant. How can I help you today?"
	case strings.Contains(lower, "how are you") || strings.Contains(lower, "how do you do"):
		return "I'm functioning well, thank you! Ready to assist you with any tasks."
	case strings.Contains(lower, "thank you") || words["thanks"]:
		return "You're welcome! I'm here whenever you need assistance."
	case words["weather"]:
		return "I don't have access to current weather data, but you can check your local weather app or website."
	case words["time"]:
		return "The current time is " + now.Format("03:04 PM") + "."
	default:
		return apology
	}
}
