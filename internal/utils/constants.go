package utils

const (
	// Emojis
	EmojiTick  = "✅"
	EmojiCross = "❌"

	// Colors
	ColorDark  = 0x2f3136
	ColorGreen = 0x00FF00
	ColorRed   = 0xFF0000
)
