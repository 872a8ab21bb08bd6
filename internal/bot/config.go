package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Long-poll timeout for getUpdates, in seconds
	UpdateTimeout int
	// Outbound message budget; Telegram allows about 30 messages per second
	MessagesPerSecond float64
	Burst             int
	// Updates handled concurrently
	Workers int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() BotConfig {
	return BotConfig{
		UpdateTimeout:     60,
		MessagesPerSecond: 25,
		Burst:             5,
		Workers:           8,
	}
}
