package mockserver

// Config holds configuration for the mock server.
type Config struct {
	// ListenAddr is the address used by HTTPServer.
	ListenAddr string

	// Token, when set, must match the X-Token header of every request.
	Token string

	// PollsUntilDone is how many status polls an analysed job answers with
	// "running" before it reports "done".
	PollsUntilDone int

	// MaxPushSize is the largest chunk a single push may carry.
	MaxPushSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8650",
		PollsUntilDone: 2,
		MaxPushSize:    100,
	}
}
