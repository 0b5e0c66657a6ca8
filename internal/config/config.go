package config

import "time"

// Config is the full tuning surface of the server. Defaults mirror the
// original game's constants; cmd/server binds flags and SEMADASH_* env
// vars on top.
type Config struct {
	Port      string
	PublicURL string

	RecognitionURL      string
	ConfidenceThreshold float64
	PollInterval        time.Duration

	SingleDuration  int // seconds
	MultiDuration   int // seconds
	ScorePerCorrect int
	MaxPlayers      int
	HistoryLimit    int
	IntroDelay      time.Duration
	SettleDelay     time.Duration

	ExportEnabled bool
	ExportFile    string
}

func Default() Config {
	return Config{
		Port:                "8080",
		PublicURL:           "http://localhost:8080",
		RecognitionURL:      "http://localhost:5000",
		ConfidenceThreshold: 0.85,
		PollInterval:        time.Second,
		SingleDuration:      60,
		MultiDuration:       60,
		ScorePerCorrect:     10,
		MaxPlayers:          8,
		HistoryLimit:        50,
		IntroDelay:          3 * time.Second,
		SettleDelay:         3 * time.Second,
		ExportEnabled:       true,
		ExportFile:          "./semadash-results.txt",
	}
}
