package game

import (
	"errors"
	"time"

	"github.com/kiliankoe/semadash/internal/semaphore"
)

type Phase string

const (
	PhaseIdle         Phase = "Idle"
	PhasePractice     Phase = "Practice"
	PhaseSinglePrep   Phase = "SinglePlayerPrep"
	PhaseSingleActive Phase = "SinglePlayerActive"
	PhaseSingleDone   Phase = "SinglePlayerDone"
	PhaseMultiSetup   Phase = "MultiplayerSetup"
	PhaseMultiIntro   Phase = "MultiplayerIntro"
	PhaseMultiActive  Phase = "MultiplayerActive"
	PhaseMultiSettle  Phase = "MultiplayerSettle"
	PhaseMultiFinal   Phase = "MultiplayerFinal"
)

type SessionType string

const (
	SessionPractice     SessionType = "Practice"
	SessionSinglePlayer SessionType = "Single Player"
	SessionMultiplayer  SessionType = "Multiplayer"
)

var (
	ErrInvalidPhase     = errors.New("invalid phase for action")
	ErrEmptyName        = errors.New("player name must not be empty")
	ErrNameTaken        = errors.New("player name already exists")
	ErrTooManyPlayers   = errors.New("player limit reached")
	ErrNotEnoughPlayers = errors.New("at least 2 players required")
	ErrNoCaptureSource  = errors.New("no capture source available")
)

type Config struct {
	SingleDuration  int // seconds
	MultiDuration   int // seconds
	ScorePerCorrect int
	MaxPlayers      int
	HistoryLimit    int
	IntroDelay      time.Duration
	SettleDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		SingleDuration:  60,
		MultiDuration:   60,
		ScorePerCorrect: 10,
		MaxPlayers:      8,
		HistoryLimit:    50,
		IntroDelay:      3 * time.Second,
		SettleDelay:     3 * time.Second,
	}
}

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PlayerResult is one line of a finished session: name and final score.
type PlayerResult struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Session is the immutable record of one completed game, as kept in the
// history list. Multiplayer sessions carry players ranked by score.
type Session struct {
	Type      SessionType    `json:"type"`
	Players   []PlayerResult `json:"players"`
	Timestamp time.Time      `json:"timestamp"`
}

// Outcome describes what one accepted recognition result did to the game:
// a match that scored (or advanced the practice letter), or a mismatch
// between the letter shown and the letter required.
type Outcome struct {
	Match      bool             `json:"match"`
	Letter     semaphore.Letter `json:"letter"`
	Target     semaphore.Letter `json:"target"`
	Confidence float64          `json:"confidence"`
	Points     int              `json:"points"`
	Player     string           `json:"player,omitempty"`
}
