package game

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiliankoe/semadash/internal/recognition"
	"github.com/kiliankoe/semadash/internal/semaphore"
)

// State is the single mutable game aggregate. It is written only by the
// Controller and by its own match evaluation; the render boundary reads it
// through Snapshot. Every mutation happens under the mutex, so timer
// callbacks and socket handlers never interleave mid-update.
type State struct {
	mu sync.Mutex

	cfg Config

	phase       Phase
	players     []*Player
	activeIdx   int
	remaining   int
	current     semaphore.Letter
	target      semaphore.Letter
	roundActive bool

	// roundID changes on every round start. Detection results captured
	// under an older ID outlived their round and are dropped unapplied.
	roundID string

	history *History
}

func NewState(cfg Config) *State {
	return &State{
		cfg:     cfg,
		phase:   PhaseIdle,
		current: "A",
		target:  "A",
		history: NewHistory(cfg.HistoryLimit),
	}
}

func (st *State) Phase() Phase {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

func (st *State) setPhase(p Phase) {
	st.mu.Lock()
	st.phase = p
	st.mu.Unlock()
}

// AddPlayer registers a player during multiplayer setup. Validation happens
// before any mutation: an empty or duplicate name or a full roster leaves
// the roster untouched.
func (st *State) AddPlayer(name string) (*Player, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(st.players) >= st.cfg.MaxPlayers {
		return nil, ErrTooManyPlayers
	}
	for _, p := range st.players {
		if p.Name == name {
			return nil, ErrNameTaken
		}
	}
	p := &Player{ID: uuid.NewString(), Name: name, JoinedAt: time.Now().UTC()}
	st.players = append(st.players, p)
	return p, nil
}

func (st *State) RemovePlayer(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, p := range st.players {
		if p.Name == name {
			st.players = append(st.players[:i], st.players[i+1:]...)
			return true
		}
	}
	return false
}

// Players returns a copy of the roster in join order.
func (st *State) Players() []Player {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Player, 0, len(st.players))
	for _, p := range st.players {
		out = append(out, *p)
	}
	return out
}

func (st *State) PlayerCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.players)
}

func (st *State) Remaining() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.remaining
}

func (st *State) Target() semaphore.Letter {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.target
}

func (st *State) History() *History {
	return st.history
}

// resetRoster clears players and scores. Entering a new mode resets all
// round-specific state but never touches history.
func (st *State) resetRoster(players ...string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.players = nil
	for _, name := range players {
		st.players = append(st.players, &Player{ID: uuid.NewString(), Name: name, JoinedAt: time.Now().UTC()})
	}
	st.activeIdx = 0
	st.remaining = 0
	st.roundActive = false
}

func (st *State) resetScores() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range st.players {
		p.Score = 0
	}
}

// prepareRound stages a round without activating it: the timer shows the
// full duration and a fresh target is up, but ticks have no effect yet.
func (st *State) prepareRound(seconds int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.remaining = seconds
	st.roundActive = false
	st.rotateLetterLocked()
}

func (st *State) resetTurns() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeIdx = 0
}

func (st *State) activePlayerScore() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p := st.activePlayerLocked(); p != nil {
		return p.Score
	}
	return 0
}

// startRound arms the aggregate for a new round: fresh round ID, fresh
// random target, full timer. Returns the round ID the scheduler's async
// results must present to be applied.
func (st *State) startRound(seconds int) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.roundID = uuid.NewString()
	st.remaining = seconds
	st.roundActive = true
	st.rotateLetterLocked()
	return st.roundID
}

// endRound deactivates the round. It reports whether this call actually
// ended it, so a second "reached zero" signal is a no-op.
func (st *State) endRound() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.roundActive {
		return false
	}
	st.roundActive = false
	return true
}

func (st *State) roundActiveNow() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.roundActive
}

func (st *State) currentRoundID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.roundID
}

// decrement ticks the countdown down by one second, never below zero, and
// returns the new value.
func (st *State) decrement() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.roundActive || st.remaining == 0 {
		return st.remaining
	}
	st.remaining--
	return st.remaining
}

func (st *State) rotateLetterLocked() {
	st.target = semaphore.Random()
	st.current = st.target
}

// rotateLetter rolls a new target outside of match evaluation (the practice
// "next letter" action).
func (st *State) rotateLetter() semaphore.Letter {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rotateLetterLocked()
	return st.target
}

func (st *State) activePlayerLocked() *Player {
	if st.activeIdx < 0 || st.activeIdx >= len(st.players) {
		return nil
	}
	return st.players[st.activeIdx]
}

func (st *State) activePlayerName() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if p := st.activePlayerLocked(); p != nil {
		return p.Name
	}
	return ""
}

// advanceTurn moves the turn pointer. It reports whether another player
// remains; when it returns false the tournament is over.
func (st *State) advanceTurn() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeIdx++
	return st.activeIdx < len(st.players)
}

// ApplyDetection evaluates one accepted recognition result against the
// current target. Results from an ended or superseded round are rejected
// with ok=false and leave the state untouched. The active player is read at
// the moment of evaluation, never cached by the caller, so a late result
// can never score the wrong player.
func (st *State) ApplyDetection(roundID string, res recognition.Result) (Outcome, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.roundActive || roundID != st.roundID {
		return Outcome{}, false
	}

	out := Outcome{Letter: res.Letter, Target: st.target, Confidence: res.Confidence}

	if res.Letter != st.target {
		if p := st.activePlayerLocked(); p != nil {
			out.Player = p.Name
		}
		return out, true
	}

	out.Match = true
	if st.phase == PhasePractice {
		// Practice rewards with a fresh letter instead of points.
		st.rotateLetterLocked()
		return out, true
	}
	if p := st.activePlayerLocked(); p != nil {
		p.Score += st.cfg.ScorePerCorrect
		out.Player = p.Name
		out.Points = st.cfg.ScorePerCorrect
	}
	st.rotateLetterLocked()
	return out, true
}

// Rankings returns the roster ordered by descending score. Ties keep join
// order, so an earlier player is never displaced by a later equal score.
func (st *State) Rankings() []PlayerResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]PlayerResult, 0, len(st.players))
	for _, p := range st.players {
		out = append(out, PlayerResult{Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Snapshot is the read model handed to the render boundary.
type Snapshot struct {
	Phase         Phase            `json:"phase"`
	Players       []Player         `json:"players"`
	ActivePlayer  string           `json:"activePlayer,omitempty"`
	Remaining     int              `json:"remainingSeconds"`
	TargetLetter  semaphore.Letter `json:"targetLetter"`
	Instruction   string           `json:"instruction"`
	RoundActive   bool             `json:"roundActive"`
	History       []Session        `json:"history"`
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	snap := Snapshot{
		Phase:        st.phase,
		Players:      make([]Player, 0, len(st.players)),
		Remaining:    st.remaining,
		TargetLetter: st.target,
		Instruction:  semaphore.Describe(st.target),
		RoundActive:  st.roundActive,
	}
	for _, p := range st.players {
		snap.Players = append(snap.Players, *p)
	}
	if p := st.activePlayerLocked(); p != nil {
		snap.ActivePlayer = p.Name
	}
	st.mu.Unlock()
	snap.History = st.history.List()
	return snap
}
