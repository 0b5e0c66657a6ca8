package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/semadash/internal/capture"
	"github.com/kiliankoe/semadash/internal/recognition"
)

// Detector is the recognition boundary the controller polls. Production
// uses recognition.Client; tests substitute a scripted detector.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (*recognition.Result, error)
}

// Observer is the render boundary's view of the game. StateChanged fires
// after anything a renderer shows has moved; Detection carries per-tick
// match feedback; Notice carries advisories (kind is "success", "info" or
// "error", mirroring what the renderer styles).
type Observer interface {
	StateChanged()
	Detection(Outcome)
	Notice(kind, message string)
}

// Controller sequences rounds and turns: it is the only writer of State
// besides State's own match evaluation, and the only owner of the
// scheduler's loops. Exactly one round polls and ticks at any time. Every
// transition — the socket-driven entry points and the deferred
// intro/settle/expiry callbacks alike — runs under one mutex, so two
// clients entering modes at once, or a timer firing against Stop, resolve
// strictly one after the other.
type Controller struct {
	cfg   Config
	state *State
	sched *Scheduler
	det   Detector
	src   capture.Source

	exportFile string

	// mu serializes transitions. pendingGen invalidates a deferred
	// callback that was already in flight when the transition it belonged
	// to was cancelled or replaced.
	mu         sync.Mutex
	pending    *time.Timer
	pendingGen uint64

	obsMu sync.Mutex
	obs   Observer
}

func NewController(cfg Config, st *State, sched *Scheduler, det Detector, src capture.Source) *Controller {
	return &Controller{cfg: cfg, state: st, sched: sched, det: det, src: src}
}

// SetObserver attaches the render boundary. Pass nil to detach.
func (c *Controller) SetObserver(obs Observer) {
	c.obsMu.Lock()
	c.obs = obs
	c.obsMu.Unlock()
}

// SetExportFile enables appending finished sessions to path. Empty disables.
func (c *Controller) SetExportFile(path string) {
	c.exportFile = path
}

func (c *Controller) State() *State { return c.state }

// StartPractice enters free practice: detection loop only, no countdown,
// no scoring. A match rolls a fresh letter so the learner can keep going.
func (c *Controller) StartPractice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPending()
	c.sched.StopAll()
	c.state.resetRoster()
	c.state.setPhase(PhasePractice)
	roundID := c.state.startRound(0)
	c.startDetection(roundID)
	log.Info().Str("phase", string(PhasePractice)).Msg("practice started")
	c.stateChanged()
}

// NextPracticeLetter re-rolls the practice letter on demand.
func (c *Controller) NextPracticeLetter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhasePractice {
		return ErrInvalidPhase
	}
	letter := c.state.rotateLetter()
	log.Debug().Str("letter", string(letter)).Msg("practice letter changed")
	c.stateChanged()
	return nil
}

// PrepareSinglePlayer resets for a single-player game without starting it:
// solo roster, full timer, fresh target. The round begins on
// StartSinglePlayer.
func (c *Controller) PrepareSinglePlayer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPending()
	c.sched.StopAll()
	c.state.resetRoster("Player")
	c.state.setPhase(PhaseSinglePrep)
	c.state.prepareRound(c.cfg.SingleDuration)
	c.stateChanged()
}

// StartSinglePlayer begins the timed single-player round. It requires a
// capture frame to be available; without one nothing transitions.
func (c *Controller) StartSinglePlayer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.state.Phase(); p != PhaseSinglePrep && p != PhaseSingleDone {
		return ErrInvalidPhase
	}
	if !c.frameAvailable() {
		c.notice("error", "Please enable camera first")
		return ErrNoCaptureSource
	}
	c.state.resetScores()
	c.state.setPhase(PhaseSingleActive)
	roundID := c.state.startRound(c.cfg.SingleDuration)
	c.startLoops(roundID)
	log.Info().Int("duration", c.cfg.SingleDuration).Msg("single-player round started")
	c.notice("success", "Game started! Show the target letter with semaphore")
	c.stateChanged()
	return nil
}

// EnterMultiplayerSetup opens the roster for a new tournament.
func (c *Controller) EnterMultiplayerSetup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPending()
	c.sched.StopAll()
	c.state.resetRoster()
	c.state.setPhase(PhaseMultiSetup)
	c.stateChanged()
}

// AddPlayer registers a player during setup. Validation failures surface
// immediately and mutate nothing.
func (c *Controller) AddPlayer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhaseMultiSetup {
		return ErrInvalidPhase
	}
	p, err := c.state.AddPlayer(name)
	if err != nil {
		return err
	}
	log.Info().Str("player", p.Name).Msg("player added")
	c.notice("success", fmt.Sprintf("%s added to the game", p.Name))
	c.stateChanged()
	return nil
}

func (c *Controller) RemovePlayer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhaseMultiSetup {
		return ErrInvalidPhase
	}
	if !c.state.RemovePlayer(name) {
		return fmt.Errorf("no such player: %s", name)
	}
	c.notice("info", fmt.Sprintf("%s removed from the game", name))
	c.stateChanged()
	return nil
}

// StartTournament begins the turn sequence with the first player's intro.
func (c *Controller) StartTournament() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhaseMultiSetup {
		return ErrInvalidPhase
	}
	if c.state.PlayerCount() < 2 {
		return ErrNotEnoughPlayers
	}
	c.state.resetScores()
	c.state.resetTurns()
	log.Info().Int("players", c.state.PlayerCount()).Msg("tournament started")
	c.beginIntro()
	return nil
}

// beginIntro announces the active player's turn and arms the automatic
// start after the intro delay. Caller holds mu.
func (c *Controller) beginIntro() {
	c.state.setPhase(PhaseMultiIntro)
	c.state.prepareRound(c.cfg.MultiDuration)
	name := c.state.activePlayerName()
	c.notice("info", fmt.Sprintf("%s's turn! Get ready...", name))
	c.stateChanged()
	c.schedulePending(c.cfg.IntroDelay, c.introExpired)
}

func (c *Controller) introExpired() {
	if c.state.Phase() != PhaseMultiIntro {
		return
	}
	if !c.frameAvailable() {
		// Recoverable: stay in the intro until the camera shows up and
		// the player starts the turn manually.
		c.notice("error", "Please enable camera to continue")
		return
	}
	c.startTurn()
}

// StartTurn manually starts the active player's turn, for when the intro's
// auto-start found no camera.
func (c *Controller) StartTurn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhaseMultiIntro {
		return ErrInvalidPhase
	}
	if !c.frameAvailable() {
		c.notice("error", "Please enable camera first")
		return ErrNoCaptureSource
	}
	c.cancelPending()
	c.startTurn()
	return nil
}

func (c *Controller) startTurn() {
	c.state.setPhase(PhaseMultiActive)
	roundID := c.state.startRound(c.cfg.MultiDuration)
	c.startLoops(roundID)
	name := c.state.activePlayerName()
	log.Info().Str("player", name).Msg("turn started")
	c.notice("success", fmt.Sprintf("%s - Start showing semaphore letters!", name))
	c.stateChanged()
}

// SkipTurn ends the active multiplayer turn early.
func (c *Controller) SkipTurn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase() != PhaseMultiActive {
		return ErrInvalidPhase
	}
	if !c.state.endRound() {
		return nil
	}
	c.notice("info", "Turn skipped")
	c.settleTurn()
	return nil
}

// settleTurn stops both loops, records the finished turn and either lines
// up the next player's intro or finalizes the tournament. Caller holds mu.
func (c *Controller) settleTurn() {
	c.sched.StopAll()
	c.state.setPhase(PhaseMultiSettle)
	name := c.state.activePlayerName()
	score := c.state.activePlayerScore()
	log.Info().Str("player", name).Int("score", score).Msg("turn ended")
	c.notice("info", fmt.Sprintf("%s finished with %d points!", name, score))
	c.stateChanged()

	if c.state.advanceTurn() {
		c.schedulePending(c.cfg.SettleDelay, func() {
			if c.state.Phase() != PhaseMultiSettle {
				return
			}
			c.beginIntro()
		})
		return
	}
	c.finalizeTournament()
}

func (c *Controller) finalizeTournament() {
	c.state.setPhase(PhaseMultiFinal)
	ranked := c.state.Rankings()
	sess := Session{Type: SessionMultiplayer, Players: ranked, Timestamp: time.Now().UTC()}
	c.state.History().Append(sess)
	c.export(sess)
	log.Info().Int("players", len(ranked)).Msg("tournament finished")
	c.stateChanged()
}

func (c *Controller) finishSingle() {
	c.sched.StopAll()
	c.state.setPhase(PhaseSingleDone)
	score := c.state.activePlayerScore()
	sess := Session{
		Type:      SessionSinglePlayer,
		Players:   []PlayerResult{{Name: "Player", Score: score}},
		Timestamp: time.Now().UTC(),
	}
	c.state.History().Append(sess)
	c.export(sess)
	log.Info().Int("score", score).Msg("single-player round finished")
	c.notice("success", fmt.Sprintf("%s You scored %d points", PerformanceTier(score), score))
	c.stateChanged()
}

// Stop abruptly abandons whatever is running: loops stop, pending delays
// cancel, the phase falls back to Idle and nothing is recorded. A timer
// callback that was already waiting on the lock finds its generation
// stale, or the phase changed, and does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPending()
	c.sched.StopAll()
	c.state.endRound()
	c.state.resetRoster()
	c.state.setPhase(PhaseIdle)
	log.Info().Msg("stopped, back to idle")
	c.stateChanged()
}

func (c *Controller) ClearHistory() {
	c.state.History().Clear()
	c.notice("success", "Game history cleared")
	c.stateChanged()
}

// roundExpired handles the countdown's one end-of-round signal. endRound is
// idempotent and checked under the transition lock, so a skip or a Stop
// racing the timer settles the turn exactly once or not at all.
func (c *Controller) roundExpired(roundID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.currentRoundID() != roundID || !c.state.endRound() {
		return
	}
	switch c.state.Phase() {
	case PhaseSingleActive:
		c.finishSingle()
	case PhaseMultiActive:
		c.settleTurn()
	}
}

func (c *Controller) startLoops(roundID string) {
	c.startDetection(roundID)
	c.sched.StartCountdown(
		func() int {
			r := c.state.decrement()
			c.stateChanged()
			return r
		},
		func() { c.roundExpired(roundID) },
	)
}

func (c *Controller) startDetection(roundID string) {
	c.sched.StartDetection(func() { c.detectTick(roundID) })
}

// detectTick is one pass of the detection loop: grab the freshest frame,
// ask the classifier, and apply the result if the round it belongs to is
// still the one running. It deliberately stays off the transition lock —
// Detect blocks on the network — and relies on ApplyDetection re-checking
// round activity and epoch atomically. Results that outlive their round
// are dropped without a word.
func (c *Controller) detectTick(roundID string) {
	if !c.state.roundActiveNow() || c.state.currentRoundID() != roundID {
		return
	}
	frame, ok := c.frame()
	if !ok {
		return
	}

	res, err := c.det.Detect(context.Background(), frame)
	if err != nil {
		log.Warn().Err(err).Msg("recognition outage")
		c.notice("error", "AI detection service unavailable")
		return
	}
	if res == nil {
		return
	}

	out, applied := c.state.ApplyDetection(roundID, *res)
	if !applied {
		log.Debug().Str("letter", string(res.Letter)).Msg("stale detection dropped")
		return
	}
	c.detection(out)
	c.feedback(out)
	if out.Match {
		c.stateChanged()
	}
}

// feedback mirrors the original game's per-mode notification behavior:
// practice narrates everything, multiplayer narrates everything, the
// single-player HUD stays quiet and lets the score speak.
func (c *Controller) feedback(out Outcome) {
	switch c.state.Phase() {
	case PhasePractice:
		if out.Match {
			c.notice("success", fmt.Sprintf("Great! You showed %q correctly! (%.0f%%)", out.Letter, out.Confidence*100))
		} else {
			c.notice("info", fmt.Sprintf("Detected %q but target is %q", out.Letter, out.Target))
		}
	case PhaseMultiActive:
		if out.Match {
			c.notice("success", fmt.Sprintf("Correct! +%d points (%.0f%%)", out.Points, out.Confidence*100))
		} else {
			c.notice("info", fmt.Sprintf("Detected %q but target is %q", out.Letter, out.Target))
		}
	}
}

// PerformanceTier maps a final single-player score to its qualitative
// verdict.
func PerformanceTier(score int) string {
	switch {
	case score >= 50:
		return "Excellent performance!"
	case score >= 20:
		return "Good job!"
	default:
		return "Keep practicing!"
	}
}

func (c *Controller) frame() (capture.Frame, bool) {
	if c.src == nil {
		return nil, false
	}
	return c.src.Frame()
}

func (c *Controller) frameAvailable() bool {
	_, ok := c.frame()
	return ok
}

func (c *Controller) export(sess Session) {
	if c.exportFile == "" {
		return
	}
	if err := ExportSession(sess, c.exportFile); err != nil {
		log.Error().Err(err).Str("file", c.exportFile).Msg("failed to export session")
	}
}

// schedulePending arms a one-shot transition for later. Caller holds mu.
// The callback re-acquires the lock and runs only if no newer transition
// replaced or cancelled it in the meantime, so fn can trust the phase it
// re-checks.
func (c *Controller) schedulePending(d time.Duration, fn func()) {
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pendingGen++
	gen := c.pendingGen
	c.pending = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pendingGen != gen {
			return
		}
		fn()
	})
}

// cancelPending disarms the pending transition, including one that already
// fired and is waiting on the lock. Caller holds mu.
func (c *Controller) cancelPending() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.pendingGen++
}

func (c *Controller) stateChanged() {
	c.obsMu.Lock()
	obs := c.obs
	c.obsMu.Unlock()
	if obs != nil {
		obs.StateChanged()
	}
}

func (c *Controller) detection(out Outcome) {
	c.obsMu.Lock()
	obs := c.obs
	c.obsMu.Unlock()
	if obs != nil {
		obs.Detection(out)
	}
}

func (c *Controller) notice(kind, message string) {
	c.obsMu.Lock()
	obs := c.obs
	c.obsMu.Unlock()
	if obs != nil {
		obs.Notice(kind, message)
	}
}
