package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taimoss/geoguessr-ai-1/internal/browser"
)

// Phase is the automation state for one round.
type Phase string

const (
	PhaseWaitingForScene    Phase = "waiting_for_scene"
	PhaseCoordinatesPending Phase = "coordinates_pending"
	PhaseImageCaptured      Phase = "image_captured"
	PhaseGuessPlaced        Phase = "guess_placed"
	PhaseGuessSubmitted     Phase = "guess_submitted"
	PhaseResultPending      Phase = "result_pending"
	PhaseResultCaptured     Phase = "result_captured"
	PhaseTransitioning      Phase = "transitioning"
	PhaseIdle               Phase = "idle"
)

// Context is the per-tab automation state. One controller instance owns
// one Context; nothing here is shared across tabs. The state machine and
// the supervisor both read it, so the mutable parts sit behind a mutex.
type Context struct {
	Tab           *browser.Tab
	SessionID     string
	InstanceToken string
	RoundsPerGame int

	mu            sync.Mutex
	phase         Phase
	currentRound  int
	lastSceneAt   time.Time
	lastFrameHash uint64
	duplicateRun  int
	nullCoordRun  int
	reloadedStuck bool
}

// NewContext creates a fresh automation context for a tab. The session id
// combines the configured prefix with a random token so concurrently open
// tabs never collide.
func NewContext(tab *browser.Tab, sessionPrefix string, roundsPerGame int) *Context {
	token := uuid.NewString()
	return &Context{
		Tab:           tab,
		SessionID:     fmt.Sprintf("%s-%s", sessionPrefix, token[:8]),
		InstanceToken: token,
		RoundsPerGame: roundsPerGame,
		phase:         PhaseIdle,
		currentRound:  1,
		lastSceneAt:   time.Now(),
	}
}

// Phase returns the current automation phase.
func (c *Context) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Context) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// CurrentRound returns the 1-based round counter.
func (c *Context) CurrentRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRound
}

// RoundID names the current round within the session.
func (c *Context) RoundID() string {
	return fmt.Sprintf("round-%d", c.CurrentRound())
}

// AdvanceRound increments the round counter, wrapping back to 1 after the
// final round of a game. Returns true when the wrap happened, meaning the
// game just ended.
func (c *Context) AdvanceRound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentRound >= c.RoundsPerGame {
		c.currentRound = 1
		return true
	}
	c.currentRound++
	return false
}

// AdoptSession restores a persisted session identity and round counter,
// for auto-resume after a forced reload.
func (c *Context) AdoptSession(sessionID string, round int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = sessionID
	if round >= 1 && round <= c.RoundsPerGame {
		c.currentRound = round
	}
}

// ResetRounds puts the counter back to 1, for a forced game restart.
func (c *Context) ResetRounds() {
	c.mu.Lock()
	c.currentRound = 1
	c.mu.Unlock()
}

// MarkSceneChange records a confirmed scene change (new panorama or newly
// accepted frame) and re-arms the stuck-page detector.
func (c *Context) MarkSceneChange() {
	c.mu.Lock()
	c.lastSceneAt = time.Now()
	c.reloadedStuck = false
	c.mu.Unlock()
}

// SinceSceneChange reports how long the page has shown no scene change.
func (c *Context) SinceSceneChange() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastSceneAt)
}

// NoteFrame records a captured frame hash. Returns the length of the
// current duplicate run, zero when the frame differs from the previous one.
func (c *Context) NoteFrame(hash uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hash == c.lastFrameHash {
		c.duplicateRun++
		return c.duplicateRun
	}
	c.lastFrameHash = hash
	c.duplicateRun = 0
	return 0
}

// NoteCoordinateMissing records an automation cycle that finished with no
// coordinate at all. Returns the consecutive count.
func (c *Context) NoteCoordinateMissing() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nullCoordRun++
	return c.nullCoordRun
}

// NoteCoordinateSeen clears the null-coordinate run.
func (c *Context) NoteCoordinateSeen() {
	c.mu.Lock()
	c.nullCoordRun = 0
	c.mu.Unlock()
}

// TryMarkStuckReload arms the single-shot stuck reload. Returns false when
// this stuck episode already triggered one; the flag re-arms on the next
// scene change.
func (c *Context) TryMarkStuckReload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reloadedStuck {
		return false
	}
	c.reloadedStuck = true
	return true
}
