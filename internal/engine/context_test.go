package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextIdentity(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)
	assert.True(t, strings.HasPrefix(ac.SessionID, "geoai-"))
	assert.NotEmpty(t, ac.InstanceToken)
	assert.Equal(t, 1, ac.CurrentRound())
	assert.Equal(t, PhaseIdle, ac.Phase())

	other := NewContext(nil, "geoai", 5)
	assert.NotEqual(t, ac.SessionID, other.SessionID)
}

func TestAdvanceRoundWraps(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)

	for want := 2; want <= 5; want++ {
		gameOver := ac.AdvanceRound()
		assert.False(t, gameOver, "round %d should not end the game", want)
		assert.Equal(t, want, ac.CurrentRound())
	}

	require.True(t, ac.AdvanceRound())
	assert.Equal(t, 1, ac.CurrentRound())
}

func TestRoundIDTracksCounter(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)
	assert.Equal(t, "round-1", ac.RoundID())
	ac.AdvanceRound()
	assert.Equal(t, "round-2", ac.RoundID())
}

func TestAdoptSessionBounds(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)

	ac.AdoptSession("geoai-restored", 4)
	assert.Equal(t, "geoai-restored", ac.SessionID)
	assert.Equal(t, 4, ac.CurrentRound())

	// Out-of-range rounds keep the current counter.
	ac.AdoptSession("geoai-restored", 0)
	assert.Equal(t, 4, ac.CurrentRound())
	ac.AdoptSession("geoai-restored", 6)
	assert.Equal(t, 4, ac.CurrentRound())
}

func TestResetRounds(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)
	ac.AdvanceRound()
	ac.AdvanceRound()
	ac.ResetRounds()
	assert.Equal(t, 1, ac.CurrentRound())
}

func TestNoteFrameDuplicateRun(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)

	assert.Equal(t, 0, ac.NoteFrame(101))
	assert.Equal(t, 1, ac.NoteFrame(101))
	assert.Equal(t, 2, ac.NoteFrame(101))

	// A fresh frame resets the run.
	assert.Equal(t, 0, ac.NoteFrame(202))
	assert.Equal(t, 1, ac.NoteFrame(202))
}

func TestNoteCoordinateRun(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)

	assert.Equal(t, 1, ac.NoteCoordinateMissing())
	assert.Equal(t, 2, ac.NoteCoordinateMissing())
	ac.NoteCoordinateSeen()
	assert.Equal(t, 1, ac.NoteCoordinateMissing())
}

func TestStuckReloadSingleShot(t *testing.T) {
	ac := NewContext(nil, "geoai", 5)

	assert.True(t, ac.TryMarkStuckReload())
	assert.False(t, ac.TryMarkStuckReload(), "second reload in the same episode must be refused")

	ac.MarkSceneChange()
	assert.True(t, ac.TryMarkStuckReload(), "scene change re-arms the reload")
}
