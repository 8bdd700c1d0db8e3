package timers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/presets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func timer(status models.TimerStatus, current, initial int) models.Timer {
	return models.Timer{ID: "t1", Label: "x", InitialSeconds: initial, CurrentSeconds: current, Status: status}
}

func TestNew(t *testing.T) {
	tm, err := New("Break", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, tm.ID)
	assert.Equal(t, "Break", tm.Label)
	assert.Equal(t, 5, tm.InitialSeconds)
	assert.Equal(t, 5, tm.CurrentSeconds)
	assert.Equal(t, models.TimerStatusIdle, tm.Status)

	for _, d := range []int{0, -1} {
		_, err := New("bad", d)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
}

func TestAdd_Capacity(t *testing.T) {
	var c []models.Timer
	var err error
	for i := 0; i < models.MaxTimers; i++ {
		c, err = Add(c, fmt.Sprintf("t%d", i), 10)
		require.NoError(t, err)
	}
	require.Len(t, c, models.MaxTimers)

	next, err := Add(c, "overflow", 10)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, c, next)
}

func TestAdd_InvalidDurationIsNoOp(t *testing.T) {
	c, err := Add(nil, "a", 3)
	require.NoError(t, err)

	next, err := Add(c, "b", 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, c, next)
}

func TestAdd_IDsUnique(t *testing.T) {
	c, _ := Add(nil, "a", 3)
	c, _ = Add(c, "a", 3)
	assert.NotEqual(t, c[0].ID, c[1].ID)
}

func TestTick(t *testing.T) {
	t.Run("running decrements by one", func(t *testing.T) {
		for n := 2; n <= 10; n++ {
			got := Tick(timer(models.TimerStatusRunning, n, 10))
			assert.Equal(t, n-1, got.CurrentSeconds)
			assert.Equal(t, models.TimerStatusRunning, got.Status)
		}
	})

	t.Run("last second finishes", func(t *testing.T) {
		got := Tick(timer(models.TimerStatusRunning, 1, 10))
		assert.Equal(t, 0, got.CurrentSeconds)
		assert.Equal(t, models.TimerStatusFinished, got.Status)
		assert.Equal(t, got, Tick(got))
	})

	t.Run("non running is identity", func(t *testing.T) {
		for _, s := range []models.TimerStatus{models.TimerStatusIdle, models.TimerStatusPaused, models.TimerStatusFinished} {
			in := timer(s, 4, 10)
			assert.Equal(t, in, Tick(in))
		}
	})
}

func TestToggle(t *testing.T) {
	idle := timer(models.TimerStatusIdle, 5, 5)
	once := Toggle(idle)
	assert.Equal(t, models.TimerStatusRunning, once.Status)
	twice := Toggle(once)
	assert.Equal(t, models.TimerStatusPaused, twice.Status)
	assert.Equal(t, models.TimerStatusRunning, Toggle(twice).Status)

	finished := timer(models.TimerStatusFinished, 0, 5)
	assert.Equal(t, finished, Toggle(finished))
}

func TestReset(t *testing.T) {
	for _, s := range []models.TimerStatus{models.TimerStatusIdle, models.TimerStatusRunning, models.TimerStatusPaused, models.TimerStatusFinished} {
		once := Reset(timer(s, 2, 9))
		assert.Equal(t, timer(models.TimerStatusIdle, 9, 9), once)
		assert.Equal(t, once, Reset(once))
	}
}

func TestDelete(t *testing.T) {
	c := []models.Timer{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	next := Delete(c, "b")
	assert.Equal(t, []models.Timer{{ID: "a"}, {ID: "c"}}, next)
	assert.Len(t, c, 3)

	assert.Equal(t, c, Delete(c, "missing"))
}

func TestUpdate(t *testing.T) {
	c := []models.Timer{timer(models.TimerStatusIdle, 5, 5)}
	next, found := Update(c, "t1", Toggle)
	assert.True(t, found)
	assert.Equal(t, models.TimerStatusRunning, next[0].Status)
	assert.Equal(t, models.TimerStatusIdle, c[0].Status)

	_, found = Update(c, "nope", Toggle)
	assert.False(t, found)
}

func TestApplyGlobal(t *testing.T) {
	c := []models.Timer{
		{ID: "idle", InitialSeconds: 5, CurrentSeconds: 5, Status: models.TimerStatusIdle},
		{ID: "running", InitialSeconds: 5, CurrentSeconds: 3, Status: models.TimerStatusRunning},
		{ID: "paused", InitialSeconds: 5, CurrentSeconds: 2, Status: models.TimerStatusPaused},
		{ID: "finished", InitialSeconds: 5, CurrentSeconds: 0, Status: models.TimerStatusFinished},
	}

	started := ApplyGlobal(c, GlobalStart)
	assert.Equal(t, []models.TimerStatus{
		models.TimerStatusRunning, models.TimerStatusRunning, models.TimerStatusRunning, models.TimerStatusFinished,
	}, statuses(started))

	paused := ApplyGlobal(c, GlobalPause)
	assert.Equal(t, []models.TimerStatus{
		models.TimerStatusIdle, models.TimerStatusPaused, models.TimerStatusPaused, models.TimerStatusFinished,
	}, statuses(paused))

	reset := ApplyGlobal(c, GlobalReset)
	for _, tm := range reset {
		assert.Equal(t, models.TimerStatusIdle, tm.Status)
		assert.Equal(t, tm.InitialSeconds, tm.CurrentSeconds)
	}
}

func TestParseGlobalAction(t *testing.T) {
	a, err := ParseGlobalAction(" pause ")
	require.NoError(t, err)
	assert.Equal(t, GlobalPause, a)

	_, err = ParseGlobalAction("STOP")
	assert.Error(t, err)
}

func TestBreakScenario(t *testing.T) {
	c, err := Add(nil, "Break", 5)
	require.NoError(t, err)
	assert.Equal(t, models.TimerStatusIdle, c[0].Status)
	assert.Equal(t, 5, c[0].CurrentSeconds)

	id := c[0].ID
	c, _ = Update(c, id, Toggle)
	assert.Equal(t, models.TimerStatusRunning, c[0].Status)

	var seen []int
	for i := 0; i < 5; i++ {
		c = TickAll(c)
		seen = append(seen, c[0].CurrentSeconds)
		if i < 4 {
			assert.Equal(t, models.TimerStatusRunning, c[0].Status)
		}
	}
	assert.Equal(t, []int{4, 3, 2, 1, 0}, seen)
	assert.Equal(t, models.TimerStatusFinished, c[0].Status)

	c, _ = Update(c, id, Toggle)
	assert.Equal(t, models.TimerStatusFinished, c[0].Status)

	c, _ = Update(c, id, Reset)
	assert.Equal(t, 5, c[0].CurrentSeconds)
	assert.Equal(t, models.TimerStatusIdle, c[0].Status)
}

func TestFromPresets_Truncates(t *testing.T) {
	ps := make([]presets.Preset, 8)
	for i := range ps {
		ps[i] = presets.Preset{Label: fmt.Sprintf("p%d", i), DurationSeconds: 60 * (i + 1)}
	}

	got := FromPresets(ps)
	require.Len(t, got, models.MaxTimers)
	for i, tm := range got {
		assert.Equal(t, ps[i].Label, tm.Label)
		assert.Equal(t, ps[i].DurationSeconds, tm.InitialSeconds)
		assert.Equal(t, models.TimerStatusIdle, tm.Status)
	}
}

func statuses(c []models.Timer) []models.TimerStatus {
	out := make([]models.TimerStatus, len(c))
	for i, t := range c {
		out[i] = t.Status
	}
	return out
}
