package wait

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zapp/internal/driver"
	"zapp/internal/locator"
	"zapp/internal/retry"
	"zapp/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return sleepContext(ctx, time.Millisecond)
}

func (r *sleepRecorder) first() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sleeps) == 0 {
		return 0
	}
	return r.sleeps[0]
}

func newEngine(t *testing.T, d *mock.Driver, smartwait time.Duration) *Engine {
	t.Helper()
	b := locator.NewBuilder()
	b.Add("test", map[string]string{
		"кнопка":   "#button",
		"меню":     "//nav",
		"элементы": ".item",
	})
	e := New(d, b.Build(), NewTiming(smartwait, 0), time.Second)
	e.PollInterval = 5 * time.Millisecond
	e.InvisibilityDelay = 5 * time.Millisecond
	e.Retry.Wait = time.Millisecond
	return e
}

func TestForElement_FindsVisibleElementByTarget(t *testing.T) {
	d := mock.NewDriver()
	btn := mock.NewElement("Войти")
	d.Put("#button", btn)
	e := newEngine(t, d, 100*time.Millisecond)

	el, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	require.NoError(t, err)
	assert.Same(t, btn, el)
}

func TestWait_InfersXPathFromLocator(t *testing.T) {
	d := mock.NewDriver()
	var seen []driver.By
	d.FindHook = func(by driver.By, value string) error {
		seen = append(seen, by)
		return nil
	}
	d.Put("//nav", mock.NewElement(""))
	d.Put("#button", mock.NewElement(""))
	e := newEngine(t, d, 100*time.Millisecond)

	require.NoError(t, e.For(context.Background(), Request{Target: "меню"}))
	require.NoError(t, e.For(context.Background(), Request{Locator: "#button"}))
	require.NoError(t, e.For(context.Background(), Request{Locator: "#button", Kind: locator.XPath}))

	assert.Equal(t, []driver.By{driver.ByXPath, driver.ByCSS, driver.ByXPath}, seen)
}

func TestWait_UnknownTarget(t *testing.T) {
	e := newEngine(t, mock.NewDriver(), 50*time.Millisecond)

	_, err := e.Wait(context.Background(), Request{Target: "нет такого"})
	var notFound *locator.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.ErrorIs(t, err, locator.ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestWait_NoLocator(t *testing.T) {
	e := newEngine(t, mock.NewDriver(), 50*time.Millisecond)
	_, err := e.Wait(context.Background(), Request{Condition: Presence})
	assert.ErrorIs(t, err, ErrNoLocator)
}

func TestWait_ElementAppearsDuringPolling(t *testing.T) {
	d := mock.NewDriver()
	btn := mock.NewElement("")
	btn.SetDisplayed(false)
	d.Put("#button", btn)
	e := newEngine(t, d, time.Second)

	go func() {
		time.Sleep(30 * time.Millisecond)
		btn.SetDisplayed(true)
	}()

	el, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	require.NoError(t, err)
	assert.Same(t, btn, el)
	assert.Greater(t, d.FindCalls(), 1)
}

func TestWait_TimeoutWithTargetIsElementNotFound(t *testing.T) {
	e := newEngine(t, mock.NewDriver(), 30*time.Millisecond)

	_, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	var notFound *ElementNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "кнопка", notFound.Target)
	assert.Equal(t, "#button", notFound.Locator)
	assert.True(t, IsNotFound(err))
}

func TestWait_TimeoutWithoutTargetIsTimeoutError(t *testing.T) {
	e := newEngine(t, mock.NewDriver(), 30*time.Millisecond)

	_, err := e.ForElement(context.Background(), Request{Locator: "#missing"})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "#missing", timeout.Locator)
	assert.Equal(t, 30*time.Millisecond, timeout.Timeout)

	err = e.For(context.Background(), Request{
		Condition: Custom(func(driver.Driver) (bool, error) { return false, nil }),
	})
	require.ErrorAs(t, err, &timeout)
	assert.Contains(t, err.Error(), "custom")
}

func TestWait_InvisibilityTimeoutIsNotAnError(t *testing.T) {
	d := mock.NewDriver()
	d.Put("#button", mock.NewElement("всегда видна"))
	e := newEngine(t, d, 30*time.Millisecond)

	res, err := e.Wait(context.Background(), Request{Target: "кнопка", Condition: Invisibility})
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = e.Wait(context.Background(), Request{Target: "кнопка", Condition: Visibility, Negate: true})
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestWait_InvisibilityHoldsForAbsentOrHiddenElement(t *testing.T) {
	d := mock.NewDriver()
	hidden := mock.NewElement("")
	hidden.SetDisplayed(false)
	d.Put("#button", hidden)
	e := newEngine(t, d, time.Second)

	res, err := e.Wait(context.Background(), Request{Target: "кнопка", Condition: Invisibility})
	require.NoError(t, err)
	assert.True(t, res.Found)

	res, err = e.Wait(context.Background(), Request{Target: "меню", Condition: Invisibility})
	require.NoError(t, err)
	assert.True(t, res.Found)

	res, err = e.Wait(context.Background(), Request{Target: "меню", Condition: Visibility, Negate: true})
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestWait_SettleDelay(t *testing.T) {
	tests := []struct {
		name      string
		force     time.Duration
		condition Condition
		negate    bool
		want      time.Duration
	}{
		{name: "invisibility sleeps the invisibility delay", condition: Invisibility, want: DefaultInvisibilityDelay},
		{name: "negated visibility counts as invisibility", condition: Visibility, negate: true, want: DefaultInvisibilityDelay},
		{name: "small force delay does not add up", force: 200 * time.Millisecond, condition: Invisibility, want: DefaultInvisibilityDelay},
		{name: "large force delay substitutes", force: 2 * time.Second, condition: Invisibility, want: 2 * time.Second},
		{name: "regular wait sleeps the force delay", force: 300 * time.Millisecond, condition: Visibility, want: 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mock.NewDriver()
			hidden := mock.NewElement("")
			hidden.SetDisplayed(tt.condition.kind == visibility && !tt.negate)
			d.Put("#button", hidden)

			rec := &sleepRecorder{}
			e := New(d, nil, NewTiming(time.Second, tt.force), time.Second)
			e.sleep = rec.sleep

			_, err := e.Wait(context.Background(), Request{Locator: "#button", Condition: tt.condition, Negate: tt.negate})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.first())
		})
	}
}

func TestWait_RegularWaitWithoutForceDelayDoesNotSleep(t *testing.T) {
	d := mock.NewDriver()
	d.Put("#button", mock.NewElement(""))
	rec := &sleepRecorder{}
	e := New(d, nil, NewTiming(time.Second, 0), time.Second)
	e.sleep = rec.sleep

	require.NoError(t, e.For(context.Background(), Request{Locator: "#button"}))
	assert.Empty(t, rec.sleeps)
}

func TestWait_RetriesTransientErrors(t *testing.T) {
	d := mock.NewDriver()
	d.Put("#button", mock.NewElement(""))
	var calls int
	d.FindHook = func(driver.By, string) error {
		calls++
		if calls <= 2 {
			return &driver.Error{Kind: driver.StaleElement}
		}
		return nil
	}
	e := newEngine(t, d, 100*time.Millisecond)

	el, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	require.NoError(t, err)
	assert.NotNil(t, el)
	assert.Equal(t, 3, calls)
}

func TestWait_RetryBudgetIsNeverExceeded(t *testing.T) {
	d := mock.NewDriver()
	d.FindHook = func(driver.By, string) error {
		return &driver.Error{Kind: driver.ClickIntercepted, Message: "other element would receive the click"}
	}
	budget := 150 * time.Millisecond
	e := newEngine(t, d, time.Second)
	e.Retry = retry.Transient(budget)
	e.Retry.Wait = 10 * time.Millisecond

	start := time.Now()
	_, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, driver.Transient(err))
	assert.Greater(t, d.FindCalls(), 2)
	assert.LessOrEqual(t, elapsed, budget+100*time.Millisecond)
}

func TestWait_NonTransientErrorPropagatesImmediately(t *testing.T) {
	d := mock.NewDriver()
	boom := errors.New("session deleted")
	d.FindHook = func(driver.By, string) error { return boom }
	e := newEngine(t, d, time.Second)

	_, err := e.ForElement(context.Background(), Request{Target: "кнопка"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, d.FindCalls())
}

func TestForElements_RequiresAllVisible(t *testing.T) {
	d := mock.NewDriver()
	first := mock.NewElement("1")
	second := mock.NewElement("2")
	second.SetDisplayed(false)
	d.Put(".item", first, second)
	e := newEngine(t, d, 30*time.Millisecond)

	_, err := e.ForElements(context.Background(), Request{Target: "элементы"})
	var notFound *ElementNotFoundError
	require.ErrorAs(t, err, &notFound)

	second.SetDisplayed(true)
	els, err := e.ForElements(context.Background(), Request{Target: "элементы"})
	require.NoError(t, err)
	assert.Len(t, els, 2)
}

func TestWait_Clickable(t *testing.T) {
	d := mock.NewDriver()
	btn := mock.NewElement("")
	btn.SetEnabled(false)
	d.Put("#button", btn)
	e := newEngine(t, d, 30*time.Millisecond)

	err := e.For(context.Background(), Request{Target: "кнопка", Condition: Clickable})
	require.Error(t, err)

	btn.SetEnabled(true)
	require.NoError(t, e.For(context.Background(), Request{Target: "кнопка", Condition: Clickable}))
}

func TestWait_TimeoutOverride(t *testing.T) {
	e := newEngine(t, mock.NewDriver(), time.Hour)

	_, err := e.Wait(context.Background(), Request{Locator: "#missing", Timeout: 20 * time.Millisecond})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
}

func TestTiming_OverrideAndRestore(t *testing.T) {
	timing := NewTiming(7*time.Second, 0)

	timing.SetSmartwait(30 * time.Second)
	timing.SetForceDelay(2 * time.Second)
	assert.Equal(t, 30*time.Second, timing.Smartwait())
	assert.Equal(t, 2*time.Second, timing.ForceDelay())

	timing.RestoreSmartwait()
	timing.RestoreForceDelay()
	assert.Equal(t, 7*time.Second, timing.Smartwait())
	assert.Equal(t, time.Duration(0), timing.ForceDelay())
}
