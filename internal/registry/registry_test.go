package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/jobwatch/internal/scan"
	"github.com/kalambet/jobwatch/internal/sites"
)

type memStore struct {
	mu      sync.Mutex
	entries []sites.Entry
	saves   int
}

func (m *memStore) Load(context.Context) []sites.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sites.Entry(nil), m.entries...)
}

func (m *memStore) Save(_ context.Context, entries []sites.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]sites.Entry(nil), entries...)
	m.saves++
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeScanner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	hook  func(name string)

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeScanner) Scan(_ context.Context, name, url, _ string) (sites.ScanResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, name)
	hook := f.hook
	fail := f.fail[name]
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	time.Sleep(2 * time.Millisecond)

	if fail {
		return sites.ScanResult{}, &scan.ScanError{Provider: "fake", Err: errors.New("boom")}
	}
	return sites.ScanResult{
		Text:    "openings at " + name,
		Sources: []sites.Source{{Title: name, URI: url}},
	}, nil
}

func (f *fakeScanner) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, sc scan.Scanner) (*Registry, *memStore) {
	t.Helper()
	store := &memStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(context.Background(), sc, store, WithClock(fixedClock{testNow}), WithLogger(logger)), store
}

func addSites(t *testing.T, r *Registry, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, n := range names {
		e, err := r.Add(context.Background(), n, n+".test", "")
		require.NoError(t, err)
		ids[i] = e.ID
	}
	return ids
}

func names(entries []sites.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestAdd(t *testing.T) {
	r, store := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()

	e, err := r.Add(ctx, "  Acme ", "example.com/jobs", " go, remote ")
	require.NoError(t, err)
	assert.Equal(t, "Acme", e.Name)
	assert.Equal(t, "https://example.com/jobs", e.URL)
	assert.Equal(t, "go, remote", e.Keywords)
	assert.Equal(t, sites.StatusIdle, e.Status)
	assert.Nil(t, e.LastChecked)
	assert.False(t, e.HasResult())

	e2, err := r.Add(ctx, "Plain", "http://example.com/jobs", "")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/jobs", e2.URL, "URL with scheme is stored unchanged")

	_, err = r.Add(ctx, "Dup", "https://example.com/jobs", "")
	require.NoError(t, err, "duplicate URLs are allowed")

	assert.Len(t, r.List(), 3)
	assert.Equal(t, 3, store.saveCount())
	assert.Len(t, store.Load(ctx), 3)
}

func TestAdd_Validation(t *testing.T) {
	r, store := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()

	_, err := r.Add(ctx, " ", "example.com", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = r.Add(ctx, "Acme", "  ", "")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, r.List())
	assert.Zero(t, store.saveCount())
}

func TestDelete_Idempotent(t *testing.T) {
	r, store := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A", "B")

	assert.True(t, r.Delete(ctx, ids[0]))
	saves := store.saveCount()
	assert.False(t, r.Delete(ctx, ids[0]))
	assert.Len(t, r.List(), 1)
	assert.Equal(t, saves, store.saveCount(), "no-op delete does not save")
}

func TestRename(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A")

	assert.True(t, r.Rename(ctx, ids[0], "  Acme Corp "))
	e, _ := r.Get(ids[0])
	assert.Equal(t, "Acme Corp", e.Name)

	assert.False(t, r.Rename(ctx, ids[0], "   "))
	e, _ = r.Get(ids[0])
	assert.Equal(t, "Acme Corp", e.Name)

	assert.False(t, r.Rename(ctx, "missing", "X"))
}

func TestMove_Boundaries(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A", "B", "C")

	assert.False(t, r.Move(ctx, ids[0], Left))
	assert.False(t, r.Move(ctx, ids[2], Right))
	assert.False(t, r.MoveIndex(ctx, 5, Left))
	assert.Equal(t, []string{"A", "B", "C"}, names(r.List()))
}

func TestMove_RightThenLeftRestores(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	addSites(t, r, "A", "B", "C", "D")
	orig := names(r.List())

	for i := 0; i < len(orig)-1; i++ {
		require.True(t, r.MoveIndex(ctx, i, Right))
		require.True(t, r.MoveIndex(ctx, i+1, Left))
		assert.Equal(t, orig, names(r.List()), "index %d", i)
	}

	require.True(t, r.MoveIndex(ctx, 1, Right))
	assert.Equal(t, []string{"A", "C", "B", "D"}, names(r.List()))
}

func TestMoveTo(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A", "B", "C", "D")

	assert.True(t, r.MoveTo(ctx, ids[0], 2))
	assert.Equal(t, []string{"B", "C", "A", "D"}, names(r.List()))

	assert.True(t, r.MoveTo(ctx, ids[3], -10))
	assert.Equal(t, []string{"D", "B", "C", "A"}, names(r.List()))

	assert.False(t, r.MoveTo(ctx, ids[0], 99), "already last")
	assert.False(t, r.MoveTo(ctx, "missing", 0))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Left")
	require.NoError(t, err)
	assert.Equal(t, Left, d)
	d, err = ParseDirection("down")
	require.NoError(t, err)
	assert.Equal(t, Right, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestScanOne_Success(t *testing.T) {
	r, store := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A")

	res, err := r.ScanOne(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "openings at A", res.Text)

	e, _ := r.Get(ids[0])
	assert.Equal(t, sites.StatusSuccess, e.Status)
	require.NotNil(t, e.LastChecked)
	assert.True(t, e.LastChecked.Equal(testNow))

	stored, err := r.Result(ids[0])
	require.NoError(t, err)
	assert.Equal(t, res, stored)

	persisted := store.Load(ctx)
	require.Len(t, persisted, 1)
	assert.Equal(t, sites.StatusSuccess, persisted[0].Status)
}

func TestScanOne_FailureKeepsPrior(t *testing.T) {
	sc := &fakeScanner{fail: map[string]bool{}}
	r, _ := newTestRegistry(t, sc)
	ctx := context.Background()
	ids := addSites(t, r, "A", "B")

	// Never scanned before: stays without result.
	sc.fail["B"] = true
	_, err := r.ScanOne(ctx, ids[1])
	var se *scan.ScanError
	require.ErrorAs(t, err, &se)
	b, _ := r.Get(ids[1])
	assert.Equal(t, sites.StatusFailed, b.Status)
	assert.Nil(t, b.LastChecked)
	assert.False(t, b.HasResult())

	// Previously scanned: prior values retained.
	_, err = r.ScanOne(ctx, ids[0])
	require.NoError(t, err)
	before, _ := r.Get(ids[0])

	sc.mu.Lock()
	sc.fail["A"] = true
	sc.mu.Unlock()
	_, err = r.ScanOne(ctx, ids[0])
	require.Error(t, err)

	after, _ := r.Get(ids[0])
	assert.Equal(t, sites.StatusFailed, after.Status)
	assert.Equal(t, before.LastChecked, after.LastChecked)
	assert.Equal(t, before.LastResult, after.LastResult)
}

func TestScanOne_NotFound(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	_, err := r.ScanOne(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanOne_DeletedDuringScan(t *testing.T) {
	sc := &fakeScanner{}
	r, store := newTestRegistry(t, sc)
	ctx := context.Background()
	ids := addSites(t, r, "A", "B")
	sc.hook = func(name string) {
		if name == "A" {
			r.Delete(ctx, ids[0])
		}
	}

	_, err := r.ScanOne(ctx, ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"B"}, names(r.List()))
	assert.Equal(t, []string{"B"}, names(store.Load(ctx)))
}

func TestScanAll_SequentialInOrder(t *testing.T) {
	sc := &fakeScanner{fail: map[string]bool{"B": true}}
	r, _ := newTestRegistry(t, sc)
	addSites(t, r, "A", "B", "C", "D")

	sum, err := r.ScanAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C", "D"}, sc.callNames(), "one scan per entry, in display order")
	assert.EqualValues(t, 1, sc.maxActive.Load(), "scans never overlap")
	assert.Equal(t, Summary{Scanned: 4, Succeeded: 3, Failed: 1}, sum)
	assert.False(t, r.BulkScanning())

	for _, e := range r.List() {
		assert.True(t, e.Status.Terminal(), "%s is %s", e.Name, e.Status)
	}
}

func TestScanAll_TransitionOrder(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ids := addSites(t, r, "A", "B")
	events, cancel := r.Subscribe()
	defer cancel()

	_, err := r.ScanAll(context.Background())
	require.NoError(t, err)

	type step struct {
		id string
		st sites.Status
	}
	var got []step
	var bulk []EventKind
	for len(bulk) < 2 {
		ev := <-events
		switch ev.Kind {
		case EventChanged:
			got = append(got, step{ev.ID, ev.Status})
		case EventBulkStarted, EventBulkFinished:
			bulk = append(bulk, ev.Kind)
		}
	}

	want := []step{
		{ids[0], sites.StatusScanning},
		{ids[0], sites.StatusSuccess},
		{ids[1], sites.StatusScanning},
		{ids[1], sites.StatusSuccess},
	}
	assert.Equal(t, want, got, "A reaches a terminal status before B starts")
	assert.Equal(t, []EventKind{EventBulkStarted, EventBulkFinished}, bulk)
	assert.False(t, r.BulkScanning())
}

func TestScanAll_RejectsReentry(t *testing.T) {
	sc := &fakeScanner{}
	r, _ := newTestRegistry(t, sc)
	addSites(t, r, "A", "B")

	var inner error
	var sawFlag bool
	sc.hook = func(name string) {
		if name == "A" {
			sawFlag = r.BulkScanning()
			_, inner = r.ScanAll(context.Background())
		}
	}

	_, err := r.ScanAll(context.Background())
	require.NoError(t, err)
	assert.True(t, sawFlag)
	assert.ErrorIs(t, inner, ErrBulkScanInProgress)
	assert.False(t, r.BulkScanning())
}

func TestScanAll_ManualScanDoesNotOverlap(t *testing.T) {
	sc := &fakeScanner{}
	r, _ := newTestRegistry(t, sc)
	ids := addSites(t, r, "A", "B", "C")

	var wg sync.WaitGroup
	var once sync.Once
	sc.hook = func(name string) {
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.ScanOne(context.Background(), ids[2])
			}()
			time.Sleep(5 * time.Millisecond)
		})
	}

	_, err := r.ScanAll(context.Background())
	require.NoError(t, err)
	wg.Wait()

	assert.EqualValues(t, 1, sc.maxActive.Load())
	assert.Len(t, sc.callNames(), 4)
}

func TestScanAll_SkipsDeleted(t *testing.T) {
	sc := &fakeScanner{}
	r, _ := newTestRegistry(t, sc)
	ids := addSites(t, r, "A", "B", "C")
	sc.hook = func(name string) {
		if name == "A" {
			r.Delete(context.Background(), ids[1])
		}
	}

	sum, err := r.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, sc.callNames())
	assert.Equal(t, Summary{Scanned: 2, Succeeded: 2, Skipped: 1}, sum)
}

func TestScanAll_CancelStopsBeforeNext(t *testing.T) {
	sc := &fakeScanner{}
	r, _ := newTestRegistry(t, sc)
	ids := addSites(t, r, "A", "B")

	ctx, cancel := context.WithCancel(context.Background())
	sc.hook = func(string) { cancel() }

	sum, err := r.ScanAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, []string{"A"}, sc.callNames())

	a, _ := r.Get(ids[0])
	assert.Equal(t, sites.StatusSuccess, a.Status, "in-flight call completes")
	b, _ := r.Get(ids[1])
	assert.Equal(t, sites.StatusIdle, b.Status)
	assert.False(t, r.BulkScanning())
}

func TestResult_Errors(t *testing.T) {
	store := &memStore{entries: []sites.Entry{
		{ID: "fresh", Name: "F", URL: "https://f.test", Status: sites.StatusIdle},
		{ID: "broken", Name: "B", URL: "https://b.test", Status: sites.StatusSuccess, LastResult: "{oops"},
	}}
	r := New(context.Background(), &fakeScanner{}, store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := r.Result("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Result("fresh")
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = r.Result("broken")
	assert.ErrorIs(t, err, ErrResultUnreadable)
}

func TestNew_LoadsSavedState(t *testing.T) {
	first, store := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, first, "A", "B")
	_, err := first.ScanOne(ctx, ids[1])
	require.NoError(t, err)

	second := New(ctx, &fakeScanner{}, store)
	assert.Equal(t, first.List(), second.List())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	events, cancel := r.Subscribe()

	addSites(t, r, "A")
	ev := <-events
	assert.Equal(t, EventAdded, ev.Kind)

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok, "channel closed after unsubscribe")

	addSites(t, r, "B") // must not panic or block
}

func TestStartScanAll_ClaimsFlagBeforeRun(t *testing.T) {
	sc := &fakeScanner{}
	r, _ := newTestRegistry(t, sc)
	addSites(t, r, "A", "B")

	run, err := r.StartScanAll()
	require.NoError(t, err)
	assert.True(t, r.BulkScanning(), "flag is set before any scan runs")
	assert.Empty(t, sc.callNames())

	_, err = r.StartScanAll()
	assert.ErrorIs(t, err, ErrBulkScanInProgress)
	_, err = r.ScanAll(context.Background())
	assert.ErrorIs(t, err, ErrBulkScanInProgress)

	sum, err := run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Succeeded: 2}, sum)
	assert.False(t, r.BulkScanning())
}

// Only the addressed site moves, however the list shifts around it.
func TestMove_ConcurrentMutationsKeepOthersInOrder(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeScanner{})
	ctx := context.Background()
	ids := addSites(t, r, "A", "B", "T")
	target := ids[2]

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			e, err := r.Add(ctx, "tmp", "tmp.test", "")
			if err != nil {
				t.Error(err)
				return
			}
			r.MoveTo(ctx, e.ID, 0)
			r.Delete(ctx, e.ID)
		}
	}()

	for i := 0; i < 500; i++ {
		r.Move(ctx, target, Left)
		r.Move(ctx, target, Right)
	}
	close(stop)
	wg.Wait()

	var fixed []string
	for _, e := range r.List() {
		if e.Name == "A" || e.Name == "B" {
			fixed = append(fixed, e.Name)
		}
	}
	assert.Equal(t, []string{"A", "B"}, fixed)
	assert.Len(t, r.List(), 3)
}
