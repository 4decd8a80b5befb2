package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/queue"
	"github.com/JakeFAU/vendor-menu-cache/internal/scraper"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage"
	"github.com/JakeFAU/vendor-menu-cache/internal/storage/memory"
)

type fakeScraper struct {
	mu         sync.Mutex
	mealCalls  int
	meta       menu.VendorMetadata
	metaErr    error
	metaCalls  []string
	records    []menu.MealRecord
	err        error
	blockUntil bool
	// gate, when set, holds ScrapeMeals until closed; started is closed on
	// the first gated call.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeScraper) ScrapeMeals(ctx context.Context, _ int64, _ string) ([]menu.MealRecord, error) {
	f.mu.Lock()
	f.mealCalls++
	records, err, block, gate := f.records, f.err, f.blockUntil, f.gate
	if gate != nil && f.mealCalls == 1 {
		close(f.started)
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if block {
		<-ctx.Done()
		return nil, &scraper.Error{Kind: scraper.KindInvocation, Err: ctx.Err()}
	}
	return records, err
}

func (f *fakeScraper) ScrapeVendor(_ context.Context, url string) (menu.VendorMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls = append(f.metaCalls, url)
	return f.meta, f.metaErr
}

func (f *fakeScraper) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mealCalls
}

type fakeProber struct {
	codes map[string]int
	err   error
}

func (f fakeProber) Probe(_ context.Context, url string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if code, ok := f.codes[url]; ok {
		return code, nil
	}
	return 200, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 2, 25, 14, 28, 2, 0, time.UTC)

type harness struct {
	coord    *Coordinator
	store    *memory.Store
	scraper  *fakeScraper
	enqueuer *queue.MockEnqueuer
}

func newHarness(t *testing.T, cfg Config, prober menu.Prober) *harness {
	t.Helper()
	store := memory.New()
	scr := &fakeScraper{}
	enq := &queue.MockEnqueuer{}
	if prober == nil {
		prober = fakeProber{}
	}
	return &harness{
		coord:    New(store, scr, prober, enq, fixedClock{now: testNow}, cfg, zap.NewNop()),
		store:    store,
		scraper:  scr,
		enqueuer: enq,
	}
}

func (h *harness) vendor(t *testing.T, name string) menu.Vendor {
	t.Helper()
	v, err := h.store.CreateVendor(context.Background(),
		menu.VendorInput{Name: name, MenuURL: "https://" + name + ".example/menu"}.Vendor(menu.StatusReachable, testNow))
	require.NoError(t, err)
	return v
}

func mealRecords(pairs ...string) []menu.MealRecord {
	out := make([]menu.MealRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, menu.MealRecord{Name: menu.Some(pairs[i]), Price: menu.Some(pairs[i+1])})
	}
	return out
}

func names(meals []menu.Meal) []string {
	out := make([]string, 0, len(meals))
	for _, m := range meals {
		out = append(out, m.Name)
	}
	return out
}

func TestGetMealsCacheHitNeverScrapesOrEnqueues(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	_, err := h.store.InsertMeals(context.Background(), v.ID, []menu.Meal{{Name: "Bowl"}})
	require.NoError(t, err)

	res, err := h.coord.GetMeals(context.Background(), v.ID)
	require.NoError(t, err)
	require.False(t, res.Pending)
	require.Equal(t, []string{"Bowl"}, names(res.Meals))
	require.Zero(t, h.scraper.calls())
	h.enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGetMealsMissEnqueuesExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.enqueuer.On("Enqueue", mock.Anything, menu.ScrapeJob{VendorID: v.ID, MenuURL: v.MenuURL}).
		Return(nil).Once()

	res, err := h.coord.GetMeals(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Empty(t, res.Meals)
	require.Zero(t, h.scraper.calls())
	h.enqueuer.AssertNumberOfCalls(t, "Enqueue", 1)
	h.enqueuer.AssertExpectations(t)
}

func TestGetMealsAlreadyQueuedIsPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.enqueuer.On("Enqueue", mock.Anything, mock.Anything).Return(menu.ErrAlreadyQueued)

	res, err := h.coord.GetMeals(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, res.Pending)
}

func TestGetMealsQueueFullIsError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.enqueuer.On("Enqueue", mock.Anything, mock.Anything).Return(menu.ErrQueueFull)

	_, err := h.coord.GetMeals(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrQueueFull)
}

func TestGetMealsUnknownVendor(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	_, err := h.coord.GetMeals(context.Background(), 404)
	require.ErrorIs(t, err, menu.ErrNotFound)
	h.enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGetMealsStoreFailure(t *testing.T) {
	t.Parallel()

	store := &storage.MockStore{}
	store.On("GetVendor", mock.Anything, int64(1)).Return(menu.Vendor{ID: 1}, nil)
	store.On("ListMealsByVendor", mock.Anything, int64(1)).Return(nil, errors.New("connection refused"))
	coord := New(store, &fakeScraper{}, nil, &queue.MockEnqueuer{}, nil, Config{}, nil)

	_, err := coord.GetMeals(context.Background(), 1)
	require.ErrorContains(t, err, "connection refused")
	store.AssertExpectations(t)
}

func TestGetMenuMissScrapesOnceThenServesCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.records = mealRecords("Bowl", "10", "Bowl", "11", "Wrap", "8")

	meals, err := h.coord.GetMenu(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Bowl", "Wrap"}, names(meals))
	require.Equal(t, "10", meals[0].Price, "first write wins within a batch")
	require.Equal(t, 1, h.scraper.calls())

	again, err := h.coord.GetMenu(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, meals, again)
	require.Equal(t, 1, h.scraper.calls())
	h.enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGetMenuScrapeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.err = &scraper.Error{Kind: scraper.KindParse, URL: v.MenuURL, Err: errors.New("bad json")}

	_, err := h.coord.GetMenu(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrScrapeFailed)
	require.NotErrorIs(t, err, menu.ErrTimeout)

	meals, err := h.store.ListMealsByVendor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Empty(t, meals)
}

func TestGetMenuEmptyScrapeIsFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.records = []menu.MealRecord{{Name: menu.Some("NA")}}

	_, err := h.coord.GetMenu(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrScrapeFailed)
	require.Equal(t, scraper.KindEmpty, scraper.KindOf(err))
}

func TestGetMenuPlainScraperErrorStillScrapeFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.err = errors.New("exec: python3 not found")

	_, err := h.coord.GetMenu(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrScrapeFailed)
}

func TestGetMenuTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{SyncTimeout: 20 * time.Millisecond}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.blockUntil = true

	_, err := h.coord.GetMenu(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrTimeout)
}

func TestGetMenuConcurrentMissesShareOneScrape(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.records = mealRecords("Bowl", "10")
	h.scraper.gate = make(chan struct{})
	h.scraper.started = make(chan struct{})

	results := make(chan []menu.Meal, 2)
	for range 2 {
		go func() {
			meals, err := h.coord.GetMenu(context.Background(), v.ID)
			if err != nil {
				results <- nil
				return
			}
			results <- meals
		}()
	}
	<-h.scraper.started
	time.Sleep(20 * time.Millisecond)
	close(h.scraper.gate)

	for range 2 {
		require.Equal(t, []string{"Bowl"}, names(<-results))
	}
	require.Equal(t, 1, h.scraper.calls())
}

func TestGetMenuKeepsMealsStoredDuringScrape(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.records = mealRecords("Stale", "1")
	h.scraper.gate = make(chan struct{})
	h.scraper.started = make(chan struct{})

	type result struct {
		meals []menu.Meal
		err   error
	}
	done := make(chan result, 1)
	go func() {
		meals, err := h.coord.GetMenu(context.Background(), v.ID)
		done <- result{meals: meals, err: err}
	}()
	<-h.scraper.started
	_, err := h.store.ReplaceMeals(context.Background(), v.ID, []menu.Meal{{Name: "Fresh"}})
	require.NoError(t, err)
	close(h.scraper.gate)

	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, []string{"Fresh"}, names(got.meals))
}

func TestForceRescrapeFailureLeavesMealsUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	_, err := h.store.InsertMeals(context.Background(), v.ID, []menu.Meal{{Name: "Old Bowl"}, {Name: "Old Wrap"}})
	require.NoError(t, err)
	h.scraper.err = &scraper.Error{Kind: scraper.KindInvocation, Err: errors.New("exit status 1")}

	_, err = h.coord.ForceRescrape(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrScrapeFailed)

	meals, err := h.store.ListMealsByVendor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Old Bowl", "Old Wrap"}, names(meals))
}

func TestForceRescrapeReplacesExactly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	other := h.vendor(t, "other")
	_, err := h.store.InsertMeals(context.Background(), v.ID, []menu.Meal{{Name: "Old Bowl"}})
	require.NoError(t, err)
	_, err = h.store.InsertMeals(context.Background(), other.ID, []menu.Meal{{Name: "Keep"}})
	require.NoError(t, err)
	h.scraper.records = mealRecords("Soup", "6", "Salad", "9")

	meals, err := h.coord.ForceRescrape(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Soup", "Salad"}, names(meals))

	kept, err := h.store.ListMealsByVendor(context.Background(), other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Keep"}, names(kept))
}

func TestForceRescrapeUnknownVendor(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	_, err := h.coord.ForceRescrape(context.Background(), 9)
	require.ErrorIs(t, err, menu.ErrNotFound)
	require.Zero(t, h.scraper.calls())
}

func TestRegisterVendorProbeOutcomes(t *testing.T) {
	t.Parallel()

	prober := fakeProber{codes: map[string]int{
		"https://gone.example/menu": 500,
	}}
	h := newHarness(t, Config{}, prober)

	ok, err := h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: " Leafy ", MenuURL: "https://leafy.example/menu",
	})
	require.NoError(t, err)
	require.Equal(t, "Leafy", ok.Name)
	require.Equal(t, menu.StatusReachable, ok.StatusCode)
	require.Equal(t, testNow, ok.LastUpdated)
	require.Equal(t, menu.NotAvailable, ok.Website)

	gone, err := h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: "Gone", MenuURL: "https://gone.example/menu",
	})
	require.NoError(t, err)
	require.Equal(t, menu.StatusUnreachable, gone.StatusCode)

	_, err = h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: "Leafy", MenuURL: "https://leafy.example/other",
	})
	require.ErrorIs(t, err, menu.ErrConflict)

	_, err = h.coord.RegisterVendor(context.Background(), menu.VendorInput{Name: "No URL"})
	require.ErrorIs(t, err, menu.ErrValidation)

	h.coord.Wait()
	require.Empty(t, h.scraper.metaCalls, "metadata disabled")
}

func TestRegisterVendorTransportFailureStillCreated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeProber{err: errors.New("dial tcp: no such host")})
	v, err := h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: "Offline", MenuURL: "https://offline.invalid/menu",
	})
	require.NoError(t, err)
	require.False(t, v.Reachable())

	stored, err := h.store.GetVendor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, menu.StatusUnreachable, stored.StatusCode)
}

func TestRegisterVendorBackgroundMetadata(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MetadataEnabled: true}, nil)
	h.scraper.meta = menu.VendorMetadata{
		Description: menu.Some("Seasonal salads."),
		Logo:        menu.Some("https://leafy.example/logo.png"),
		ReviewLinks: map[string]menu.Text{"Eater": menu.Some("https://eater.example/leafy")},
	}

	v, err := h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: "Leafy", MenuURL: "https://leafy.example/menu", Website: "https://leafy.example",
	})
	require.NoError(t, err)
	h.coord.Wait()

	require.Equal(t, []string{"https://leafy.example"}, h.scraper.metaCalls)
	stored, err := h.store.GetVendor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, "Seasonal salads.", stored.Description)
	require.Equal(t, "https://leafy.example/logo.png", stored.Logo)
	require.Equal(t, map[string]string{"eater": "https://eater.example/leafy"}, stored.ReviewLinks)
	require.Equal(t, "Leafy", stored.Name)
}

func TestRegisterVendorMetadataFailureOnlyLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MetadataEnabled: true}, nil)
	h.scraper.metaErr = &scraper.Error{Kind: scraper.KindEmpty, Err: errors.New("no vendor metadata")}

	v, err := h.coord.RegisterVendor(context.Background(), menu.VendorInput{
		Name: "Leafy", MenuURL: "https://leafy.example/menu",
	})
	require.NoError(t, err)
	h.coord.Wait()

	stored, err := h.store.GetVendor(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, menu.NotAvailable, stored.Description)
	require.Equal(t, []string{"https://leafy.example/menu"}, h.scraper.metaCalls)
}

func TestRefreshMetadataFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	h.scraper.metaErr = &scraper.Error{Kind: scraper.KindParse, Err: errors.New("bad json")}

	_, err := h.coord.RefreshMetadata(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrScrapeFailed)

	_, err = h.coord.RefreshMetadata(context.Background(), 999)
	require.ErrorIs(t, err, menu.ErrNotFound)
}

func TestVendorStatusAndDeletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	v := h.vendor(t, "leafy")
	_, err := h.store.InsertMeals(context.Background(), v.ID, []menu.Meal{{Name: "Bowl"}, {Name: "Wrap"}})
	require.NoError(t, err)

	status, err := h.coord.VendorStatus(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, menu.VendorStatus{
		Name: "leafy", MenuURL: v.MenuURL, StatusCode: menu.StatusReachable, LastUpdated: testNow,
	}, status)

	all, err := h.coord.ListMeals(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, h.coord.DeleteMeal(context.Background(), all[0].ID))
	require.ErrorIs(t, h.coord.DeleteMeal(context.Background(), all[0].ID), menu.ErrNotFound)

	require.NoError(t, h.coord.DeleteVendor(context.Background(), v.ID))
	all, err = h.coord.ListMeals(context.Background())
	require.NoError(t, err)
	require.Empty(t, all, "vendor delete cascades to meals")
	require.ErrorIs(t, h.coord.DeleteVendor(context.Background(), v.ID), menu.ErrNotFound)
	_, err = h.coord.VendorStatus(context.Background(), v.ID)
	require.ErrorIs(t, err, menu.ErrNotFound)

	vendors, err := h.coord.ListVendors(context.Background())
	require.NoError(t, err)
	require.Empty(t, vendors)
	require.NoError(t, h.coord.Ping(context.Background()))
}
