package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/credit"
	"github.com/chofesh/model-gateway/internal/health"
	"github.com/chofesh/model-gateway/internal/logging"
	"github.com/chofesh/model-gateway/internal/provider"
)

// fakeInvoker answers from a script keyed by model id and records the
// order models were tried in.
type fakeInvoker struct {
	results map[string]error
	calls   []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, desc *catalog.Descriptor, req *provider.Request) (*provider.Response, error) {
	f.calls = append(f.calls, desc.ID)
	if err, ok := f.results[desc.ID]; ok && err != nil {
		return nil, err
	}
	return &provider.Response{Content: "answer from " + desc.ID, Model: desc.ID}, nil
}

type routerFixture struct {
	router  *Router
	invoker *fakeInvoker
	store   *credit.MemoryStore
	tracker *health.Tracker
}

func newRouterFixture(t *testing.T, results map[string]error) *routerFixture {
	t.Helper()
	logger := logging.WithComponent("test")
	f := &routerFixture{
		invoker: &fakeInvoker{results: results},
		store:   credit.NewMemoryStore(),
		tracker: health.NewTracker(logger),
	}
	ledger := credit.NewLedger(f.store, 30, logger)
	f.router = NewRouter(NewChainBuilder(testCatalog(t), f.tracker), f.invoker, ledger, logger)
	return f
}

func (f *routerFixture) seed(t *testing.T, userID string, free, purchased int64) {
	t.Helper()
	err := f.store.Save(context.Background(), userID, credit.Account{
		Free:            free,
		Purchased:       purchased,
		LastFreeRefresh: time.Now(),
	})
	require.NoError(t, err)
}

func (f *routerFixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	acct, err := f.store.Load(context.Background(), userID)
	require.NoError(t, err)
	return acct.Total()
}

func textRequest(userID string) *Request {
	return &Request{
		UserID:            userID,
		Messages:          []provider.Message{{Role: "user", Content: "hello"}},
		ContentModalities: []catalog.Modality{catalog.ModalityText},
		DesiredPolicyTier: catalog.TierStandard,
	}
}

func TestRouteFirstCandidateSucceeds(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.seed(t, "u1", 10, 0)

	resp, err := f.router.Route(context.Background(), textRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "cheap-text", resp.ServedBy)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int64(1), resp.CreditsCharged)
	assert.Equal(t, int64(9), f.balance(t, "u1"))
}

func TestRouteChargesOnlyTheServingModel(t *testing.T) {
	f := newRouterFixture(t, map[string]error{
		"cheap-text": &provider.Error{Class: provider.ClassTransient, Model: "cheap-text", Err: assert.AnError},
	})
	f.seed(t, "u1", 10, 0)

	resp, err := f.router.Route(context.Background(), textRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "vision", resp.ServedBy)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, []string{"cheap-text", "vision"}, f.invoker.calls)
	// The failed attempt's hold came back; only the winner's cost stands.
	assert.Equal(t, int64(8), f.balance(t, "u1"))
}

func TestRouteExhaustionReleasesEveryHold(t *testing.T) {
	f := newRouterFixture(t, map[string]error{
		"cheap-text": &provider.Error{Class: provider.ClassTransient, Model: "cheap-text", Err: assert.AnError},
		"vision":     &provider.Error{Class: provider.ClassTransient, Model: "vision", Err: assert.AnError},
	})
	f.seed(t, "u1", 10, 0)

	_, err := f.router.Route(context.Background(), textRequest("u1"))
	assert.Equal(t, KindProviderExhausted, KindOf(err))

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Attempts)
	assert.Equal(t, int64(10), f.balance(t, "u1"), "exhaustion must be credit-neutral")
}

func TestRouteInsufficientCreditsShortCircuits(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.seed(t, "u1", 0, 0)

	_, err := f.router.Route(context.Background(), textRequest("u1"))
	assert.Equal(t, KindInsufficientCredits, KindOf(err))
	assert.Empty(t, f.invoker.calls, "no provider call without a reservation")
	assert.Equal(t, int64(0), f.balance(t, "u1"))
}

func TestRouteNoEligibleModel(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.seed(t, "u1", 10, 0)

	req := textRequest("u1")
	req.ContentModalities = []catalog.Modality{catalog.ModalityAudio}

	_, err := f.router.Route(context.Background(), req)
	assert.Equal(t, KindNoEligibleModel, KindOf(err))
	assert.Equal(t, int64(10), f.balance(t, "u1"))
}

func TestRouteExplicitMismatchChargesNothing(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.seed(t, "u1", 10, 0)

	req := textRequest("u1")
	req.ExplicitModelID = "cheap-text"
	req.ContentModalities = []catalog.Modality{catalog.ModalityText, catalog.ModalityVision}

	_, err := f.router.Route(context.Background(), req)
	assert.Equal(t, KindCapabilityMismatch, KindOf(err))
	assert.Empty(t, f.invoker.calls)
	assert.Equal(t, int64(10), f.balance(t, "u1"))
}

func TestRouteExplicitModelNeverFallsBack(t *testing.T) {
	f := newRouterFixture(t, map[string]error{
		"cheap-text": &provider.Error{Class: provider.ClassTransient, Model: "cheap-text", Err: assert.AnError},
	})
	f.seed(t, "u1", 10, 0)

	req := textRequest("u1")
	req.ExplicitModelID = "cheap-text"

	_, err := f.router.Route(context.Background(), req)
	assert.Equal(t, KindProviderExhausted, KindOf(err))
	assert.Equal(t, []string{"cheap-text"}, f.invoker.calls)
	assert.Equal(t, int64(10), f.balance(t, "u1"))
}

func TestRouteMismatchFromProviderStopsTheChain(t *testing.T) {
	f := newRouterFixture(t, map[string]error{
		"cheap-text": &provider.Error{Class: provider.ClassMismatch, Model: "cheap-text", Err: assert.AnError},
	})
	f.seed(t, "u1", 10, 0)

	_, err := f.router.Route(context.Background(), textRequest("u1"))
	assert.Equal(t, KindCapabilityMismatch, KindOf(err))
	assert.Equal(t, []string{"cheap-text"}, f.invoker.calls, "mismatch must not advance")
	assert.Equal(t, int64(10), f.balance(t, "u1"))
}

func TestRouteFatalAdvancesToNextCandidate(t *testing.T) {
	f := newRouterFixture(t, map[string]error{
		"cheap-text": &provider.Error{Class: provider.ClassFatal, Model: "cheap-text", Err: assert.AnError},
	})
	f.seed(t, "u1", 10, 0)

	resp, err := f.router.Route(context.Background(), textRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "vision", resp.ServedBy)
	assert.Equal(t, int64(8), f.balance(t, "u1"))
}

func TestRouteCancelledContext(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.seed(t, "u1", 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.router.Route(ctx, textRequest("u1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(10), f.balance(t, "u1"))
}
