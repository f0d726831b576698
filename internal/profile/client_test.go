package profile

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutuals/internal/poller/classifier"
	"mutuals/internal/poller/models"
	dErrors "mutuals/pkg/domain-errors"
	"mutuals/pkg/platform/circuit"
	"mutuals/pkg/testutil"
)

const testUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func newTestClient(t *testing.T, api *testutil.FakeAPI, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithHTTPClient(api.Client()),
		WithUserAgent(testUA),
		WithReferer("https://discord.com/"),
		WithTransportRetries(2, time.Millisecond),
	}
	c, err := New(api.URL+"/api/v9", "secret-token", append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("credential is required", func(t *testing.T) {
		_, err := New("https://discord.com/api/v9", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCredentialNotFound))
	})

	t.Run("base url must be absolute", func(t *testing.T) {
		_, err := New("not a url", "token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("default http client is built", func(t *testing.T) {
		c, err := New("https://discord.com/api/v9", "token")
		require.NoError(t, err)
		assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	})
}

func TestLookup_RequestShape(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/111/profile", testutil.JSON(`{"mutual_guilds":[],"user":{"username":"alice"}}`))
	api.Script("/api/v9/users/111/relationships", testutil.JSON(`[]`))
	c := newTestClient(t, api)

	groups := c.Lookup(context.Background(), models.LookupGroups, "111")
	require.NoError(t, groups.Err)
	assert.Equal(t, http.StatusOK, groups.StatusCode)
	assert.Equal(t, models.LookupGroups, groups.Kind)

	conns := c.Lookup(context.Background(), models.LookupConnections, "111")
	require.NoError(t, conns.Err)
	assert.JSONEq(t, `[]`, string(conns.Body))

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "with_mutual_guilds=true", reqs[0].Query)
	assert.Equal(t, "secret-token", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, testUA, reqs[0].Header.Get("User-Agent"))
	assert.Equal(t, "https://discord.com/", reqs[0].Header.Get("Referer"))
	assert.Equal(t, "/api/v9/users/111/relationships", reqs[1].Path)
}

func TestLookup_RateLimitIsPassedThrough(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/222/profile", testutil.CannedResponse{Status: http.StatusTooManyRequests, Body: `{"retry_after": 5.0}`})
	c := newTestClient(t, api)

	raw := c.Lookup(context.Background(), models.LookupGroups, "222")
	require.NoError(t, raw.Err)
	assert.Equal(t, 1, api.Count("/api/v9/users/222/profile"))

	d, ok := classifier.Classify(raw).RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestLookup_ServerErrorsAreRetried(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/333/profile",
		testutil.CannedResponse{Status: http.StatusBadGateway, Body: "<html>bad gateway</html>"},
		testutil.JSON(`{"mutual_guilds":[{"id":"g"}],"user":{"username":"carol"}}`),
	)
	c := newTestClient(t, api)

	raw := c.Lookup(context.Background(), models.LookupGroups, "333")
	require.NoError(t, raw.Err)
	assert.Equal(t, 2, api.Count("/api/v9/users/333/profile"))
	assert.Equal(t, models.OutcomeResolved, classifier.Classify(raw).Kind())
}

func TestLookup_PersistentFailureEventuallyYields(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/444/profile", testutil.CannedResponse{Status: http.StatusServiceUnavailable, Body: "upstream down"})
	c := newTestClient(t, api)

	raw := c.Lookup(context.Background(), models.LookupGroups, "444")
	assert.Equal(t, 3, api.Count("/api/v9/users/444/profile"))
	assert.Equal(t, http.StatusServiceUnavailable, raw.StatusCode)
	assert.Equal(t, models.OutcomeMalformed, classifier.Classify(raw).Kind())
}

func TestLookup_UnreachableHostSetsErr(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	c := newTestClient(t, api)
	api.Close()

	raw := c.Lookup(context.Background(), models.LookupConnections, "555")
	require.Error(t, raw.Err)
	assert.Equal(t, models.OutcomeMalformed, classifier.Classify(raw).Kind())
}

func TestLookup_OpenBreakerSkipsRetries(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/666/relationships", testutil.CannedResponse{Status: http.StatusInternalServerError, Body: "boom"})
	breaker := circuit.New("test", circuit.WithFailureThreshold(1))
	c := newTestClient(t, api, WithBreaker(breaker))

	raw := c.Lookup(context.Background(), models.LookupConnections, "666")
	assert.Equal(t, http.StatusInternalServerError, raw.StatusCode)
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, 1, api.Count("/api/v9/users/666/relationships"))
}

func TestLookup_CancelledContext(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	c := newTestClient(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := c.Lookup(ctx, models.LookupGroups, "777")
	require.Error(t, raw.Err)
	assert.Empty(t, api.Requests())
}

func TestLookup_HealthyLookupsAreNotPaced(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/111/profile", testutil.JSON(`{"mutual_guilds":[],"user":{"username":"alice"}}`))
	api.Script("/api/v9/users/111/relationships", testutil.JSON(`[]`))
	c, err := New(api.URL+"/api/v9", "secret-token", WithHTTPClient(api.Client()))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Lookup(context.Background(), models.LookupGroups, "111").Err)
		require.NoError(t, c.Lookup(context.Background(), models.LookupConnections, "111").Err)
	}
	assert.Less(t, time.Since(start), DefaultTransportRetryDelay/2)
}

func TestLookup_RetryIsSpacedFromFirstTry(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/222/profile",
		testutil.CannedResponse{Status: http.StatusBadGateway, Body: "bad gateway"},
		testutil.JSON(`{"mutual_guilds":[],"user":{"username":"bob"}}`),
	)
	c := newTestClient(t, api, WithTransportRetries(1, 50*time.Millisecond))

	start := time.Now()
	raw := c.Lookup(context.Background(), models.LookupGroups, "222")
	require.NoError(t, raw.Err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLookup_ClientErrorsCountAsBreakerSuccess(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.Script("/api/v9/users/333/profile", testutil.CannedResponse{Status: http.StatusInternalServerError, Body: "boom"})
	api.Script("/api/v9/users/444/profile", testutil.CannedResponse{Status: http.StatusTooManyRequests, Body: `{"retry_after": 1}`})
	api.Script("/api/v9/users/555/profile", testutil.CannedResponse{Status: http.StatusForbidden, Body: `{"code": 50001}`})
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(2))
	c := newTestClient(t, api, WithBreaker(breaker), WithTransportRetries(0, time.Millisecond))

	c.Lookup(context.Background(), models.LookupGroups, "333")
	require.True(t, breaker.IsOpen())

	c.Lookup(context.Background(), models.LookupGroups, "444")
	assert.True(t, breaker.IsOpen(), "one success is below the close threshold")

	c.Lookup(context.Background(), models.LookupGroups, "555")
	assert.False(t, breaker.IsOpen())
}
