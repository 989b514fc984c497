package pool

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/client"
	"github.com/shaneisley/courtside/pkg/clock"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/failure"
	"github.com/shaneisley/courtside/pkg/ratelimit"
	"github.com/shaneisley/courtside/pkg/retry"
	"github.com/shaneisley/courtside/pkg/transport"
)

const gameLogBody = `{"resultSets":[{"name":"LeagueGameLog","headers":["GAME_ID","TEAM_ID"],"rowSet":[["0022300001",1610612744]]}]}`

// seasonSender answers 503 for the broken season and a valid payload otherwise.
type seasonSender struct {
	broken string
	calls  atomic.Int32
}

func (s *seasonSender) Send(ctx context.Context, req endpoints.Request) (*transport.Response, error) {
	s.calls.Add(1)
	if season, _ := req.Param(endpoints.ArgSeason); season == s.broken {
		return nil, &failure.Error{Kind: failure.ServerError, Endpoint: req.Endpoint(), StatusCode: 503}
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(gameLogBody)}, nil
}

func newTestFactory(t *testing.T, sender transport.Sender) Factory {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fc, err := cache.NewFileCache(t.TempDir(), cache.DefaultTTL, fake)
	require.NoError(t, err)

	return func(worker int) (*client.Client, error) {
		policy := retry.NewPolicy(fake)
		policy.MaxAttempts = 2
		return client.New(client.Options{
			Cache:     fc,
			Transport: sender,
			Limiter:   ratelimit.New(ratelimit.DefaultConfig(), fake),
			Retry:     policy,
			Clock:     fake,
		})
	}
}

func seasonJob(season string) Job {
	return Job{
		Operation: endpoints.OpLeagueGameLog,
		Args: endpoints.Args{
			endpoints.ArgSeason:     season,
			endpoints.ArgSeasonType: endpoints.RegularSeason,
		},
	}
}

func TestPool_RunContinuesPastFailures(t *testing.T) {
	// Given a pool of three workers and an upstream with one broken season
	sender := &seasonSender{broken: "1999-00"}
	p, err := New(3, newTestFactory(t, sender), nil)
	require.NoError(t, err)

	jobs := []Job{
		seasonJob("2019-20"),
		seasonJob("1999-00"),
		seasonJob("2020-21"),
		{Operation: endpoints.OpPlayByPlay},
		seasonJob("2021-22"),
		seasonJob("2022-23"),
	}

	// When the batch runs
	outcomes := p.Run(context.Background(), jobs)

	// Then every job has an outcome in order and failures do not stop the batch
	require.Len(t, outcomes, len(jobs))
	for i, o := range outcomes {
		assert.Equal(t, jobs[i].Operation, o.Job.Operation)
		assert.GreaterOrEqual(t, o.Worker, 0)
		assert.Less(t, o.Worker, 3)
	}

	assert.ErrorIs(t, outcomes[1].Err, failure.ServerError)
	assert.ErrorIs(t, outcomes[3].Err, endpoints.ErrMissingArgument)
	for _, i := range []int{0, 2, 4, 5} {
		require.NoError(t, outcomes[i].Err, "job %d", i)
		assert.Equal(t, 1, outcomes[i].Result.Payload.RowCount())
	}

	// And the broken season was retried up to the ceiling
	assert.Equal(t, int32(4+2), sender.calls.Load())

	stats := p.Stats()
	assert.Equal(t, int64(5), stats.Requests)
	assert.Equal(t, int64(4), stats.Successes)
	assert.Equal(t, int64(1), stats.Failures["server_error"])
}

func TestPool_WorkersHaveIndependentLimiters(t *testing.T) {
	sender := &seasonSender{broken: "1999-00"}
	p, err := New(2, newTestFactory(t, sender), nil)
	require.NoError(t, err)

	outcomes := p.Run(context.Background(), []Job{seasonJob("1999-00")})
	require.Len(t, outcomes, 1)
	failedWorker := outcomes[0].Worker

	states := p.RateLimiterStates()
	require.Len(t, states, 2)
	assert.Equal(t, 2, states[failedWorker].ConsecutiveFailures)
	assert.Zero(t, states[1-failedWorker].ConsecutiveFailures)
}

func TestPool_SharedCacheAcrossWorkers(t *testing.T) {
	sender := &seasonSender{}
	p, err := New(2, newTestFactory(t, sender), nil)
	require.NoError(t, err)

	first := p.Run(context.Background(), []Job{seasonJob("2023-24")})
	second := p.Run(context.Background(), []Job{seasonJob("2023-24"), seasonJob("2023-24")})

	require.NoError(t, first[0].Err)
	for _, o := range second {
		require.NoError(t, o.Err)
		assert.True(t, o.Result.CacheHit)
	}
	assert.Equal(t, int32(1), sender.calls.Load())
}

func TestPool_CancelledBatch(t *testing.T) {
	sender := &seasonSender{}
	p, err := New(2, newTestFactory(t, sender), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := p.Run(ctx, []Job{seasonJob("2019-20"), seasonJob("2020-21"), seasonJob("2021-22")})

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Zero(t, sender.calls.Load())
}

func TestNew_WorkerBounds(t *testing.T) {
	sender := &seasonSender{}
	factory := newTestFactory(t, sender)

	p, err := New(0, factory, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, p.Workers())

	p, err = New(MaxWorkers+10, factory, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxWorkers, p.Workers())
}

func TestNew_FactoryError(t *testing.T) {
	boom := errors.New("boom")

	_, err := New(2, func(worker int) (*client.Client, error) { return nil, boom }, nil)

	assert.ErrorIs(t, err, boom)
}
