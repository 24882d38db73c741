package usage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
)

type fakeGraphQL struct {
	query     string
	variables map[string]any
	response  string
	err       error
}

func (f *fakeGraphQL) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	f.query = query
	f.variables = variables
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func TestFetch_ReducesAllDatasets(t *testing.T) {
	fake := &fakeGraphQL{response: `{
		"viewer": {
			"accounts": [
				{
					"workersInvocationsAdaptive": [
						{"sum": {"requests": 1200}},
						{"sum": {"requests": 300}}
					],
					"kvOperationsAdaptiveGroups": [
						{"dimensions": {"actionType": "read"}, "sum": {"requests": 50}},
						{"dimensions": {"actionType": "READ"}, "sum": {"requests": 5}},
						{"dimensions": {"actionType": "write"}, "sum": {"requests": 20}},
						{"dimensions": {"actionType": "delete"}, "sum": {"requests": 3}},
						{"dimensions": {"actionType": "list"}, "sum": {"requests": 7}},
						{"dimensions": {"actionType": "purge"}, "sum": {"requests": 999}}
					],
					"d1AnalyticsAdaptiveGroups": [
						{"sum": {"readQueries": 100, "writeQueries": 40, "rowsRead": 1000, "rowsWritten": 200}},
						{"sum": {"readQueries": 10, "writeQueries": 2, "rowsRead": 50, "rowsWritten": 8}}
					]
				}
			]
		}
	}`}

	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	fetcher := NewFetcher(FetcherOptions{
		Client: fake,
		Now:    func() time.Time { return now },
	})

	metrics, err := fetcher.Fetch(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1500), metrics.WorkersRequests)
	assert.Equal(t, int64(55), metrics.KVReads)
	assert.Equal(t, int64(20), metrics.KVWrites)
	assert.Equal(t, int64(3), metrics.KVDeletes)
	assert.Equal(t, int64(7), metrics.KVLists)
	assert.Equal(t, int64(110), metrics.D1ReadQueries)
	assert.Equal(t, int64(42), metrics.D1WriteQueries)
	assert.Equal(t, int64(1050), metrics.D1RowsRead)
	assert.Equal(t, int64(208), metrics.D1RowsWritten)

	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), metrics.PeriodStart)
	assert.Equal(t, now, metrics.PeriodEnd)
	assert.Equal(t, now, metrics.LastUpdated)
}

func TestFetch_SendsPeriodVariables(t *testing.T) {
	fake := &fakeGraphQL{response: `{"viewer": {"accounts": []}}`}
	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	fetcher := NewFetcher(FetcherOptions{
		Client: fake,
		Now:    func() time.Time { return now },
	})

	_, err := fetcher.Fetch(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.Equal(t, "acc-1", fake.variables["accountTag"])
	assert.Equal(t, "2024-06-15", fake.variables["date"])
	assert.Equal(t, "2024-06-15T00:00:00Z", fake.variables["datetimeStart"])
	assert.Equal(t, "2024-06-15T14:30:00Z", fake.variables["datetimeEnd"])
	assert.Contains(t, fake.query, "workersInvocationsAdaptive")
	assert.Contains(t, fake.query, "kvOperationsAdaptiveGroups")
	assert.Contains(t, fake.query, "d1AnalyticsAdaptiveGroups")
}

func TestFetch_NoMatchingAccountYieldsZeroes(t *testing.T) {
	fake := &fakeGraphQL{response: `{"viewer": {"accounts": []}}`}
	fetcher := NewFetcher(FetcherOptions{Client: fake})

	metrics, err := fetcher.Fetch(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Zero(t, metrics.WorkersRequests)
	assert.Zero(t, metrics.KVReads)
	assert.Zero(t, metrics.D1ReadQueries)
	assert.False(t, metrics.LastUpdated.IsZero())
}

func TestFetch_PropagatesClientError(t *testing.T) {
	fake := &fakeGraphQL{err: cloudflare.NewAPIError("quota exceeded")}
	fetcher := NewFetcher(FetcherOptions{Client: fake})

	_, err := fetcher.Fetch(context.Background(), "acc-1")
	require.Error(t, err)
	assert.True(t, cloudflare.IsKind(err, cloudflare.ErrKindAPI))
}

func TestStale(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		metrics  Metrics
		expected bool
	}{
		{
			name:     "zero value",
			metrics:  Metrics{},
			expected: true,
		},
		{
			name: "yesterday period is stale regardless of recency",
			metrics: Metrics{
				PeriodStart: yesterday,
				LastUpdated: now.Add(-1 * time.Minute),
			},
			expected: true,
		},
		{
			name: "today and five minutes old is fresh",
			metrics: Metrics{
				PeriodStart: today,
				LastUpdated: now.Add(-5 * time.Minute),
			},
			expected: false,
		},
		{
			name: "today but sixteen minutes old is stale",
			metrics: Metrics{
				PeriodStart: today,
				LastUpdated: now.Add(-16 * time.Minute),
			},
			expected: true,
		},
		{
			name: "exactly fifteen minutes old is stale",
			metrics: Metrics{
				PeriodStart: today,
				LastUpdated: now.Add(-StaleAfter),
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.metrics.Stale(now))
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil", nil, ""},
		{"not authenticated", cloudflare.NewNotAuthenticatedError(), "valid API session"},
		{"token expired", cloudflare.NewTokenExpiredError("expired"), "valid API session"},
		{"missing permission", cloudflare.NewAPIError("token does not have permission to view analytics"), "analytics permission"},
		{"access denied", errors.New("access denied for account"), "analytics permission"},
		{"generic", cloudflare.NewAPIError("internal error"), "unavailable"},
		{"network", cloudflare.NewNetworkError(errors.New("dial tcp: timeout")), "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Message(tt.err)
			if tt.contains == "" {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains)
		})
	}
}
