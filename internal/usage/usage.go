// Package usage aggregates the account analytics shown in the usage
// widget: Workers invocations, KV operations, and D1 query volume for the
// current UTC day.
package usage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
)

// StaleAfter is how long a fetched summary stays fresh.
const StaleAfter = 15 * time.Minute

// Metrics is the reduced usage summary for one account and one UTC day.
type Metrics struct {
	WorkersRequests int64

	KVReads   int64
	KVWrites  int64
	KVDeletes int64
	KVLists   int64

	D1ReadQueries  int64
	D1WriteQueries int64
	D1RowsRead     int64
	D1RowsWritten  int64

	PeriodStart time.Time
	PeriodEnd   time.Time
	LastUpdated time.Time
}

// Stale reports whether the summary must be refetched: either the period
// no longer covers the current UTC day, or the last fetch is at least
// StaleAfter old. The zero value is always stale.
func (m Metrics) Stale(now time.Time) bool {
	if m.LastUpdated.IsZero() {
		return true
	}
	nowUTC := now.UTC()
	start := m.PeriodStart.UTC()
	if start.Year() != nowUTC.Year() || start.Month() != nowUTC.Month() || start.Day() != nowUTC.Day() {
		return true
	}
	return now.Sub(m.LastUpdated) >= StaleAfter
}

// usageQuery requests the three dataset groups in a single round trip.
// Workers invocations are instant-grained; KV and D1 are day-grained.
const usageQuery = `query CloudflareStatusBarUsage($accountTag: String!, $datetimeStart: String!, $datetimeEnd: String!, $date: String!) {
  viewer {
    accounts(filter: {accountTag: $accountTag}) {
      workersInvocationsAdaptive(limit: 10000, filter: {datetime_geq: $datetimeStart, datetime_leq: $datetimeEnd}) {
        sum {
          requests
        }
      }
      kvOperationsAdaptiveGroups(limit: 10000, filter: {date_geq: $date, date_leq: $date}) {
        dimensions {
          actionType
        }
        sum {
          requests
        }
      }
      d1AnalyticsAdaptiveGroups(limit: 10000, filter: {date_geq: $date, date_leq: $date}) {
        sum {
          readQueries
          writeQueries
          rowsRead
          rowsWritten
        }
      }
    }
  }
}`

type usageResponse struct {
	Viewer struct {
		Accounts []usageAccount `json:"accounts"`
	} `json:"viewer"`
}

type usageAccount struct {
	WorkersInvocations []struct {
		Sum struct {
			Requests int64 `json:"requests"`
		} `json:"sum"`
	} `json:"workersInvocationsAdaptive"`
	KVOperations []struct {
		Dimensions struct {
			ActionType string `json:"actionType"`
		} `json:"dimensions"`
		Sum struct {
			Requests int64 `json:"requests"`
		} `json:"sum"`
	} `json:"kvOperationsAdaptiveGroups"`
	D1Analytics []struct {
		Sum struct {
			ReadQueries  int64 `json:"readQueries"`
			WriteQueries int64 `json:"writeQueries"`
			RowsRead     int64 `json:"rowsRead"`
			RowsWritten  int64 `json:"rowsWritten"`
		} `json:"sum"`
	} `json:"d1AnalyticsAdaptiveGroups"`
}

// GraphQLClient is the slice of the API client the fetcher needs.
type GraphQLClient interface {
	GraphQL(ctx context.Context, query string, variables map[string]any, out any) error
}

// Fetcher issues the usage query and reduces the response.
type Fetcher struct {
	client GraphQLClient
	logger *slog.Logger
	now    func() time.Time
}

// FetcherOptions configures a usage Fetcher.
type FetcherOptions struct {
	Client GraphQLClient
	Logger *slog.Logger
	Now    func() time.Time // test hook, defaults to time.Now
}

// NewFetcher creates a usage fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Fetcher{
		client: opts.Client,
		logger: logger,
		now:    now,
	}
}

// Fetch queries today's usage for an account. The staleness short-circuit
// belongs to the caller; Fetch always goes to the network.
func (f *Fetcher) Fetch(ctx context.Context, accountID string) (Metrics, error) {
	now := f.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	variables := map[string]any{
		"accountTag":    accountID,
		"datetimeStart": dayStart.Format(time.RFC3339),
		"datetimeEnd":   now.Format(time.RFC3339),
		"date":          dayStart.Format("2006-01-02"),
	}

	var resp usageResponse
	if err := f.client.GraphQL(ctx, usageQuery, variables, &resp); err != nil {
		return Metrics{}, err
	}

	metrics := reduce(resp)
	metrics.PeriodStart = dayStart
	metrics.PeriodEnd = now
	metrics.LastUpdated = now

	f.logger.Debug("usage metrics fetched",
		"account_id", accountID,
		"workers_requests", metrics.WorkersRequests,
	)
	return metrics, nil
}

// reduce folds the raw dataset rows into one summary. Missing datasets
// and unrecognized KV action types contribute nothing.
func reduce(resp usageResponse) Metrics {
	var m Metrics
	for _, account := range resp.Viewer.Accounts {
		for _, row := range account.WorkersInvocations {
			m.WorkersRequests += row.Sum.Requests
		}
		for _, row := range account.KVOperations {
			switch strings.ToLower(row.Dimensions.ActionType) {
			case "read":
				m.KVReads += row.Sum.Requests
			case "write":
				m.KVWrites += row.Sum.Requests
			case "delete":
				m.KVDeletes += row.Sum.Requests
			case "list":
				m.KVLists += row.Sum.Requests
			}
		}
		for _, row := range account.D1Analytics {
			m.D1ReadQueries += row.Sum.ReadQueries
			m.D1WriteQueries += row.Sum.WriteQueries
			m.D1RowsRead += row.Sum.RowsRead
			m.D1RowsWritten += row.Sum.RowsWritten
		}
	}
	return m
}

// permissionKeywords mark analytics failures caused by a token without
// the Account Analytics read scope.
var permissionKeywords = []string{
	"permission",
	"access denied",
	"not entitled",
}

// Message maps a usage fetch failure onto the short string shown in the
// usage widget. It never exposes raw error values.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if cloudflare.IsKind(err, cloudflare.ErrKindNotAuthenticated) ||
		cloudflare.IsKind(err, cloudflare.ErrKindTokenExpired) {
		return "Usage data requires a valid API session."
	}
	lower := strings.ToLower(err.Error())
	for _, kw := range permissionKeywords {
		if strings.Contains(lower, kw) {
			return "The API token has no analytics permission."
		}
	}
	return "Usage data is currently unavailable."
}
