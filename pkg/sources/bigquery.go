package sources

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BigQueryConfig holds configuration for a BigQuerySource. The identifiers
// are trusted deployment configuration, not user input; they are
// interpolated into the lookup statement verbatim.
type BigQueryConfig struct {
	DatasetID string
	TableID   string
	// KeyColumn is the column the rendered key is matched against.
	KeyColumn string
}

// NewBigQueryClient creates a BigQuery client suitable for production
// environments, using a credentials file when one is configured and
// Application Default Credentials otherwise.
func NewBigQueryClient(ctx context.Context, projectID string, credentialsFile string, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for BigQuery client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client.")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("Failed to create BigQuery client.")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// BigQuerySource fetches single rows from a BigQuery table by a key column,
// loading each row into V via the struct loader. It is a read source only:
// unlike the other backends it has no cache-tier role, so it does not
// satisfy CachingSource.
type BigQuerySource[K comparable, V any] struct {
	client *bigquery.Client
	query  string
	logger zerolog.Logger
}

// NewBigQuerySource creates a source over an injected client, verifying the
// configured table exists before returning. The client's lifecycle stays
// with the caller.
func NewBigQuerySource[K comparable, V any](
	ctx context.Context,
	client *bigquery.Client,
	cfg *BigQueryConfig,
	logger zerolog.Logger,
) (*BigQuerySource[K, V], error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("BigQueryConfig cannot be nil")
	}
	if cfg.DatasetID == "" || cfg.TableID == "" || cfg.KeyColumn == "" {
		return nil, errors.New("BigQueryConfig requires DatasetID, TableID, and KeyColumn")
	}

	logger = logger.With().Str("project_id", client.Project()).Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()

	// A read source never creates its table; a missing one is a
	// configuration error surfaced here rather than on the first fetch.
	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := tableRef.Metadata(ctx); err != nil {
		return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
	}
	logger.Info().Msg("Successfully connected to existing BigQuery table.")

	return &BigQuerySource[K, V]{
		client: client,
		query: fmt.Sprintf("SELECT * FROM `%s.%s.%s` WHERE %s = @key LIMIT 1",
			client.Project(), cfg.DatasetID, cfg.TableID, cfg.KeyColumn),
		logger: logger.With().Str("component", "BigQuerySource").Logger(),
	}, nil
}

// Fetch runs a parameterized point lookup for the rendered key and loads
// the single matching row into V. Zero rows is a miss.
func (s *BigQuerySource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)

	q := s.client.Query(s.query)
	q.Parameters = []bigquery.QueryParameter{{Name: "key", Value: stringKey}}

	it, err := q.Read(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("BigQuery lookup failed to start.")
		return zero, fmt.Errorf("bigquery read for %s: %w", stringKey, err)
	}

	var value V
	err = it.Next(&value)
	if errors.Is(err, iterator.Done) {
		return zero, fmt.Errorf("bigquery source: key '%s': %w", stringKey, ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to load BigQuery row.")
		return zero, fmt.Errorf("bigquery row load for %s: %w", stringKey, err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully fetched row from BigQuery.")
	return value, nil
}

// Close is a no-op for this implementation, as the underlying BigQuery
// client's lifecycle is managed externally by the service that created it.
func (s *BigQuerySource[K, V]) Close() error {
	s.logger.Info().Msg("BigQuerySource.Close() called; client lifecycle is managed externally.")
	return nil
}
