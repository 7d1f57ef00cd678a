package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// GCSConfig holds configuration for a GCSSource.
type GCSConfig struct {
	BucketName string
	// ObjectPrefix is joined in front of the rendered key to form the
	// object name. Optional.
	ObjectPrefix string
}

// GCSSource fetches JSON-encoded objects from a Cloud Storage bucket. The
// rendered key, under the optional prefix, is the object name.
type GCSSource[K comparable, V any] struct {
	client GCSClient
	config GCSConfig
	logger zerolog.Logger
}

// NewGCSSource creates a source reading from Google Cloud Storage. Wrap a
// concrete *storage.Client with NewGCSClientAdapter; its lifecycle stays
// with the caller.
func NewGCSSource[K comparable, V any](
	gcsClient GCSClient,
	config GCSConfig,
	logger zerolog.Logger,
) (*GCSSource[K, V], error) {
	if gcsClient == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSSource[K, V]{
		client: gcsClient,
		config: config,
		logger: logger.With().Str("component", "GCSSource").Logger(),
	}, nil
}

// Fetch reads and decodes the object named by the rendered key.
func (s *GCSSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	objectName := path.Join(s.config.ObjectPrefix, fmt.Sprintf("%v", key))

	reader, err := s.client.Bucket(s.config.BucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return zero, fmt.Errorf("gcs source: object '%s': %w", objectName, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("object_name", objectName).Msg("Failed to open GCS object for reading.")
		return zero, fmt.Errorf("gcs reader for %s: %w", objectName, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		s.logger.Error().Err(err).Str("object_name", objectName).Msg("Failed to read GCS object.")
		return zero, fmt.Errorf("gcs read for %s: %w", objectName, err)
	}

	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		s.logger.Error().Err(err).Str("object_name", objectName).Msg("Failed to unmarshal GCS object data.")
		return zero, fmt.Errorf("failed to unmarshal object %s: %w", objectName, err)
	}

	s.logger.Debug().Str("object_name", objectName).Msg("Successfully fetched object from GCS.")
	return value, nil
}

// Close is a no-op as the storage client's lifecycle is managed externally.
func (s *GCSSource[K, V]) Close() error {
	s.logger.Info().Msg("GCSSource does not close the injected storage client.")
	return nil
}
