// Package vectorstore wraps the Qdrant backend that holds chunk
// embeddings. It owns collection bootstrap, document upsert, filtered
// deletion and semantic search; callers never touch the gRPC client
// directly.
package vectorstore

import (
	"context"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/models"
)

const (
	// DefaultCollection is the collection name used when the config
	// leaves it empty.
	DefaultCollection = "codegraph"

	// DefaultSearchLimit applies when a caller passes limit <= 0.
	DefaultSearchLimit = 10
)

// Config carries the connection coordinates for the vector backend.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port <= 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	return c
}

// SearchFilter narrows a semantic search. Zero values mean unfiltered.
// Repository requires an exact match; Repositories matches any of the
// listed names. Setting both intersects them.
type SearchFilter struct {
	Repository   string
	Repositories []string
	Extension    string
	MinScore     float32
}

// Store is a Qdrant-backed document store for embedded chunks.
type Store struct {
	client     *qdrant.Client
	collection string
	log        *slog.Logger
}

// New connects to the vector backend. The connection is lazy on the
// gRPC side, so failures here are limited to malformed coordinates.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.Connection(err, "failed to create qdrant client")
	}
	return &Store{
		client:     client,
		collection: cfg.Collection,
		log:        logging.ForComponent("vectorstore"),
	}, nil
}

// Collection returns the collection name this store writes to.
func (s *Store) Collection() string {
	return s.collection
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the chunk collection if it does not exist.
// Cosine distance matches the normalisation of the embedding providers.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return errors.Validation("embedding dimensions must be positive")
	}
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return errors.Connection(err, "failed to list qdrant collections")
	}
	for _, name := range names {
		if name == s.collection {
			return nil
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errors.Operation(err, "failed to create qdrant collection", false)
	}
	s.log.Info("created vector collection", "collection", s.collection, "dimensions", dims)
	return nil
}

// HealthCheck verifies the backend is reachable and the collection
// exists.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.GetCollectionInfo(ctx, s.collection); err != nil {
		return errors.Connection(err, "qdrant health check failed")
	}
	return nil
}

// Upsert writes all documents in one call. Documents sharing an ID with
// a stored point replace it; the derived point id guarantees that for
// re-chunked files.
func (s *Store) Upsert(ctx context.Context, docs []models.DocumentInput) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		point, err := docToPoint(doc)
		if err != nil {
			return 0, err
		}
		points[i] = point
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return 0, errors.Operation(err, "qdrant upsert failed", true)
	}
	s.log.Debug("upserted documents", "count", len(points))
	return len(points), nil
}

// DeleteByFile removes every chunk stored for one file and reports how
// many points were removed. The count runs first because the delete
// acknowledgement does not say how many points matched.
func (s *Store) DeleteByFile(ctx context.Context, repository, filePath string) (int, error) {
	if repository == "" {
		return 0, errors.Validation("repository must not be empty")
	}
	if filePath == "" {
		return 0, errors.Validation("file path must not be empty")
	}
	return s.deleteByFilter(ctx, fileFilter(repository, filePath))
}

// DeleteByRepository removes every chunk stored for a repository.
func (s *Store) DeleteByRepository(ctx context.Context, repository string) (int, error) {
	if repository == "" {
		return 0, errors.Validation("repository must not be empty")
	}
	return s.deleteByFilter(ctx, repositoryFilter(repository))
}

func (s *Store) deleteByFilter(ctx context.Context, filter *qdrant.Filter) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
	})
	if err != nil {
		return 0, errors.Operation(err, "qdrant count failed", true)
	}
	if count == 0 {
		return 0, nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return 0, errors.Operation(err, "qdrant delete failed", true)
	}
	return int(count), nil
}

// CountByRepository returns the number of chunks stored for a
// repository.
func (s *Store) CountByRepository(ctx context.Context, repository string) (int, error) {
	if repository == "" {
		return 0, errors.Validation("repository must not be empty")
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         repositoryFilter(repository),
	})
	if err != nil {
		return 0, errors.Operation(err, "qdrant count failed", true)
	}
	return int(count), nil
}

// Search runs a nearest-neighbour query and decodes the hits. Results
// arrive ordered by descending score.
func (s *Store) Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]models.SearchResult, error) {
	if len(vector) == 0 {
		return nil, errors.Validation("search vector must not be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         searchFilter(filter),
	}
	if filter.MinScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(filter.MinScore)
	}
	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, errors.Operation(err, "qdrant search failed", true)
	}
	results := make([]models.SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, scoredPointToResult(point))
	}
	return results, nil
}
