// Package vectorstore adapts a Qdrant collection-backed vector database
// into the collaborator interface consumed by the query core: collection
// introspection, filtered vector query, and document upsert/delete
// addressed by canonical codebase root.
package vectorstore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/satorihq/satori-index/internal/types"
	"github.com/satorihq/satori-index/pkg/config"
)

// Document is one stored chunk, keyed for RRF fusion and grouping.
type Document struct {
	RelativePath string
	StartLine    int
	EndLine      int
	Language     string
	SymbolID     string
	SymbolLabel  string
	Content      string
	IndexedAt    time.Time
}

// QueryResult pairs a stored document with its native similarity score.
type QueryResult struct {
	Document Document
	Score    float64
}

// CollectionDetail describes one collection for the collection-limit
// guidance payload (spec section 7): label is one of
// "oldest"|"newest"|"target".
type CollectionDetail struct {
	Name      string
	CreatedAt time.Time
	Label     string
}

// BackendInfo reports the provider identity used in the fingerprint.
type BackendInfo struct {
	Provider      string
	SchemaVersion string
}

// Client wraps a Qdrant gRPC connection and exposes the vector-store
// collaborator interface from spec section 6.
type Client struct {
	cfg    *config.VectorDBConfig
	client *qdrant.Client
}

// NewClient dials Qdrant over gRPC at localhost:6334; the address is
// not taken from cfg.
func NewClient(cfg *config.VectorDBConfig) (*Client, error) {
	qdrantConfig := &qdrant.Config{
		Host:   "localhost",
		Port:   6334,
		UseTLS: false,
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &Client{cfg: cfg, client: client}, nil
}

// collectionFor derives a stable collection name from the canonical
// codebase root, namespaced under the configured prefix.
func (c *Client) collectionFor(canonicalRoot string) string {
	sum := uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonicalRoot))
	return fmt.Sprintf("%s_%s", c.cfg.CollectionName, sum.String()[:8])
}

// HasCollection reports whether a codebase's collection already exists.
func (c *Client) HasCollection(ctx context.Context, canonicalRoot string) (bool, error) {
	return c.client.CollectionExists(ctx, c.collectionFor(canonicalRoot))
}

// ListCollections returns every collection name owned by this store.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	return c.client.ListCollections(ctx)
}

// ListCollectionDetails enumerates collections for the collection-limit
// guidance payload (spec section 7), sorted by name, labelling the first
// "oldest" and the last "newest". CreatedAt is left zero and the order
// is lexical, not creation order.
func (c *Client) ListCollectionDetails(ctx context.Context) ([]CollectionDetail, error) {
	names, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	details := make([]CollectionDetail, 0, len(names))
	for _, name := range names {
		details = append(details, CollectionDetail{Name: name})
	}

	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })

	if len(details) > 0 {
		details[0].Label = "oldest"
		details[len(details)-1].Label = "newest"
	}
	return details, nil
}

// CheckCollectionLimit reports whether creating one more collection
// would exceed the configured maximum.
func (c *Client) CheckCollectionLimit(ctx context.Context) (bool, int, error) {
	names, err := c.client.ListCollections(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to list collections: %w", err)
	}
	return len(names) >= c.cfg.MaxCollections, len(names), nil
}

// EnsureCollection creates the codebase's collection if it does not
// already exist, sized to the runtime embedding dimension.
func (c *Client) EnsureCollection(ctx context.Context, canonicalRoot string, vectorSize int) error {
	name := c.collectionFor(canonicalRoot)

	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(vectorSize),
					Distance: c.distanceMetric(),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("created collection %s (%d dimensions)", name, vectorSize)
	return nil
}

// DropCollection removes a codebase's collection entirely (reindex
// force path, or an explicit zillizDropCollection retry).
func (c *Client) DropCollection(ctx context.Context, canonicalRoot string) error {
	return c.client.DeleteCollection(ctx, c.collectionFor(canonicalRoot))
}

// Upsert stores or updates chunk documents with their embeddings.
func (c *Client) Upsert(ctx context.Context, canonicalRoot string, docs []Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("document/vector count mismatch: %d docs, %d vectors", len(docs), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*qdrant.Value{
			"relative_path": qdrant.NewValueString(d.RelativePath),
			"start_line":    qdrant.NewValueInt(int64(d.StartLine)),
			"end_line":      qdrant.NewValueInt(int64(d.EndLine)),
			"language":      qdrant.NewValueString(d.Language),
			"symbol_id":     qdrant.NewValueString(d.SymbolID),
			"symbol_label":  qdrant.NewValueString(d.SymbolLabel),
			"content":       qdrant.NewValueString(d.Content),
			"indexed_at":    qdrant.NewValueString(d.IndexedAt.Format(time.RFC3339)),
		}

		points[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.New().String()}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vectors[i]},
				},
			},
			Payload: payload,
		}
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collectionFor(canonicalRoot),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Query runs a single vector similarity search against one codebase's
// collection, honoring a minimum similarity floor.
func (c *Client) Query(ctx context.Context, canonicalRoot string, vector []float32, limit int, floor float64) ([]QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}
	limitUint := uint64(limit)

	queryPoints := &qdrant.QueryPoints{
		CollectionName: c.collectionFor(canonicalRoot),
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		ScoreThreshold: float32Ptr(float32(floor)),
	}

	points, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	results := make([]QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.Payload
		indexedAt, _ := time.Parse(time.RFC3339, payload["indexed_at"].GetStringValue())

		results = append(results, QueryResult{
			Score: float64(p.Score),
			Document: Document{
				RelativePath: payload["relative_path"].GetStringValue(),
				StartLine:    int(payload["start_line"].GetIntegerValue()),
				EndLine:      int(payload["end_line"].GetIntegerValue()),
				Language:     payload["language"].GetStringValue(),
				SymbolID:     payload["symbol_id"].GetStringValue(),
				SymbolLabel:  payload["symbol_label"].GetStringValue(),
				Content:      payload["content"].GetStringValue(),
				IndexedAt:    indexedAt,
			},
		})
	}
	return results, nil
}

// DeleteByPaths removes all chunks belonging to the given relative
// paths, used by incremental sync's removed/modified file handling.
func (c *Client) DeleteByPaths(ctx context.Context, canonicalRoot string, relativePaths []string) error {
	if len(relativePaths) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, len(relativePaths))
	for i, p := range relativePaths {
		conditions[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "relative_path",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: p}},
				},
			},
		}
	}

	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collectionFor(canonicalRoot),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Should: conditions},
			},
		},
	})
	return err
}

// CountChunks returns the number of chunks stored for a codebase.
func (c *Client) CountChunks(ctx context.Context, canonicalRoot string) (int, error) {
	count, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.collectionFor(canonicalRoot),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return int(count), nil
}

// GetBackendInfo reports the provider identity contributed to the
// fingerprint.
func (c *Client) GetBackendInfo() BackendInfo {
	return BackendInfo{Provider: c.cfg.Provider}
}

// --- completion marker document ---

const completionMarkerPointID = "00000000-0000-0000-0000-000000000001"

// WriteCompletionMarker persists the durable completion-proof document
// for a codebase, as a dedicated point in its collection.
func (c *Client) WriteCompletionMarker(ctx context.Context, canonicalRoot string, marker types.CompletionMarker) error {
	payload := map[string]*qdrant.Value{
		"kind":                  qdrant.NewValueString(marker.Kind),
		"codebase_path":         qdrant.NewValueString(marker.CodebasePath),
		"embedding_provider":    qdrant.NewValueString(marker.Fingerprint.EmbeddingProvider),
		"embedding_model":       qdrant.NewValueString(marker.Fingerprint.EmbeddingModel),
		"embedding_dimension":   qdrant.NewValueInt(int64(marker.Fingerprint.EmbeddingDimension)),
		"vector_store_provider": qdrant.NewValueString(marker.Fingerprint.VectorStoreProvider),
		"schema_version":        qdrant.NewValueString(marker.Fingerprint.SchemaVersion),
		"indexed_files":         qdrant.NewValueInt(int64(marker.IndexedFiles)),
		"total_chunks":          qdrant.NewValueInt(int64(marker.TotalChunks)),
		"completed_at":          qdrant.NewValueString(marker.CompletedAt),
		"run_id":                qdrant.NewValueString(marker.RunID),
	}

	zeroVec := make([]float32, c.cfg.VectorSize)
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collectionFor(canonicalRoot),
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: completionMarkerPointID}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: zeroVec},
				},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// ReadCompletionMarker fetches the completion marker, returning nil
// without error if none exists.
func (c *Client) ReadCompletionMarker(ctx context.Context, canonicalRoot string) (*types.CompletionMarker, error) {
	exists, err := c.HasCollection(ctx, canonicalRoot)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return c.readCompletionMarkerFromCollection(ctx, c.collectionFor(canonicalRoot))
}

// ReadCompletionMarkerByCollection fetches the completion marker from
// an already-known collection name, used by the non-destructive cloud
// reconcile pass which walks collections directly rather than
// re-deriving names from a canonical root it doesn't have yet.
func (c *Client) ReadCompletionMarkerByCollection(ctx context.Context, collectionName string) (*types.CompletionMarker, error) {
	return c.readCompletionMarkerFromCollection(ctx, collectionName)
}

func (c *Client) readCompletionMarkerFromCollection(ctx context.Context, collectionName string) (*types.CompletionMarker, error) {
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName,
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: completionMarkerPointID}}},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completion marker: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	payload := points[0].Payload
	return &types.CompletionMarker{
		Kind:         payload["kind"].GetStringValue(),
		CodebasePath: payload["codebase_path"].GetStringValue(),
		Fingerprint: types.IndexFingerprint{
			EmbeddingProvider:   payload["embedding_provider"].GetStringValue(),
			EmbeddingModel:      payload["embedding_model"].GetStringValue(),
			EmbeddingDimension:  int(payload["embedding_dimension"].GetIntegerValue()),
			VectorStoreProvider: payload["vector_store_provider"].GetStringValue(),
			SchemaVersion:       payload["schema_version"].GetStringValue(),
		},
		IndexedFiles: int(payload["indexed_files"].GetIntegerValue()),
		TotalChunks:  int(payload["total_chunks"].GetIntegerValue()),
		CompletedAt:  payload["completed_at"].GetStringValue(),
		RunID:        payload["run_id"].GetStringValue(),
	}, nil
}

// ClearCompletionMarker removes the marker document, done at indexing
// start and on failure per invariant 3 of spec section 3.
func (c *Client) ClearCompletionMarker(ctx context.Context, canonicalRoot string) error {
	exists, err := c.HasCollection(ctx, canonicalRoot)
	if err != nil || !exists {
		return err
	}

	_, err = c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collectionFor(canonicalRoot),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: completionMarkerPointID}}},
				},
			},
		},
	})
	return err
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) distanceMetric() qdrant.Distance {
	switch c.cfg.DistanceMetric {
	case "cosine":
		return qdrant.Distance_Cosine
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func float32Ptr(v float32) *float32 { return &v }
