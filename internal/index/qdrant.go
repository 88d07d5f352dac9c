package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/supportrag-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix is prepended to every store name to form the alias
	// that points at the live collection (default: "support_").
	CollectionPrefix string

	// VectorSize is the dimensionality of the embeddings stored.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// recordNamespace derives stable point UUIDs from record IDs.
var recordNamespace = uuid.MustParse("6f1c9a52-8d1e-4c52-9a7e-3f0b2f1d7c44")

// QdrantBackend stores each knowledge store in its own generation-stamped
// collection and exposes the live one through an alias. Rebuilds fill a new
// collection and swap the alias in a single UpdateAliases call.
type QdrantBackend struct {
	client *qdrant.Client
	cfg    *QdrantConfig

	mu   sync.Mutex
	live map[string]string
}

// NewQdrantBackend connects to Qdrant.
func NewQdrantBackend(cfg *QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "support_"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantBackend{client: client, cfg: cfg, live: make(map[string]string)}, nil
}

// Client exposes the underlying client for readiness checks.
func (b *QdrantBackend) Client() *qdrant.Client { return b.client }

func (b *QdrantBackend) alias(name string) string {
	return b.cfg.CollectionPrefix + name
}

// Open implements rag.Backend. When no alias exists yet, an empty collection
// is created and aliased.
func (b *QdrantBackend) Open(ctx context.Context, name string) (rag.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if coll, ok := b.live[name]; ok {
		return &QdrantIndex{client: b.client, collection: coll}, nil
	}

	alias := b.alias(name)
	aliases, err := b.client.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == alias {
			b.live[name] = a.GetCollectionName()
			return &QdrantIndex{client: b.client, collection: a.GetCollectionName()}, nil
		}
	}

	idx, err := b.createGeneration(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := b.client.UpdateAliases(ctx, []*qdrant.AliasOperations{
		qdrant.NewAliasCreate(alias, idx.collection),
	}); err != nil {
		return nil, fmt.Errorf("qdrant: create alias %q: %w", alias, err)
	}
	b.live[name] = idx.collection
	return idx, nil
}

// Stage implements rag.Backend.
func (b *QdrantBackend) Stage(ctx context.Context, name string) (rag.Index, error) {
	return b.createGeneration(ctx, name)
}

func (b *QdrantBackend) createGeneration(ctx context.Context, name string) (*QdrantIndex, error) {
	coll := fmt.Sprintf("%s-%019d", b.alias(name), time.Now().UnixNano())
	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: coll,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     b.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", coll, err)
	}
	return &QdrantIndex{client: b.client, collection: coll}, nil
}

// Commit implements rag.Backend. Points are durable on upsert, so committing
// the live collection is a no-op; committing another generation swaps the
// alias. The previous collection is kept until it is discarded.
func (b *QdrantBackend) Commit(ctx context.Context, name string, idx rag.Index) error {
	q, ok := idx.(*QdrantIndex)
	if !ok {
		return fmt.Errorf("qdrant: cannot commit %T", idx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.live[name]
	if prev == q.collection {
		return nil
	}

	alias := b.alias(name)
	ops := []*qdrant.AliasOperations{}
	if prev != "" {
		ops = append(ops, qdrant.NewAliasDelete(alias))
	}
	ops = append(ops, qdrant.NewAliasCreate(alias, q.collection))
	if err := b.client.UpdateAliases(ctx, ops); err != nil {
		return fmt.Errorf("qdrant: swap alias %q: %w", alias, err)
	}
	b.live[name] = q.collection
	return nil
}

// Discard implements rag.Backend. Only generation collections of name are
// dropped; the aliased live collection is left alone.
func (b *QdrantBackend) Discard(ctx context.Context, name string, idx rag.Index) error {
	q, ok := idx.(*QdrantIndex)
	if !ok {
		return fmt.Errorf("qdrant: cannot discard %T", idx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !discardable(b.live[name], b.alias(name), q.collection) {
		return nil
	}
	if err := b.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("qdrant: drop collection %q: %w", q.collection, err)
	}
	return nil
}

// discardable reports whether coll is a non-live generation of alias.
func discardable(live, alias, coll string) bool {
	return coll != live && strings.HasPrefix(coll, alias+"-")
}

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// QdrantIndex is a rag.Index over a single Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// Add implements rag.Index.
func (q *QdrantIndex) Add(ctx context.Context, recs []rag.Record, vecs [][]float32) error {
	if len(recs) != len(vecs) {
		return fmt.Errorf("qdrant: %d records but %d vectors", len(recs), len(vecs))
	}
	if len(recs) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(recs))
	for i, rec := range recs {
		payload, err := recordPayload(rec)
		if err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(rec.ID),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Remove implements rag.Index.
func (q *QdrantIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		points = append(points, pointID(id))
	}
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// pointID derives the stable point ID of a record.
func pointID(recordID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(recordNamespace, []byte(recordID)).String())
}

// Search implements rag.Index.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if k <= 0 {
		return []rag.Hit{}, nil
	}
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]rag.Hit, 0, len(results))
	for _, r := range results {
		rec, err := payloadRecord(r.GetPayload())
		if err != nil {
			return nil, err
		}
		hits = append(hits, rag.Hit{Record: rec, Similarity: rag.Similarity(float64(r.GetScore()))})
	}
	return hits, nil
}

// Len implements rag.Index.
func (q *QdrantIndex) Len(ctx context.Context) (int, error) {
	exact := true
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// recordPayload flattens a record into a point payload. The full record is
// kept as JSON under "record"; the flat fields support filtering in the
// Qdrant console.
func recordPayload(rec rag.Record) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("qdrant: encode record %s: %w", rec.ID, err)
	}
	return map[string]any{
		"record":   string(raw),
		"id":       rec.ID,
		"content":  rec.Content,
		"source":   string(rec.Kind),
		"category": rec.Category,
	}, nil
}

func payloadRecord(p map[string]*qdrant.Value) (rag.Record, error) {
	var rec rag.Record
	v, ok := p["record"]
	if !ok {
		return rec, fmt.Errorf("qdrant: point payload has no record")
	}
	if err := json.Unmarshal([]byte(v.GetStringValue()), &rec); err != nil {
		return rec, fmt.Errorf("qdrant: decode record: %w", err)
	}
	return rec, nil
}
