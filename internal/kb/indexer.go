package kb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/llm"
)

// Indexer writes knowledge-base chunks into qdrant. Each tenant and
// category pair gets its own collection named kb_{tenant}_{category}.
type Indexer struct {
	client    *qdrant.Client
	embedder  llm.Embedder
	dimension int
	chunkSize int
	logger    *slog.Logger
}

// NewIndexer connects to the configured qdrant server.
func NewIndexer(cfg config.VectorConfig, embedder llm.Embedder, logger *slog.Logger) (*Indexer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vector store url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	parsed := cfg.URL
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "http://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return nil, fmt.Errorf("parse vector store url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid vector store port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create vector store client: %w", err)
	}
	return &Indexer{
		client:    client,
		embedder:  embedder,
		dimension: cfg.Dimension,
		chunkSize: 1000,
		logger:    logger,
	}, nil
}

// Close releases the client connection.
func (ix *Indexer) Close() error {
	return ix.client.Close()
}

// CollectionName returns the collection used for one tenant category.
func CollectionName(tenant, category string) string {
	return fmt.Sprintf("kb_%s_%s", tenant, category)
}

// IndexDocument extracts nothing itself; callers hand it plain text.
// Each chunk that embeds successfully is upserted; chunks that fail to
// embed are skipped so one bad chunk never loses the rest.
func (ix *Indexer) IndexDocument(ctx context.Context, tenant, category, document, text string) error {
	if strings.TrimSpace(text) == "" {
		ix.logger.Debug("skipping blank document", "document", document)
		return nil
	}

	collection := CollectionName(tenant, category)
	if err := ix.ensureCollection(ctx, collection); err != nil {
		return err
	}

	chunks := ChunkText(text, ix.chunkSize)
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := ix.embedder.Embed(ctx, chunk)
		if err != nil {
			ix.logger.Warn("chunk embedding failed, skipping",
				"document", document, "chunk", i, "error", err)
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(map[string]any{
				"tenant":   tenant,
				"category": category,
				"document": document,
				"chunk":    int64(i),
				"text":     chunk,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	wait := true
	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upsert %s into %s: %w", document, collection, err)
	}
	ix.logger.Info("indexed document",
		"document", document, "collection", collection, "chunks", len(points))
	return nil
}

// DeleteDocument removes every chunk of one document from its collection.
func (ix *Indexer) DeleteDocument(ctx context.Context, tenant, category, document string) error {
	collection := CollectionName(tenant, category)
	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return err
	}
	wait := true
	_, err = ix.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document", document),
			},
		}),
		Wait: &wait,
	})
	if err != nil {
		return fmt.Errorf("delete %s from %s: %w", document, collection, err)
	}
	return nil
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	Document string
	Text     string
	Score    float32
}

// Search retrieves the chunks closest to query in a tenant category.
func (ix *Indexer) Search(ctx context.Context, tenant, category, query string, limit int) ([]SearchResult, error) {
	collection := CollectionName(tenant, category)
	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, nil
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}
	lim := uint64(limit)
	points, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r := SearchResult{Score: p.Score}
		if v, ok := p.Payload["document"]; ok {
			r.Document = v.GetStringValue()
		}
		if v, ok := p.Payload["text"]; ok {
			r.Text = v.GetStringValue()
		}
		out = append(out, r)
	}
	return out, nil
}

func (ix *Indexer) ensureCollection(ctx context.Context, collection string) error {
	exists, err := ix.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}
	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(ix.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	return nil
}
