package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/pipeerr"
)

// QdrantClient is the vector store adapter, speaking the Qdrant HTTP API
type QdrantClient struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewQdrantClient creates a vector store client. The dimension is
// declared once here and enforced on every upsert.
func NewQdrantClient(baseURL, collection string, dimension int, upsertsPerSecond int) *QdrantClient {
	if upsertsPerSecond <= 0 {
		upsertsPerSecond = 20
	}
	return &QdrantClient{
		baseURL:    baseURL,
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(upsertsPerSecond), upsertsPerSecond),
	}
}

// Dimension returns the declared vector dimension
func (c *QdrantClient) Dimension() int {
	return c.dimension
}

// InitializeSchema creates the collection with the declared dimension.
// Idempotent: an already-existing collection is not an error.
func (c *QdrantClient) InitializeSchema(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}

	status, respBody, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s", c.collection), body)
	if err != nil {
		return pipeerr.NewStorageError("qdrant", "create_collection", err)
	}
	if status == http.StatusOK || status == http.StatusConflict {
		return nil
	}
	// Qdrant reports an existing collection as a 400 with a message
	if status == http.StatusBadRequest && bytes.Contains(respBody, []byte("already exists")) {
		return nil
	}
	return pipeerr.NewStorageError("qdrant", "create_collection",
		fmt.Errorf("unexpected status %d: %s", status, truncateBody(respBody)))
}

// HealthCheck reports whether the vector store is reachable
func (c *QdrantClient) HealthCheck(ctx context.Context) error {
	status, respBody, err := c.do(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return pipeerr.NewStorageError("qdrant", "health_check", err)
	}
	if status != http.StatusOK {
		return pipeerr.NewStorageError("qdrant", "health_check",
			fmt.Errorf("unexpected status %d: %s", status, truncateBody(respBody)))
	}
	return nil
}

// qdrantPoint is the wire shape of one upserted point
type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// UpsertPoints writes moment vectors keyed by (match, moment, player).
// Vectors whose length differs from the declared dimension are rejected
// before the request is sent.
func (c *QdrantClient) UpsertPoints(ctx context.Context, moments []*models.MomentVector) error {
	if len(moments) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(moments))
	for i, m := range moments {
		if len(m.Vector) != c.dimension {
			return pipeerr.NewStorageError("qdrant", "upsert_points",
				fmt.Errorf("vector dimension %d does not match declared %d", len(m.Vector), c.dimension))
		}

		payload := map[string]interface{}{
			"match_id":   m.MatchID.String(),
			"moment_id":  m.MomentID,
			"player_id":  m.SteamID,
			"start_tick": m.StartTick,
			"end_tick":   m.EndTick,
		}
		for k, v := range m.Payload {
			payload[k] = v
		}

		points[i] = qdrantPoint{
			ID:      pointID(m),
			Vector:  m.Vector,
			Payload: payload,
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return pipeerr.NewStorageError("qdrant", "upsert_points", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", c.collection),
		map[string]interface{}{"points": points})
	if err != nil {
		return pipeerr.NewStorageError("qdrant", "upsert_points", err)
	}
	if status != http.StatusOK {
		return pipeerr.NewStorageError("qdrant", "upsert_points",
			fmt.Errorf("unexpected status %d: %s", status, truncateBody(respBody)))
	}
	return nil
}

// SearchResult is one similarity hit
type SearchResult struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Search returns the top-K nearest moments to the query vector
func (c *QdrantClient) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if len(vector) != c.dimension {
		return nil, pipeerr.NewStorageError("qdrant", "search",
			fmt.Errorf("vector dimension %d does not match declared %d", len(vector), c.dimension))
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	status, respBody, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", c.collection), body)
	if err != nil {
		return nil, pipeerr.NewStorageError("qdrant", "search", err)
	}
	if status != http.StatusOK {
		return nil, pipeerr.NewStorageError("qdrant", "search",
			fmt.Errorf("unexpected status %d: %s", status, truncateBody(respBody)))
	}

	var parsed struct {
		Result []SearchResult `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, pipeerr.NewStorageError("qdrant", "search", err)
	}
	return parsed.Result, nil
}

func (c *QdrantClient) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// pointID derives a stable UUID-shaped identifier from the moment key
func pointID(m *models.MomentVector) string {
	// The match UUID already provides 128 bits of identity; fold the
	// moment and player into its low bytes for a stable per-key id.
	id := m.MatchID
	id[8] ^= byte(m.MomentID >> 24)
	id[9] ^= byte(m.MomentID >> 16)
	id[10] ^= byte(m.MomentID >> 8)
	id[11] ^= byte(m.MomentID)
	id[12] ^= byte(m.SteamID >> 24)
	id[13] ^= byte(m.SteamID >> 16)
	id[14] ^= byte(m.SteamID >> 8)
	id[15] ^= byte(m.SteamID)
	return id.String()
}

func truncateBody(b []byte) string {
	const maxLen = 200
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
