package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/proximity-stack/common/database"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
)

// maxResultWindow mirrors the OpenSearch index.max_result_window default.
// from+size beyond it is rejected by the cluster.
const maxResultWindow = 10000

var ErrResultWindowExceeded = errors.New("page is beyond the opensearch result window")

// OpenSearchConfig holds connection and index settings for the OpenSearch
// record store.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	ShardCount    int
	ReplicaCount  int
	// Refresh controls write visibility: "true", "false" or "wait_for".
	Refresh string
}

func DefaultOpenSearchConfig() OpenSearchConfig {
	return OpenSearchConfig{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "sensor-records",
		ShardCount:    1,
		ReplicaCount:  0,
		Refresh:       "wait_for",
	}
}

// OpenSearchRepository stores records in a single index. IDs come from the
// version counter of a sequence document, which OpenSearch increments
// atomically on every write.
type OpenSearchRepository struct {
	client *opensearch.Client
	cfg    OpenSearchConfig
}

func NewOpenSearchRepository(ctx context.Context, cfg OpenSearchConfig) (*OpenSearchRepository, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	r := &OpenSearchRepository{client: client, cfg: cfg}
	if err := r.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	if err := r.ensureIndices(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenSearchRepository) recordIndex() string {
	return r.cfg.IndexPrefix
}

func (r *OpenSearchRepository) sequenceIndex() string {
	return r.cfg.IndexPrefix + "-sequence"
}

func (r *OpenSearchRepository) Close() {}

func (r *OpenSearchRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.PingContext(ctx)
	defer cancel()

	res, err := r.client.Info(r.client.Info.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

func (r *OpenSearchRepository) ensureIndices(ctx context.Context) error {
	mappings := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   r.cfg.ShardCount,
			"number_of_replicas": r.cfg.ReplicaCount,
		},
		"mappings": map[string]interface{}{
			"dynamic": "strict",
			"properties": map[string]interface{}{
				"id":             map[string]interface{}{"type": "long"},
				"sensor_id":      map[string]interface{}{"type": "long"},
				"human_presence": map[string]interface{}{"type": "boolean"},
				"dwell_time":     map[string]interface{}{"type": "double"},
				"timestamp":      map[string]interface{}{"type": "date_nanos"},
			},
		},
	}
	if err := r.createIndex(ctx, r.recordIndex(), mappings); err != nil {
		return err
	}

	sequence := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": r.cfg.ReplicaCount,
		},
		"mappings": map[string]interface{}{"enabled": false},
	}
	return r.createIndex(ctx, r.sequenceIndex(), sequence)
}

func (r *OpenSearchRepository) createIndex(ctx context.Context, name string, body map[string]interface{}) error {
	exists, err := r.client.Indices.Exists([]string{name}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", name, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	res, err := r.client.Indices.Create(name,
		r.client.Indices.Create.WithContext(ctx),
		r.client.Indices.Create.WithBody(opensearchutil.NewJSONReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		// Another replica may have created it first.
		if bytes.Contains(bodyBytes, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s - %s", name, res.Status(), string(bodyBytes))
	}
	return nil
}

// nextID bumps the sequence document and returns its new version.
func (r *OpenSearchRepository) nextID(ctx context.Context) (int64, error) {
	res, err := r.client.Index(r.sequenceIndex(), bytes.NewReader([]byte(`{}`)),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID("sensor_records"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate record id: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("failed to allocate record id: %s", res.String())
	}

	var out struct {
		Version int64 `json:"_version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode id allocation response: %w", err)
	}
	if out.Version < 1 {
		return 0, errors.New("id allocation returned no version")
	}
	return out.Version, nil
}

type osDocument struct {
	ID            int64   `json:"id"`
	SensorID      int64   `json:"sensor_id"`
	HumanPresence bool    `json:"human_presence"`
	DwellTime     float64 `json:"dwell_time"`
	Timestamp     string  `json:"timestamp"`
}

func (r *OpenSearchRepository) Insert(ctx context.Context, record *models.SensorRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}

	doc := osDocument{
		ID:            id,
		SensorID:      record.SensorID,
		HumanPresence: record.HumanPresence,
		DwellTime:     record.DwellTime,
		Timestamp:     record.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	opts := []func(*opensearchapi.IndexRequest){
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(strconv.FormatInt(id, 10)),
		r.client.Index.WithOpType("create"),
	}
	if r.cfg.Refresh != "" {
		opts = append(opts, r.client.Index.WithRefresh(r.cfg.Refresh))
	}

	res, err := r.client.Index(r.recordIndex(), opensearchutil.NewJSONReader(doc), opts...)
	if err != nil {
		return fmt.Errorf("failed to index sensor record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index sensor record: %s", res.String())
	}

	record.ID = id
	return nil
}

func (r *OpenSearchRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	body := map[string]interface{}{"query": buildQuery(filter)}
	res, err := r.client.Count(
		r.client.Count.WithContext(ctx),
		r.client.Count.WithIndex(r.recordIndex()),
		r.client.Count.WithBody(opensearchutil.NewJSONReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count error: %s", res.String())
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

func (r *OpenSearchRepository) List(ctx context.Context, filter models.RecordFilter, limit, offset int) ([]*models.SensorRecord, error) {
	if err := checkWindow(limit, offset); err != nil {
		return nil, err
	}
	if offset+limit > maxResultWindow {
		return nil, ErrResultWindowExceeded
	}

	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.recordIndex()),
		r.client.Search.WithBody(opensearchutil.NewJSONReader(buildSearch(filter, limit, offset))),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source osDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	records := make([]*models.SensorRecord, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		ts, err := time.Parse(time.RFC3339Nano, hit.Source.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("record %d has invalid timestamp: %w", hit.Source.ID, err)
		}
		records = append(records, &models.SensorRecord{
			ID:            hit.Source.ID,
			SensorID:      hit.Source.SensorID,
			HumanPresence: hit.Source.HumanPresence,
			DwellTime:     hit.Source.DwellTime,
			Timestamp:     ts.UTC(),
		})
	}
	return records, nil
}

func buildQuery(filter models.RecordFilter) map[string]interface{} {
	var clauses []interface{}
	if filter.SensorID != nil {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"sensor_id": *filter.SensorID},
		})
	}
	if filter.TimeRange != nil {
		clauses = append(clauses, map[string]interface{}{
			"range": map[string]interface{}{
				"timestamp": map[string]interface{}{
					"gte": filter.TimeRange.Start.UTC().Format(time.RFC3339Nano),
					"lte": filter.TimeRange.End.UTC().Format(time.RFC3339Nano),
				},
			},
		})
	}

	if len(clauses) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": clauses},
	}
}

func buildSearch(filter models.RecordFilter, limit, offset int) map[string]interface{} {
	return map[string]interface{}{
		"query": buildQuery(filter),
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "desc"}},
		},
		"from": offset,
		"size": limit,
	}
}
