package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/proximity-stack/common/middleware"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/handlers"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/pipeline"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/query"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/repository"
)

func newTestRouter(t *testing.T) (http.Handler, *repository.InMemoryRepository) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	h := handlers.NewSensorHandler(
		pipeline.New(repo, pipeline.SourceHTTP, nil),
		query.NewEngine(repo, nil),
		repo,
		nil,
		handlers.Config{},
		nil,
	)
	return NewRouter(h), repo
}

func envelopeBody(reading string) string {
	data := base64.StdEncoding.EncodeToString([]byte(reading))
	return `{"message": {"data": "` + data + `", "messageId": "1"}, "subscription": "projects/p/subscriptions/s"}`
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func count(t *testing.T, repo *repository.InMemoryRepository) int {
	t.Helper()
	n, err := repo.Count(context.Background(), models.RecordFilter{})
	require.NoError(t, err)
	return n
}

func TestRouter_PostValidEnvelope(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := do(router, http.MethodPost, "/sensor-records",
		envelopeBody(`{"v0": 100013, "v11": 0, "v18": 2.72, "Time": "2022-11-08T04:00:04.317801"}`))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"message": "Data saved successfully!"}`, rr.Body.String())
	require.Equal(t, 1, count(t, repo))

	list, err := repo.List(context.Background(), models.RecordFilter{}, 1, 0)
	require.NoError(t, err)
	assert.False(t, list[0].HumanPresence)
	assert.Equal(t, int64(100013), list[0].SensorID)
}

func TestRouter_PostInvalidBase64(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := do(router, http.MethodPost, "/sensor-records", `{"message": {"data": "invalid_base64"}}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid base64-encoded string")
	assert.Zero(t, count(t, repo))
}

func TestRouter_FiftyRecordPagination(t *testing.T) {
	router, repo := newTestRouter(t)
	base := time.Date(2022, 11, 8, 4, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		reading := fmt.Sprintf(`{"v0": %d, "v11": %d, "v18": 1.5, "Time": %q}`,
			100000+i%5, i%2, base.Add(time.Duration(i)*time.Second).Format("2006-01-02T15:04:05"))
		rr := do(router, http.MethodPost, "/sensor-records", envelopeBody(reading))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	require.Equal(t, 50, count(t, repo))

	pageLen := func(target string) (int, int) {
		rr := do(router, http.MethodGet, target, "")
		if rr.Code != http.StatusOK {
			return rr.Code, 0
		}
		var body struct {
			Data []json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return rr.Code, len(body.Data)
	}

	code, n := pageLen("/sensor-records?page=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 20, n)

	code, n = pageLen("/sensor-records?page=3")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, n)

	code, _ = pageLen("/sensor-records?page=4")
	assert.Equal(t, http.StatusNotFound, code)

	code, n = pageLen("/sensor-records?sensor_id=100003")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, n)

	code, n = pageLen("/sensor-records?start_time=2022-11-08T04:00:10&end_time=2022-11-08T04:00:19")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, n)

	code, n = pageLen("/sensor-records?start_time=2022-11-08T04:00:10")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 20, n, "a single bound does not filter")
}

func TestRouter_GetInvalidPage(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(router, http.MethodGet, "/sensor-records?page=abc", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
}

func TestRouter_LegacyPath(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := do(router, http.MethodPost, "/api/sensor_data/",
		envelopeBody(`{"v0": 1, "v11": true, "v18": 3, "Time": "2022-11-08T04:00:04Z"}`))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1, count(t, repo))

	rr = do(router, http.MethodGet, "/api/sensor_data/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/"} {
		rr := do(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := do(router, http.MethodGet, "/metrics", "")
	assert.Contains(t, rr.Body.String(), "sensor_ingest")
}

func TestRouter_RequestID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get(middleware.RequestIDHeader))

	rr = do(router, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}
