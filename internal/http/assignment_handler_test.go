package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"surveytrack-data/internal/repository"
	"surveytrack-data/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryAssignmentsRepo()
	assignments := service.NewAssignmentService(repo, nil, logger)
	queries := service.NewQueryService(repo, logger)

	router := NewRouter(logger)
	router.RegisterAssignmentRoutes(NewAssignmentHandler(assignments, queries, nil, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func proposeHTTP(t *testing.T, srv *httptest.Server, deviceID, surveyID, from, to string) map[string]any {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/survey/api/v1/assignments", map[string]any{
		"device_id":   deviceID,
		"survey_id":   surveyID,
		"from_date":   from,
		"to_date":     to,
		"assigned_by": "admin-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(ResultSuccess), body["code"])
	return body["result"].(map[string]any)
}

func TestHandler_ProposeAndGet(t *testing.T) {
	srv := newTestServer(t)

	created := proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-03-01")
	require.Equal(t, "ACTIVE", created["status"])
	id := created["assignment_id"].(string)
	require.NotEmpty(t, id)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/assignments/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Equal(t, "D1", result["device_id"])
	require.Equal(t, "S1", result["survey_id"])
}

func TestHandler_GetUnknownIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/assignments/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, float64(ResultNotFound), body["code"])
}

func TestHandler_ProposeConflictCarriesBlockingRecords(t *testing.T) {
	srv := newTestServer(t)

	blocking := proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-03-01")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/survey/api/v1/assignments", map[string]any{
		"device_id":   "D1",
		"survey_id":   "S2",
		"from_date":   "2024-02-01",
		"to_date":     "2024-02-15",
		"assigned_by": "admin-1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, float64(ResultConflict), body["code"])

	result := body["result"].(map[string]any)
	conflicts := result["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	first := conflicts[0].(map[string]any)
	require.Equal(t, blocking["assignment_id"], first["assignment_id"])
	require.Equal(t, "S1", first["survey_id"])
}

func TestHandler_ProposeValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/survey/api/v1/assignments", map[string]any{
		"device_id":   "D1",
		"survey_id":   "S1",
		"from_date":   "not-a-date",
		"to_date":     "2024-02-15",
		"assigned_by": "admin-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(ResultValidation), body["code"])

	// inverted range is caught by the engine
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/survey/api/v1/assignments", map[string]any{
		"device_id":   "D1",
		"survey_id":   "S1",
		"from_date":   "2024-03-01",
		"to_date":     "2024-02-15",
		"assigned_by": "admin-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(ResultValidation), body["code"])
}

func TestHandler_ExtendAndRevokeFlow(t *testing.T) {
	srv := newTestServer(t)

	created := proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-01-31")
	id := created["assignment_id"].(string)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/survey/api/v1/assignments/"+id+"/extend", map[string]any{
		"to_date": "2024-02-20",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Contains(t, result["to_date"], "2024-02-20")

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/survey/api/v1/assignments/"+id+"/revoke", map[string]any{
		"outcome": "cancelled",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = body["result"].(map[string]any)
	require.Equal(t, "CANCELLED", result["status"])

	// second revoke is an invalid transition
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/survey/api/v1/assignments/"+id+"/revoke", map[string]any{
		"outcome": "COMPLETED",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, float64(ResultInvalidTransition), body["code"])

	// so is extending a terminal record
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/survey/api/v1/assignments/"+id+"/extend", map[string]any{
		"to_date": "2024-03-20",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, float64(ResultInvalidTransition), body["code"])
}

func TestHandler_ConflictDryRun(t *testing.T) {
	srv := newTestServer(t)

	proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-01-31")

	url := fmt.Sprintf("%s/survey/api/v1/assignments/conflicts?device_id=D1&from_date=%s&to_date=%s",
		srv.URL, "2024-01-15", "2024-02-15")
	resp, body := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Len(t, result["conflicts"].([]any), 1)

	url = fmt.Sprintf("%s/survey/api/v1/assignments/conflicts?device_id=D1&from_date=%s&to_date=%s",
		srv.URL, "2024-02-01", "2024-02-15")
	resp, body = doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = body["result"].(map[string]any)
	require.Empty(t, result["conflicts"].([]any))
}

func TestHandler_ListWithFiltersAndPagination(t *testing.T) {
	srv := newTestServer(t)

	proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-01-10")
	proposeHTTP(t, srv, "D1", "S2", "2024-02-01", "2024-02-10")
	proposeHTTP(t, srv, "D2", "S1", "2024-03-01", "2024-03-10")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/assignments?device_id=D1&page=1&size=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Equal(t, float64(2), result["total"])
	items := result["items"].([]any)
	require.Len(t, items, 1)
	// from_date desc: February engagement first
	require.Equal(t, "S2", items[0].(map[string]any)["survey_id"])

	pagination := result["pagination"].(map[string]any)
	require.Equal(t, float64(1), pagination["page"])
	require.Equal(t, "from_date", pagination["sort"])
}

func TestHandler_SurveyHistory(t *testing.T) {
	srv := newTestServer(t)

	proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-01-10")
	proposeHTTP(t, srv, "D2", "S1", "2024-02-01", "2024-02-10")
	proposeHTTP(t, srv, "D3", "S2", "2024-02-01", "2024-02-10")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/surveys/S1/assignments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	require.Equal(t, float64(2), result["total"])
	items := result["items"].([]any)
	require.Equal(t, "D2", items[0].(map[string]any)["device_id"])
}

func TestHandler_AvailableDevices(t *testing.T) {
	srv := newTestServer(t)

	proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-03-01")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/devices/available?device_ids=D1,D2,D3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	ids := result["device_ids"].([]any)
	require.Equal(t, []any{"D2", "D3"}, ids)

	// no universe and no registry configured
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/devices/available", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, float64(ResultValidation), body["code"])
}

func TestHandler_DeleteAssignment(t *testing.T) {
	srv := newTestServer(t)

	created := proposeHTTP(t, srv, "D1", "S1", "2024-01-01", "2024-01-31")
	id := created["assignment_id"].(string)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/survey/api/v1/assignments/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/survey/api/v1/assignments/"+id, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
