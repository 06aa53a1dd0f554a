package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/queue"
	mid "github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"
	"github.com/kinfolk-ai/kinfolk/pkg/store"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterKey = "test-master-key"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "server.db")

	k, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(k.Close)

	return New(&mid.App{
		Kinfolk:      k,
		Processor:    &queue.Processor{App: k},
		MasterAPIKey: masterKey,
		MasterUserID: 1,
	})
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+masterKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const extractionBody = `{
  "source": "census-1880.pdf",
  "page": %d,
  "auto_merge": false,
  "result": {
    "people": [{"primary_name": "John Smith", "name_variants": ["Johann Schmidt"], "confidence": 0.9}],
    "events": [{"person_name": "John Smith", "event_type": "birth", "date": "1850", "confidence": 0.9}],
    "relationships": []
  }
}`

func ingestPage(t *testing.T, e *echo.Echo, page int) queue.IngestResult {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/api/extractions", fmt.Sprintf(extractionBody, page))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[queue.IngestResult](t, rec)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	e := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/people", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/people", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractionDuplicatesAndMerge(t *testing.T) {
	e := newTestServer(t)

	first := ingestPage(t, e, 1)
	assert.Equal(t, 1, first.Extraction.PeopleCreated)
	assert.Nil(t, first.Reconcile)
	ingestPage(t, e, 2)

	rec := do(t, e, http.MethodGet, "/api/duplicates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	candidates := decode[[]reconcile.Candidate](t, rec)
	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].Confidence)

	rec = do(t, e, http.MethodGet, "/api/duplicates?min_confidence=1.5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := fmt.Sprintf(`{"keep_id": %d, "merge_id": %d, "confidence": 1, "reasons": ["same birth date"]}`,
		candidates[0].PersonA, candidates[0].PersonB)
	rec = do(t, e, http.MethodPost, "/api/merges", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(candidates[0].PersonA), decode[map[string]any](t, rec)["keep_id"])

	rec = do(t, e, http.MethodPost, "/api/merges", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/merges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	merges := decode[[]genealogy.MergeRecord](t, rec)
	require.Len(t, merges, 1)
	assert.Equal(t, "user:1", merges[0].MergedBy)

	rec = do(t, e, http.MethodGet, "/api/duplicates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMergeValidation(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/merges", `{"keep_id": 1, "merge_id": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/merges", `{"keep_id": 1, "merge_id": 2, "link_collapse": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/merges", `{"keep_id": 1, "merge_id": 2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcile(t *testing.T) {
	e := newTestServer(t)
	ingestPage(t, e, 1)
	ingestPage(t, e, 2)

	rec := do(t, e, http.MethodPost, "/api/reconcile", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[reconcile.RunReport](t, rec)
	assert.Len(t, run.Merges, 1)
	assert.Equal(t, 0, run.Remaining)

	rec = do(t, e, http.MethodGet, "/api/people", "")
	require.Equal(t, http.StatusOK, rec.Code)
	people := decode[[]genealogy.Person](t, rec)
	assert.Len(t, people, 1)
}

func TestPeopleAndGraph(t *testing.T) {
	e := newTestServer(t)
	res := ingestPage(t, e, 1)
	require.Equal(t, 1, res.Extraction.PeopleCreated)

	rec := do(t, e, http.MethodGet, "/api/people?q=smith", "")
	require.Equal(t, http.StatusOK, rec.Code)
	people := decode[[]genealogy.Person](t, rec)
	require.Len(t, people, 1)
	id := itoa(people[0].ID)

	rec = do(t, e, http.MethodGet, "/api/people/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[store.PersonDetail](t, rec)
	assert.Len(t, detail.Events, 1)

	rec = do(t, e, http.MethodGet, "/api/people/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/people/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPatch, "/api/people/"+id+"/family", `{"family_name": "Smith", "family_side": "paternal"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/api/families", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Smith")

	rec = do(t, e, http.MethodGet, "/api/people/"+id+"/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[store.FamilyTree](t, rec)
	assert.Equal(t, "John Smith", tree.Person.Name)

	rec = do(t, e, http.MethodGet, "/api/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[store.TreeGraph](t, rec)
	assert.Len(t, graph.Nodes, 1)

	rec = do(t, e, http.MethodGet, "/api/export/gedcom", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 NAME John Smith")
	assert.Contains(t, rec.Body.String(), "0 TRLR")

	rec = do(t, e, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[genealogy.Stats](t, rec)
	assert.Equal(t, int64(1), stats.People)
}

func TestDocuments(t *testing.T) {
	e := newTestServer(t)
	res := ingestPage(t, e, 1)
	docID := itoa(res.Extraction.DocumentID)

	rec := do(t, e, http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sources := decode[[]store.DocumentSource](t, rec)
	require.Len(t, sources, 1)
	assert.Equal(t, "census-1880.pdf", sources[0].Source)

	rec = do(t, e, http.MethodPatch, "/api/documents/"+docID, `{"document_type": "census"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[genealogy.Document](t, rec)
	assert.Equal(t, "census", genealogy.Deref(doc.DocumentType))

	rec = do(t, e, http.MethodGet, "/api/files?key=a.pdf", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/extractions/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "primary_name")

	rec = do(t, e, http.MethodDelete, "/api/documents/"+docID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[store.DeleteReport](t, rec)
	assert.Equal(t, 1, report.PeopleDeleted)

	rec = do(t, e, http.MethodGet, "/api/documents/"+docID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractionValidation(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/api/extractions", `{"result": {"people": []}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/extractions", `{"source": "a.pdf", "page": 1, "result": {"people": [{"primary_name": "", "confidence": 2}]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/extractions", `{"document_id": 42, "result": {"people": []}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(v int64) string {
	return fmt.Sprint(v)
}
