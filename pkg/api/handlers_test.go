package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/copyonwrite"
	"github.com/hearthshare/larder/pkg/subscriptions"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewServer(Options{
		Resolver:      access.NewResolver(db, nil),
		Checker:       access.NewChecker(db),
		Subscriptions: subscriptions.NewManager(db, time.Second, nil, nil),
		Engine:        copyonwrite.NewEngine(db, time.Second, nil, nil),
	}), mock
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(householdHeader, "1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestMissingHouseholdHeaderRejected(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidHouseholdHeaderRejected(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set(householdHeader, "not-a-number")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDEchoedBack(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT c.id, c.title").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "household_id", "parent_id", "public", "url_slug",
			"created_at", "updated_at",
		}))

	rec := doRequest(s, http.MethodGet, "/api/v1/subscriptions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestGetAccessInfoUnknownType(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/access/household/1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccessInfoNoAccessIs404(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT c.household_id, c.public").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public", "subscribed"}).
			AddRow(2, false, false))

	rec := doRequest(s, http.MethodGet, "/api/v1/access/collection/10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAccessInfoOwned(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT c.household_id, c.public").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public", "subscribed"}).
			AddRow(1, false, false))

	rec := doRequest(s, http.MethodGet, "/api/v1/access/collection/10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info access.AccessInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, access.AccessOwned, info.AccessType)
	assert.True(t, info.CanEdit)
}

func TestSubscribeOwnCollectionMapsToConflict(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT household_id, public FROM collections").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public"}).AddRow(1, true))
	mock.ExpectRollback()

	rec := doRequest(s, http.MethodPut, "/api/v1/collections/10/subscription", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubscribeMissingCollectionMapsToNotFound(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT household_id, public FROM collections").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public"}))
	mock.ExpectRollback()

	rec := doRequest(s, http.MethodPut, "/api/v1/collections/99/subscription", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscribeCreatedReturns201(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT household_id, public FROM collections").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public"}).AddRow(2, true))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO collection_subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(s, http.MethodPut, "/api/v1/collections/10/subscription", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestForkRecipeDeniedWithoutAccess(t *testing.T) {
	s, mock := newTestServer(t)

	// No reachability at all: the fork is rejected before the engine runs.
	mock.ExpectQuery("SELECT r.household_id").
		WillReturnRows(sqlmock.NewRows(
			[]string{"household_id", "via_owned", "via_subscribed", "via_public"}))

	rec := doRequest(s, http.MethodPost, "/api/v1/recipes/20/fork", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForkRecipeAccessible(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT r.household_id").
		WillReturnRows(sqlmock.NewRows(
			[]string{"household_id", "via_owned", "via_subscribed", "via_public"}).
			AddRow(2, false, false, true))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name, household_id, description").
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "household_id", "description", "instructions",
			"prep_time_minutes", "cook_time_minutes", "servings",
		}).AddRow("Lasagna", 2, "", "", 0, 0, 0))
	mock.ExpectQuery("INSERT INTO recipes").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(120))
	mock.ExpectExec("INSERT INTO recipe_ingredients").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE collection_recipes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(s, http.MethodPost, "/api/v1/recipes/20/fork", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res copyonwrite.ForkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Copied)
	assert.Equal(t, int64(120), res.NewID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAccessBulk(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT c.household_id, c.public").
		WillReturnRows(sqlmock.NewRows([]string{"household_id", "public", "subscribed"}).
			AddRow(1, false, false))

	body := `{"requests":[{"type":"collection","id":10,"tier":"ingredients"}]}`
	rec := doRequest(s, http.MethodPost, "/api/v1/access/validate", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Granted map[string]access.AccessContext `json:"granted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Contains(t, res.Granted, "collection_10")
}

func TestValidateAccessBulkBadTier(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"requests":[{"type":"collection","id":10,"tier":"root"}]}`
	rec := doRequest(s, http.MethodPost, "/api/v1/access/validate", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
