package access

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (fakeProvider) Login(ctx context.Context, login, password string) (Principal, error) {
	if login != "admin" || password != "secret" {
		return Principal{}, fmt.Errorf("unknown credentials")
	}
	return Principal{ID: "1", Login: "admin", Fullname: "Admin"}, nil
}

func (fakeProvider) PrincipalByID(ctx context.Context, id string) (Principal, error) {
	if id != "1" {
		return Principal{}, fmt.Errorf("unknown principal")
	}
	return Principal{ID: "1", Login: "admin", Fullname: "Admin"}, nil
}

func testRouter(t *testing.T) (*Auth, *mux.Router) {
	a := &Auth{Provider: fakeProvider{}, Secret: []byte("test"), TokenValidity: time.Hour}
	router := mux.NewRouter()
	a.HandleAuthRoutes(router)
	router.Handle("/protected", a.Middleware()(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			w.Write([]byte(p.Login))
		}))).Methods(http.MethodGet)
	return a, router
}

func exec(router *mux.Router, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	_, router := testRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"login": "admin", "password": "secret"}`))
	rec := exec(router, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	r = httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"login": "admin", "password": "wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, exec(router, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusUnprocessableEntity, exec(router, r).Code)
}

func TestTokenEndpointForm(t *testing.T) {
	_, router := testRouter(t)

	form := url.Values{"username": {"admin"}, "password": {"secret"}}
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := exec(router, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.AccessToken)
}

func TestMiddleware(t *testing.T) {
	a, router := testRouter(t)
	pair, err := a.CreateTokenPair("1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	assert.Equal(t, http.StatusUnauthorized, exec(router, r).Code)

	r = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := exec(router, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	// a raw token without the bearer prefix is accepted too
	r = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", pair.AccessToken)
	assert.Equal(t, http.StatusOK, exec(router, r).Code)

	// cookie fallback
	r = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(&http.Cookie{Name: jwtCookieName, Value: pair.AccessToken})
	assert.Equal(t, http.StatusOK, exec(router, r).Code)

	r = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, exec(router, r).Code)

	// a token for a principal the provider no longer knows
	stale, err := a.CreateTokenPair("99")
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+stale.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, exec(router, r).Code)
}

func TestMeEndpoint(t *testing.T) {
	a, router := testRouter(t)
	pair, err := a.CreateTokenPair("1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := exec(router, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var principal Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &principal))
	assert.Equal(t, "admin", principal.Login)
	assert.Equal(t, "Admin", principal.Fullname)

	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, exec(router, r).Code)
}

func TestWriteJSONMarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]interface{}{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "application/json")
}
