/*
Package client provides easy and fast in-process access to the
generated admin REST api

Instead of marshalling HTTP, the client talks directly to the mux
router. It is perfectly suited for unit tests, but can also talk to a
remote backend over a real connection.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Client provides easy access to the generated REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	prefix     string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		prefix:         "/admin",
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to a remote
// backend.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		prefix:         "/admin",
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithToken returns a new client with a bearer token added to every
// request.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithPrefix returns a new client for a backend mounted under a
// different path prefix.
func (c Client) WithPrefix(prefix string) Client {
	c.prefix = prefix
	return c
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Login authenticates against the backend and returns a client with
// the received access token, plus the token pair itself.
func (c Client) Login(login, password string) (Client, map[string]string, error) {
	tokens := map[string]string{}
	status, err := c.RawPost(c.prefix+"/api/login",
		map[string]string{"login": login, "password": password}, &tokens)
	if err != nil {
		return c, nil, fmt.Errorf("login returned status %d: %w", status, err)
	}
	return c.WithToken(tokens["access_token"]), tokens, nil
}

// Entity represents one registered entity of the backend
type Entity struct {
	client *Client
	path   string
}

// Entity returns an access helper for one registered entity.
func (c Client) Entity(name string) Entity {
	return Entity{
		client: &c,
		path:   c.prefix + "/api/" + name,
	}
}

// List retrieves one page of items together with the pagination
// envelope. Parameters are passed through as query strings.
func (e Entity) List(parameters map[string]string, result interface{}) (int, error) {
	path := e.path + "/"
	if len(parameters) > 0 {
		values := url.Values{}
		for key, value := range parameters {
			values.Set(key, value)
		}
		path += "?" + values.Encode()
	}
	return e.client.RawGet(path, result)
}

// Get retrieves a single item by its primary key.
func (e Entity) Get(itemID interface{}, result interface{}) (int, error) {
	return e.client.RawGet(fmt.Sprintf("%s/%v", e.path, itemID), result)
}

// Create creates a new item.
func (e Entity) Create(body interface{}, result interface{}) (int, error) {
	return e.client.RawPost(e.path+"/", body, result)
}

// Update partially updates an item.
func (e Entity) Update(itemID interface{}, body interface{}, result interface{}) (int, error) {
	return e.client.RawPatch(fmt.Sprintf("%s/%v", e.path, itemID), body, result)
}

// Delete removes an item for good.
func (e Entity) Delete(itemID interface{}) (int, error) {
	return e.client.RawDelete(fmt.Sprintf("%s/%v", e.path, itemID))
}

// DeleteMany removes several items for good.
func (e Entity) DeleteMany(itemIDs ...interface{}) (int, error) {
	return e.client.RawDelete(e.path + "/" + bulkQuery(itemIDs))
}

// SoftDelete hides an item and returns its updated state.
func (e Entity) SoftDelete(itemID interface{}, result interface{}) (int, error) {
	path := fmt.Sprintf("%s/%v/soft", e.path, itemID)
	return e.client.rawRequest(http.MethodDelete, path, nil, result)
}

// SoftDeleteMany hides several items.
func (e Entity) SoftDeleteMany(itemIDs ...interface{}) (int, error) {
	return e.client.RawDelete(e.path + "/soft/" + bulkQuery(itemIDs))
}

// Restore makes a soft-deleted item visible again and returns its
// updated state.
func (e Entity) Restore(itemID interface{}, result interface{}) (int, error) {
	return e.client.RawGet(fmt.Sprintf("%s/%v/restore", e.path, itemID), result)
}

func bulkQuery(itemIDs []interface{}) string {
	values := url.Values{}
	for _, id := range itemIDs {
		values.Add("item_ids", fmt.Sprintf("%v", id))
	}
	return "?" + values.Encode()
}

// RawGet gets the resource from path. Expects http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http
// status code.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	return c.rawRequest(http.MethodGet, path, nil, result)
}

// RawPost posts a resource to path. body can also be a []byte.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.rawRequest(http.MethodPost, path, body, result)
}

// RawPatch patches the resource at path. body can also be a []byte.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	return c.rawRequest(http.MethodPatch, path, body, result)
}

// RawPostForm posts url-encoded form values to path, like a browser
// form submission would.
func (c Client) RawPostForm(path string, form url.Values, result interface{}) (int, error) {
	r, _ := http.NewRequestWithContext(c.Context(), http.MethodPost, c.url+path,
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(r, result)
}

// RawDelete deletes the resource at path. Expects http.StatusOK as
// response, otherwise it will flag an error.
func (c Client) RawDelete(path string) (int, error) {
	return c.rawRequest(http.MethodDelete, path, nil, nil)
}

func (c Client) rawRequest(method, path string, body interface{}, result interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, err
			}
		}
		reader = bytes.NewBuffer(j)
	}
	r, _ := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	return c.do(r, result)
}

func (c Client) do(r *http.Request, result interface{}) (int, error) {
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}

	var err error
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
