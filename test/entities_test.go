package test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/meridian-tech/adminpanel/core"
)

type EntitiesTestSuite struct {
	IntegrationTestSuite
}

func TestEntitiesTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, &EntitiesTestSuite{})
}

func itemID(object map[string]interface{}) int {
	return int(object["id"].(float64))
}

func (s *EntitiesTestSuite) TestAuthFlow() {
	var result map[string]interface{}

	status, err := s.anonClient.RawGet("/admin/api/", &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnauthorized, status)

	status, err = s.anonClient.WithToken("garbage").RawGet("/admin/api/", &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnauthorized, status)

	_, _, err = s.anonClient.Login("admin", "wrong")
	s.Assert().Error(err)

	authed, tokens, err := s.anonClient.Login("admin", "secret")
	s.Require().NoError(err)
	s.Assert().NotEmpty(tokens["access_token"])
	s.Assert().NotEmpty(tokens["refresh_token"])

	var me map[string]interface{}
	status, err = authed.RawGet("/admin/api/me", &me)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Equal("admin", me["login"])

	// the form variant used by swagger-style frontends
	var pair map[string]interface{}
	status, err = s.anonClient.RawPostForm("/admin/api/token",
		map[string][]string{"username": {"admin"}, "password": {"secret"}}, &pair)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().NotEmpty(pair["access_token"])

	// refresh tokens are not valid for api access
	status, err = s.anonClient.WithToken(tokens["refresh_token"]).RawGet("/admin/api/", &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnauthorized, status)
}

func (s *EntitiesTestSuite) TestInfo() {
	var info map[string]map[string]interface{}
	status, err := s.client.RawGet("/admin/api/", &info)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, status)

	s.Require().Contains(info, "users")
	s.Require().Contains(info, "notes")

	users := info["users"]
	s.Assert().Equal("Users", users["title"])
	s.Assert().Equal("👥", users["emoji"])
	s.Assert().Equal("id", users["pkey_column"])
	s.Assert().Equal("is_active", users["soft_delete_column"])

	columns := users["columns"].(map[string]interface{})
	s.Assert().NotContains(columns, "password_hash")

	email := columns["email"].(map[string]interface{})
	s.Assert().Equal("string", email["column_type"])
	s.Assert().Equal(true, email["is_create_available"])
	s.Assert().Equal(true, email["is_sortable"])

	createdAt := columns["created_at"].(map[string]interface{})
	s.Assert().Equal("datetime", createdAt["column_type"])
	s.Assert().Equal(false, createdAt["is_create_available"])

	filters := users["filters"].([]interface{})
	s.Assert().Len(filters, 3)
}

func (s *EntitiesTestSuite) TestCreateAndGet() {
	created := s.createUser("alice@example.com", 30)
	s.Assert().Equal("alice@example.com", created["email"])
	s.Assert().Equal(float64(30), created["age"])
	s.Assert().Equal("viewer", created["role"])
	s.Assert().Equal(true, created["is_active"])
	s.Assert().NotEmpty(created["created_at"])
	s.Assert().Nil(created["fullname"])
	s.Assert().NotContains(created, "password_hash")

	var fetched map[string]interface{}
	status, err := s.client.Entity("users").Get(itemID(created), &fetched)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Equal(created["email"], fetched["email"])

	var tagged map[string]interface{}
	_, err = s.client.Entity("users").Create(map[string]interface{}{
		"email": "bob@example.com",
		"tags":  []string{"staff", "beta"},
	}, &tagged)
	s.Require().NoError(err)
	s.Assert().Equal([]interface{}{"staff", "beta"}, tagged["tags"])
}

func (s *EntitiesTestSuite) TestCreateValidation() {
	var result map[string]interface{}

	status, err := s.client.Entity("users").Create(map[string]interface{}{
		"fullname": "No Email",
	}, &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").Create(map[string]interface{}{
		"email":    "x@example.com",
		"is_admin": true,
	}, &result)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").Create(map[string]interface{}{
		"email": "x@example.com",
		"age":   "thirty",
	}, &result)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").Create(map[string]interface{}{
		"email": "x@example.com",
		"role":  "superuser",
	}, &result)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	// columns outside the create subset are rejected as unknown
	status, _ = s.client.Entity("users").Create(map[string]interface{}{
		"email":     "x@example.com",
		"is_active": false,
	}, &result)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)
}

func (s *EntitiesTestSuite) TestListPaginationAndSorting() {
	for i := 0; i < 7; i++ {
		s.createUser(fmt.Sprintf("user%d@example.com", i), 20+i)
	}

	var envelope map[string]interface{}
	_, err := s.client.Entity("users").List(map[string]string{
		"pagination_size": "3",
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(1), envelope["page"])
	s.Assert().Equal(float64(3), envelope["pagination_size"])
	s.Assert().Equal(float64(3), envelope["pages_amount"])
	s.Assert().Equal(float64(7), envelope["total_amount"])
	s.Assert().Equal(float64(3), envelope["current_page_amount"])
	s.Assert().Len(envelope["items"], 3)

	_, err = s.client.Entity("users").List(map[string]string{
		"pagination_size": "3",
		"page":            "3",
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(1), envelope["current_page_amount"])
	s.Assert().Len(envelope["items"], 1)

	// a page beyond the data is valid and empty
	_, err = s.client.Entity("users").List(map[string]string{
		"pagination_size": "3",
		"page":            "5",
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(0), envelope["current_page_amount"])
	s.Assert().Equal(float64(7), envelope["total_amount"])

	_, err = s.client.Entity("users").List(map[string]string{
		"sort_by":  "age",
		"sort_asc": "false",
	}, &envelope)
	s.Require().NoError(err)
	items := envelope["items"].([]interface{})
	first := items[0].(map[string]interface{})
	s.Assert().Equal(float64(26), first["age"])

	status, err := s.client.Entity("users").List(map[string]string{
		"sort_by": "fullname",
	}, &envelope)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").List(map[string]string{
		"sort_by": "password_hash",
	}, &envelope)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").List(map[string]string{
		"page": "0",
	}, &envelope)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)
}

func (s *EntitiesTestSuite) TestFilters() {
	for i := 0; i < 5; i++ {
		s.createUser(fmt.Sprintf("member%d@example.com", i), 10+10*i)
	}
	s.createUser("guest@other.org", 99)

	var envelope map[string]interface{}
	_, err := s.client.Entity("users").List(map[string]string{
		"filters": `{"min_age": 20, "max_age": 40}`,
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(3), envelope["total_amount"])

	// an incomplete group is inactive, not an error
	_, err = s.client.Entity("users").List(map[string]string{
		"filters": `{"min_age": 20}`,
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(6), envelope["total_amount"])

	_, err = s.client.Entity("users").List(map[string]string{
		"filters": `{"email_part": "member"}`,
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(5), envelope["total_amount"])

	// both groups combined
	_, err = s.client.Entity("users").List(map[string]string{
		"filters": `{"email_part": "member", "min_age": 30, "max_age": 50}`,
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(3), envelope["total_amount"])

	status, err := s.client.Entity("users").List(map[string]string{
		"filters": `{"min_age": 20, "shoe_size": 42}`,
	}, &envelope)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").List(map[string]string{
		"filters": `{"min_age": "twenty", "max_age": 40}`,
	}, &envelope)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)
}

func (s *EntitiesTestSuite) TestShapingHook() {
	visible := s.createUser("visible@example.com", 40)
	hidden := s.createUser("hidden@example.com", 41)

	var envelope map[string]interface{}
	_, err := s.client.Entity("users").List(nil, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(1), envelope["total_amount"])

	var result map[string]interface{}
	status, err := s.client.Entity("users").Get(itemID(hidden), &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusNotFound, status)

	status, err = s.client.Entity("users").Get(itemID(visible), &result)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
}

func (s *EntitiesTestSuite) TestUpdate() {
	created := s.createUser("carol@example.com", 25)

	var updated map[string]interface{}
	status, err := s.client.Entity("users").Update(itemID(created), map[string]interface{}{
		"fullname": "Carol",
		"age":      26,
	}, &updated)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Equal("Carol", updated["fullname"])
	s.Assert().Equal(float64(26), updated["age"])
	s.Assert().Equal("carol@example.com", updated["email"])

	// nullable fields can be reset
	status, err = s.client.Entity("users").Update(itemID(created), map[string]interface{}{
		"age": nil,
	}, &updated)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Nil(updated["age"])

	status, _ = s.client.Entity("users").Update(itemID(created), map[string]interface{}{}, &updated)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").Update(itemID(created), map[string]interface{}{
		"password_hash": "sneaky",
	}, &updated)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.Entity("users").Update(999999, map[string]interface{}{
		"fullname": "Nobody",
	}, &updated)
	s.Assert().Equal(http.StatusNotFound, status)
}

func (s *EntitiesTestSuite) TestDelete() {
	created := s.createUser("dave@example.com", 50)

	status, err := s.client.Entity("users").Delete(itemID(created))
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)

	var result map[string]interface{}
	status, _ = s.client.Entity("users").Get(itemID(created), &result)
	s.Assert().Equal(http.StatusNotFound, status)

	status, _ = s.client.Entity("users").Delete(itemID(created))
	s.Assert().Equal(http.StatusNotFound, status)

	first := s.createUser("bulk1@example.com", 21)
	second := s.createUser("bulk2@example.com", 22)
	third := s.createUser("bulk3@example.com", 23)

	status, err = s.client.Entity("users").DeleteMany(itemID(first), itemID(second))
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)

	// bulk delete with no ids is a no-op, not an error
	status, err = s.client.Entity("users").DeleteMany()
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)

	var envelope map[string]interface{}
	_, err = s.client.Entity("users").List(nil, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(1), envelope["total_amount"])

	status, err = s.client.Entity("users").Delete(itemID(third))
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
}

func (s *EntitiesTestSuite) TestSoftDelete() {
	created := s.createUser("eve@example.com", 35)
	keeper := s.createUser("frank@example.com", 36)

	var softDeleted map[string]interface{}
	status, err := s.client.Entity("users").SoftDelete(itemID(created), &softDeleted)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Equal(false, softDeleted["is_active"])

	// hidden items still resolve by id
	var fetched map[string]interface{}
	status, err = s.client.Entity("users").Get(itemID(created), &fetched)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)

	var envelope map[string]interface{}
	_, err = s.client.Entity("users").List(map[string]string{
		"soft_deleted_included": "false",
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(1), envelope["total_amount"])

	_, err = s.client.Entity("users").List(nil, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(2), envelope["total_amount"])

	var restored map[string]interface{}
	status, err = s.client.Entity("users").Restore(itemID(created), &restored)
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
	s.Assert().Equal(true, restored["is_active"])

	status, err = s.client.Entity("users").SoftDeleteMany(itemID(created), itemID(keeper))
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)

	_, err = s.client.Entity("users").List(map[string]string{
		"soft_deleted_included": "false",
	}, &envelope)
	s.Require().NoError(err)
	s.Assert().Equal(float64(0), envelope["total_amount"])
}

func (s *EntitiesTestSuite) TestDisabledOperations() {
	var note map[string]interface{}
	_, err := s.client.Entity("notes").Create(map[string]interface{}{
		"body": "remember the milk",
	}, &note)
	s.Require().NoError(err)

	// notes have no update and no soft delete
	var result map[string]interface{}
	status, _ := s.client.Entity("notes").Update(itemID(note), map[string]interface{}{
		"body": "changed",
	}, &result)
	s.Assert().Equal(http.StatusMethodNotAllowed, status)

	status, _ = s.client.Entity("notes").SoftDelete(itemID(note), &result)
	s.Assert().Equal(http.StatusNotFound, status)

	status, _ = s.client.Entity("notes").Restore(itemID(note), &result)
	s.Assert().Equal(http.StatusNotFound, status)

	status, err = s.client.Entity("notes").Delete(itemID(note))
	s.Require().NoError(err)
	s.Assert().Equal(http.StatusOK, status)
}

func (s *EntitiesTestSuite) TestItemIDCoercion() {
	var result map[string]interface{}
	status, err := s.client.Entity("users").Get("not-a-number", &result)
	s.Assert().Error(err)
	s.Assert().Equal(http.StatusUnprocessableEntity, status)

	status, _ = s.client.RawDelete("/admin/api/users/?item_ids=1&item_ids=abc")
	s.Assert().Equal(http.StatusUnprocessableEntity, status)
}

func (s *EntitiesTestSuite) TestNotifications() {
	created := s.createUser("grace@example.com", 28)

	var updated map[string]interface{}
	_, err := s.client.Entity("users").Update(itemID(created), map[string]interface{}{
		"fullname": "Grace",
	}, &updated)
	s.Require().NoError(err)

	_, err = s.client.Entity("users").Delete(itemID(created))
	s.Require().NoError(err)

	notifications := s.notifier.drain()
	s.Require().Len(notifications, 3)

	s.Assert().Equal("users", notifications[0].Entity)
	s.Assert().Equal(core.OperationCreate, notifications[0].Operation)
	s.Assert().Equal("grace@example.com", notifications[0].Payload["email"])

	s.Assert().Equal(core.OperationUpdate, notifications[1].Operation)
	s.Assert().Equal(core.OperationDelete, notifications[2].Operation)
	s.Assert().Nil(notifications[2].Payload)
}
