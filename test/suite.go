// Package test contains the end-to-end tests of the generated admin
// backend against a real postgres instance.
package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meridian-tech/adminpanel/core"
	"github.com/meridian-tech/adminpanel/core/access"
	"github.com/meridian-tech/adminpanel/core/admin"
	"github.com/meridian-tech/adminpanel/core/client"
	"github.com/meridian-tech/adminpanel/core/crud"
	"github.com/meridian-tech/adminpanel/core/csql"
)

var configurationJSON string = `
{
	"entities": [
	  {
		"entity": "users",
		"title": "Users",
		"emoji": "👥",
		"columns": [
		  {"name": "id", "type": "serial", "primary_key": true},
		  {"name": "email", "type": "text"},
		  {"name": "fullname", "type": "text", "nullable": true},
		  {"name": "age", "type": "integer", "nullable": true},
		  {"name": "role", "type": "text", "enum": ["viewer", "editor", "owner"], "default": "'viewer'"},
		  {"name": "is_active", "type": "boolean", "default": "true"},
		  {"name": "tags", "type": "text[]", "nullable": true},
		  {"name": "password_hash", "type": "text", "nullable": true},
		  {"name": "created_at", "type": "timestamp with time zone", "default": "now()"}
		],
		"soft_delete_column": "is_active",
		"excluded_columns": ["password_hash"],
		"create_columns": ["email", "fullname", "age", "role", "tags"],
		"update_columns": ["email", "fullname", "age", "role", "tags"],
		"sortable_columns": ["id", "email", "age", "created_at"],
		"filters": [
		  {
			"condition": "age >= :min_age AND age <= :max_age",
			"filters": [
			  {"title": "Minimum age", "field_type": "integer", "bindparam": "min_age"},
			  {"title": "Maximum age", "field_type": "integer", "bindparam": "max_age"}
			]
		  },
		  {
			"condition": "email ILIKE '%' || :email_part || '%'",
			"filters": [
			  {"title": "Email contains", "field_type": "string", "bindparam": "email_part"}
			]
		  }
		]
	  },
	  {
		"entity": "notes",
		"columns": [
		  {"name": "id", "type": "bigserial", "primary_key": true},
		  {"name": "body", "type": "text"}
		],
		"enabled_operations": ["get_list", "get_one", "create", "delete"]
	  }
	]
}
`

// recordingNotifier collects notifications in memory so tests can
// assert on them without a broker.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []core.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *recordingNotifier) drain() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	all := n.notifications
	n.notifications = nil
	return all
}

// staticProvider resolves the single test account admin/secret.
type staticProvider struct{}

func (staticProvider) Login(ctx context.Context, login, password string) (access.Principal, error) {
	if login != "admin" || password != "secret" {
		return access.Principal{}, fmt.Errorf("unknown credentials")
	}
	return access.Principal{ID: "1", Login: "admin", Fullname: "Admin"}, nil
}

func (staticProvider) PrincipalByID(ctx context.Context, id string) (access.Principal, error) {
	if id != "1" {
		return access.Principal{}, fmt.Errorf("unknown principal")
	}
	return access.Principal{ID: "1", Login: "admin", Fullname: "Admin"}, nil
}

type IntegrationTestSuite struct {
	suite.Suite

	postgresContainer testcontainers.Container
	db                *csql.DB
	router            *mux.Router
	backend           *admin.Backend
	notifier          *recordingNotifier

	client     client.Client // authenticated
	anonClient client.Client // no token
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.db = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "admin_test")

	_, err = s.db.Exec(fmt.Sprintf(`
CREATE TABLE %s."users" (
	id serial PRIMARY KEY,
	email text NOT NULL,
	fullname text,
	age integer,
	role text NOT NULL DEFAULT 'viewer',
	is_active boolean NOT NULL DEFAULT true,
	tags text[],
	password_hash text,
	created_at timestamp with time zone NOT NULL DEFAULT now()
);
CREATE TABLE %s."notes" (
	id bigserial PRIMARY KEY,
	body text NOT NULL
);`, s.db.Schema, s.db.Schema))
	s.Require().NoError(err)

	s.notifier = &recordingNotifier{}
	s.router = mux.NewRouter()
	s.backend, err = admin.New(&admin.Builder{
		Config: configurationJSON,
		DB:     s.db,
		Router: s.router,
		Auth: &access.Auth{
			Provider: staticProvider{},
			Secret:   []byte("test-secret"),
		},
		Notifier: s.notifier,
		ShapingHooks: map[string]func(crud.Query) crud.Query{
			"users": func(q crud.Query) crud.Query {
				return q.Where("email <> ?", "hidden@example.com")
			},
		},
	})
	s.Require().NoError(err)

	s.anonClient = client.NewWithRouter(s.router)
	s.client, _, err = s.anonClient.Login("admin", "secret")
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) SetupTest() {
	_, err := s.db.Exec(fmt.Sprintf(
		`TRUNCATE %s."users", %s."notes" RESTART IDENTITY`, s.db.Schema, s.db.Schema))
	s.Require().NoError(err)
	s.notifier.drain()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.db != nil {
		s.db.Close()
	}
	if s.postgresContainer != nil {
		err := s.postgresContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
}

// createUser inserts one user through the API and returns the created
// object.
func (s *IntegrationTestSuite) createUser(email string, age int) map[string]interface{} {
	var result map[string]interface{}
	_, err := s.client.Entity("users").Create(map[string]interface{}{
		"email": email,
		"age":   age,
	}, &result)
	s.Require().NoError(err)
	return result
}
