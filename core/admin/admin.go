/*
Package admin realizes the generated admin REST backend.

Given a declarative JSON configuration of entities, it builds one
Descriptor and one CRUD engine per entity and mounts the generated
routes plus the introspection endpoint on a mux router, everything
behind bearer-token authentication.
*/
package admin

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/meridian-tech/adminpanel/core"
	"github.com/meridian-tech/adminpanel/core/access"
	"github.com/meridian-tech/adminpanel/core/crud"
	"github.com/meridian-tech/adminpanel/core/csql"
	"github.com/meridian-tech/adminpanel/core/logger"
	"github.com/meridian-tech/adminpanel/core/model"
)

// Configuration holds the complete admin backend configuration
type Configuration struct {
	Entities []model.EntityConfiguration `json:"entities"`
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all entities. This is mandatory.
	Config string
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Prefix is the path prefix the admin surface is mounted under.
	// Defaults to /admin.
	Prefix string
	// Auth guards every generated route and adds the login/token/me
	// endpoints. When nil the routes are generated without
	// authentication; that is meant for tests only.
	Auth *access.Auth
	// Notifier receives a notification for every successful mutation.
	// This is optional.
	Notifier core.Notifier
	// ShapingHooks narrow every query generated for an entity, keyed by
	// entity name, e.g. for row-level visibility rules. Optional.
	ShapingHooks map[string]func(crud.Query) crud.Query
}

// Backend is the generated admin rest backend
type Backend struct {
	prefix      string
	db          *csql.DB
	router      *mux.Router
	auth        *access.Auth
	notifier    core.Notifier
	descriptors map[string]*model.Descriptor
	infos       map[string]model.ModelInfo
}

// New realizes the admin backend: it validates the entity
// configurations, derives their descriptors and schemas, and adds the
// generated routes to the router. Configuration errors are returned
// here; nothing is deferred to request time.
func New(bb *Builder) (*Backend, error) {
	if bb.DB == nil {
		return nil, fmt.Errorf("DB is missing")
	}
	if bb.Router == nil {
		return nil, fmt.Errorf("Router is missing")
	}

	var config Configuration
	if err := json.Unmarshal([]byte(bb.Config), &config); err != nil {
		return nil, fmt.Errorf("parse error in admin configuration: %s", err)
	}

	prefix := bb.Prefix
	if prefix == "" {
		prefix = "/admin"
	}

	b := &Backend{
		prefix:      prefix,
		db:          bb.DB,
		router:      bb.Router,
		auth:        bb.Auth,
		notifier:    bb.Notifier,
		descriptors: map[string]*model.Descriptor{},
		infos:       map[string]model.ModelInfo{},
	}

	rlog := logger.Default()
	adminRouter := b.router.PathPrefix(prefix).Subrouter()
	b.handleCORS(adminRouter)

	apiRouter := adminRouter.PathPrefix("/api").Subrouter()
	if b.auth != nil {
		b.auth.HandleAuthRoutes(apiRouter)
	}

	protected := apiRouter.NewRoute().Subrouter()
	if b.auth != nil {
		protected.Use(b.auth.Middleware())
	}
	protected.HandleFunc("/", b.infoEndpoint).Methods(http.MethodGet)

	for _, cfg := range config.Entities {
		if _, ok := b.descriptors[cfg.Entity]; ok {
			return nil, fmt.Errorf("entity %q is registered twice", cfg.Entity)
		}
		desc, err := model.Build(cfg)
		if err != nil {
			return nil, err
		}
		engine := &crud.Engine{DB: b.db, Desc: desc}
		if hook, ok := bb.ShapingHooks[cfg.Entity]; ok {
			engine.Hook = hook
		}
		b.descriptors[cfg.Entity] = desc
		b.infos[cfg.Entity] = desc.Info()
		b.createEntityRoutes(protected, desc, engine)
		rlog.Infoln("admin pages for", cfg.Entity, "are up and ready")
	}
	return b, nil
}

// MustNew is like New but panics on configuration errors. Configuration
// errors abort startup by design.
func MustNew(bb *Builder) *Backend {
	b, err := New(bb)
	if err != nil {
		panic(err)
	}
	return b
}

// Descriptor returns the descriptor of a registered entity.
func (b *Backend) Descriptor(entity string) (*model.Descriptor, bool) {
	d, ok := b.descriptors[entity]
	return d, ok
}

// infoEndpoint describes every registered entity: schemas, filters and
// the per-column visibility matrix.
func (b *Backend) infoEndpoint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.infos)
}
