package admin

import (
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/meridian-tech/adminpanel/core"
	"github.com/meridian-tech/adminpanel/core/crud"
	"github.com/meridian-tech/adminpanel/core/logger"
	"github.com/meridian-tech/adminpanel/core/model"
)

const (
	defaultPage           = 1
	defaultPaginationSize = 25
)

// createEntityRoutes adds the generated routes of one entity to the
// router. Only routes whose operation is enabled are mounted; the bulk
// soft-delete route is registered before the single-item patterns so
// the literal "soft" path segment wins over {item_id}.
func (b *Backend) createEntityRoutes(router *mux.Router, desc *model.Descriptor, engine *crud.Engine) {
	entityRouter := router.PathPrefix("/" + desc.Entity).Subrouter()

	if desc.Enabled(core.OperationGetList) {
		entityRouter.HandleFunc("/", b.listEndpoint(desc, engine)).Methods(http.MethodGet)
	}
	if desc.Enabled(core.OperationCreate) {
		entityRouter.HandleFunc("/", b.createEndpoint(desc, engine)).Methods(http.MethodPost)
	}
	if desc.Enabled(core.OperationDelete) {
		entityRouter.HandleFunc("/", b.deleteManyEndpoint(desc, engine)).Methods(http.MethodDelete)
	}
	if desc.Enabled(core.OperationSoftDelete) {
		entityRouter.HandleFunc("/soft/", b.softDeleteManyEndpoint(desc, engine)).Methods(http.MethodDelete)
		entityRouter.HandleFunc("/{item_id}/soft", b.softDeleteEndpoint(desc, engine)).Methods(http.MethodDelete)
		entityRouter.HandleFunc("/{item_id}/restore", b.restoreEndpoint(desc, engine)).Methods(http.MethodGet)
	}
	if desc.Enabled(core.OperationGetOne) {
		entityRouter.HandleFunc("/{item_id}", b.getEndpoint(desc, engine)).Methods(http.MethodGet)
	}
	if desc.Enabled(core.OperationUpdate) {
		entityRouter.HandleFunc("/{item_id}", b.updateEndpoint(desc, engine)).Methods(http.MethodPatch)
	}
	if desc.Enabled(core.OperationDelete) {
		entityRouter.HandleFunc("/{item_id}", b.deleteEndpoint(desc, engine)).Methods(http.MethodDelete)
	}
}

// itemID converts the item_id path parameter to the native type of the
// entity's primary key.
func itemID(desc *model.Descriptor, r *http.Request) (interface{}, error) {
	raw := mux.Vars(r)["item_id"]
	return desc.PKey.FieldType().Coerce(raw)
}

func (b *Backend) listEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		params := crud.ListParams{
			Page:               defaultPage,
			PageSize:           defaultPaginationSize,
			SortAsc:            true,
			IncludeSoftDeleted: true,
		}

		if s := query.Get("page"); s != "" {
			page, err := strconv.Atoi(s)
			if err != nil || page < 1 {
				writeDetail(w, http.StatusUnprocessableEntity, "page must be a positive integer")
				return
			}
			params.Page = page
		}
		if s := query.Get("pagination_size"); s != "" {
			size, err := strconv.Atoi(s)
			if err != nil || size < 1 {
				writeDetail(w, http.StatusUnprocessableEntity, "pagination_size must be a positive integer")
				return
			}
			params.PageSize = size
		}
		if s := query.Get("sort_by"); s != "" {
			if !desc.Sortable(s) {
				writeDetail(w, http.StatusUnprocessableEntity, "column "+s+" is not sortable")
				return
			}
			params.SortBy = s
		}
		if s := query.Get("sort_asc"); s != "" {
			asc, err := strconv.ParseBool(s)
			if err != nil {
				writeDetail(w, http.StatusUnprocessableEntity, "sort_asc must be a boolean")
				return
			}
			params.SortAsc = asc
		}
		if s := query.Get("soft_deleted_included"); s != "" {
			included, err := strconv.ParseBool(s)
			if err != nil {
				writeDetail(w, http.StatusUnprocessableEntity, "soft_deleted_included must be a boolean")
				return
			}
			params.IncludeSoftDeleted = included
		}
		if s := query.Get("filters"); s != "" {
			if err := desc.ValidateFilters([]byte(s)); err != nil {
				writeError(r.Context(), w, err)
				return
			}
			var values map[string]interface{}
			if err := json.Unmarshal([]byte(s), &values); err != nil {
				writeDetail(w, http.StatusUnprocessableEntity, "filters must be a JSON object")
				return
			}
			params.FilterValues = values
		}

		total, items, err := engine.List(r.Context(), params)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}

		pagesAmount := 0
		if total > 0 {
			pagesAmount = (total + params.PageSize - 1) / params.PageSize
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"page":                params.Page,
			"pagination_size":     params.PageSize,
			"pages_amount":        pagesAmount,
			"total_amount":        total,
			"current_page_amount": len(items),
			"items":               items,
		})
	}
}

func (b *Backend) getEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		object, err := engine.GetOne(r.Context(), id)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, object)
	}
}

func (b *Backend) createEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			writeDetail(w, http.StatusUnprocessableEntity, "request body is missing")
			return
		}
		if err := desc.ValidateCreate(body); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(body, &fields); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "request body is not a JSON object")
			return
		}
		object, err := engine.Create(r.Context(), fields)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		b.notify(r, desc, core.OperationCreate, object[desc.PKey.Name], object)
		writeJSON(w, http.StatusOK, object)
	}
}

func (b *Backend) updateEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			body = []byte("{}")
		}
		if err := desc.ValidateUpdate(body); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(body, &fields); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "request body is not a JSON object")
			return
		}
		object, err := engine.Update(r.Context(), id, fields, nil)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		b.notify(r, desc, core.OperationUpdate, id, object)
		writeJSON(w, http.StatusOK, object)
	}
}

func (b *Backend) deleteEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if err := engine.Delete(r.Context(), id); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		b.notify(r, desc, core.OperationDelete, id, nil)
		writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
	}
}

func (b *Backend) deleteManyEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := itemIDs(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if err := engine.DeleteMany(r.Context(), ids); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		for _, id := range ids {
			b.notify(r, desc, core.OperationDelete, id, nil)
		}
		writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
	}
}

func (b *Backend) softDeleteEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		object, err := engine.SoftDelete(r.Context(), id)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		b.notify(r, desc, core.OperationSoftDelete, id, object)
		writeJSON(w, http.StatusOK, object)
	}
}

func (b *Backend) softDeleteManyEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := itemIDs(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if err := engine.SoftDeleteMany(r.Context(), ids); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		for _, id := range ids {
			b.notify(r, desc, core.OperationSoftDelete, id, nil)
		}
		writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
	}
}

func (b *Backend) restoreEndpoint(desc *model.Descriptor, engine *crud.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemID(desc, r)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		object, err := engine.Restore(r.Context(), id)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		b.notify(r, desc, core.OperationUpdate, id, object)
		writeJSON(w, http.StatusOK, object)
	}
}

// itemIDs converts the repeated item_ids query parameter for the bulk
// routes.
func itemIDs(desc *model.Descriptor, r *http.Request) ([]interface{}, error) {
	raw := r.URL.Query()["item_ids"]
	ids := make([]interface{}, 0, len(raw))
	for _, s := range raw {
		id, err := desc.PKey.FieldType().Coerce(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// notify publishes a mutation notification, best effort. Failures are
// logged and never surface to the client.
func (b *Backend) notify(r *http.Request, desc *model.Descriptor, operation core.Operation, id interface{}, payload map[string]interface{}) {
	if b.notifier == nil {
		return
	}
	ctx := r.Context()
	notification := core.Notification{
		Entity:    desc.Entity,
		Operation: operation,
		ItemID:    id,
		Payload:   payload,
	}
	if err := b.notifier.Notify(ctx, notification); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot notify", operation, "on", desc.Entity)
	}
}
