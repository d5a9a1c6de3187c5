package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/meridian-tech/adminpanel/core/crud"
	"github.com/meridian-tech/adminpanel/core/logger"
	"github.com/meridian-tech/adminpanel/core/model"
)

// writeError translates the typed errors of the lower layers into
// status codes. Database errors are logged with their cause but the
// client only sees a generic message.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var notFound crud.NotFoundError
	var nothingToUpdate crud.NothingToUpdateError
	var cannotConvert model.CannotConvertError
	var validation model.ValidationError
	var database crud.DatabaseError

	switch {
	case errors.As(err, &notFound):
		writeDetail(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &nothingToUpdate):
		writeDetail(w, http.StatusUnprocessableEntity, nothingToUpdate.Error())
	case errors.As(err, &cannotConvert):
		writeDetail(w, http.StatusUnprocessableEntity, cannotConvert.Error())
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": validation.Detail,
			"fields": validation.Fields,
		})
	case errors.As(err, &database):
		logger.FromContext(ctx).WithError(database.Unwrap()).Errorln("database error")
		writeDetail(w, http.StatusInternalServerError, "database error")
	default:
		logger.FromContext(ctx).WithError(err).Errorln("internal error")
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.MarshalWithOption(body, json.DisableHTMLEscape())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
