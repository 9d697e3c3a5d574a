package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/contentmod/contentmod/automod/docstore"
	"github.com/contentmod/contentmod/backfill"

	"github.com/labstack/echo/v4"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

// Body of a record creation event, or a record write: the record path and its fields at creation time
type RecordEvent struct {
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("contentmod-http-internal-error", "err", err)
		errorMessage = err.Error()
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "contentmod", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "contentmod"})
}

// checks that a path refers to a record directly inside the moderated collection
func (srv *Server) parseRecordEvent(c echo.Context) (*RecordEvent, error) {
	var evt RecordEvent
	if err := c.Bind(&evt); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	coll, _, ok := docstore.SplitPath(evt.Path)
	if !ok || coll != srv.config.CollectionPath {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("record path not in collection %q", srv.config.CollectionPath))
	}
	if evt.Data == nil {
		evt.Data = map[string]any{}
	}
	return &evt, nil
}

// Real-time trigger: the record has already been written to the document store by the producer.
func (srv *Server) HandleTrigger(c echo.Context) error {
	evt, err := srv.parseRecordEvent(c)
	if err != nil {
		return err
	}
	return srv.moderate(c, evt)
}

// Writes a record to the document store and moderates it, as a producer and trigger would together.
func (srv *Server) HandlePutRecord(c echo.Context) error {
	evt, err := srv.parseRecordEvent(c)
	if err != nil {
		return err
	}
	if err := srv.store.Put(c.Request().Context(), evt.Path, evt.Data); err != nil {
		return err
	}
	return srv.moderate(c, evt)
}

func (srv *Server) moderate(c echo.Context, evt *RecordEvent) error {
	_, id, _ := docstore.SplitPath(evt.Path)
	out, err := srv.moderator.HandleCreate(c.Request().Context(), &docstore.Record{
		Path: evt.Path,
		ID:   id,
		Data: evt.Data,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (srv *Server) HandleStartBackfill(c echo.Context) error {
	err := srv.backfill.Start(c.Request().Context())
	if errors.Is(err, backfill.ErrScanInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, GenericStatus{Status: "ok", Daemon: "contentmod", Message: "backfill enqueued"})
}

func (srv *Server) HandleBackfillStatus(c echo.Context) error {
	st, err := srv.backfill.Runtime.GetStatus(c.Request().Context())
	if err != nil {
		return err
	}
	if st == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no backfill has run")
	}
	return c.JSON(http.StatusOK, st)
}
