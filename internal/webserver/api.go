package webserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/resources"
)

const maxBodyBytes = 1 << 20

// apiError answers with the normalized error. A 401 has already wiped the session,
// so the caller is sent to log in again instead.
func (w *Webserver) apiError(c echo.Context, err error) error {
	apiErr := apiclient.AsError(err)

	if apiErr.Status == http.StatusUnauthorized {
		return c.Redirect(http.StatusFound, loginRedirectURL(c.Request().URL.RequestURI()))
	}

	if apiErr.Status >= 500 {
		w.logger.Error("backend call failed", zap.Error(err))
	}

	return c.JSON(errorStatus(apiErr), apiErr)
}

func writeResult(c echo.Context, status int, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return c.NoContent(http.StatusNoContent)
	}
	if json.Valid(raw) {
		return c.JSONBlob(status, raw)
	}
	// Exports and other non-JSON payloads pass through untouched
	return c.Blob(status, echo.MIMEOctetStream, raw)
}

func readBody(c echo.Context) (json.RawMessage, error) {
	req := c.Request()
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apiclient.NewError(http.StatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, "Request body is too large", err)
		}
		return nil, apiclient.NewError(http.StatusBadRequest, http.StatusBadRequest, "Couldn't read request body", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, apiclient.NewError(http.StatusBadRequest, http.StatusBadRequest, "Request body must be JSON", nil)
	}
	return body, nil
}

func (w *Webserver) service(c echo.Context) (*resources.Service, error) {
	return resources.NewService(w.client, c.Param("resource"))
}

func (w *Webserver) enumsRouteHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, resources.Enums)
}

func (w *Webserver) reportRouteHandler(c echo.Context) error {
	raw, err := resources.Report(c.Request().Context(), w.client, c.Param("report"), c.QueryParams())
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusOK, raw)
}

func (w *Webserver) listRouteHandler(c echo.Context) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	items, err := svc.List(c.Request().Context(), c.QueryParams())
	if err != nil {
		return w.apiError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (w *Webserver) getRouteHandler(c echo.Context) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	raw, err := svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusOK, raw)
}

func (w *Webserver) createRouteHandler(c echo.Context) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return w.apiError(c, err)
	}

	raw, err := svc.Create(c.Request().Context(), body)
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusCreated, raw)
}

func (w *Webserver) updateRouteHandler(c echo.Context) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return w.apiError(c, err)
	}

	raw, err := svc.Update(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusOK, raw)
}

func (w *Webserver) deleteRouteHandler(c echo.Context) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	raw, err := svc.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusOK, raw)
}

func (w *Webserver) collectionActionRouteHandler(c echo.Context) error {
	return w.runAction(c, "")
}

func (w *Webserver) itemActionRouteHandler(c echo.Context) error {
	return w.runAction(c, c.Param("id"))
}

func (w *Webserver) runAction(c echo.Context, id string) error {
	svc, err := w.service(c)
	if err != nil {
		return w.apiError(c, err)
	}

	body, err := readBody(c)
	if err != nil {
		return w.apiError(c, err)
	}

	raw, err := svc.Do(c.Request().Context(), c.Param("action"), id, body)
	if err != nil {
		return w.apiError(c, err)
	}
	return writeResult(c, http.StatusOK, raw)
}
