package server

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/labstack/echo/v4"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/matrixio"
)

// Server serves the Core over HTTP with echo.
type Server struct {
	core *Core
}

func NewServer(core *Core) *Server {
	return &Server{core: core}
}

// RegisterHandlersWithBaseURL adds the API routes to e under baseURL.
func (svr *Server) RegisterHandlersWithBaseURL(e *echo.Echo, baseURL string) {
	g := e.Group(baseURL)
	g.POST("/normalize", svr.handle(svr.normalize))
	g.POST("/deviation", svr.handle(svr.deviation))
	g.POST("/closest", svr.handle(svr.closest))
	g.PUT("/matrices/:id", svr.handle(svr.putMatrix))
	g.GET("/matrices/:id", svr.handle(svr.getMatrix))
	g.HEAD("/matrices/:id", svr.handle(svr.headMatrix))
	g.DELETE("/matrices/:id", svr.handle(svr.deleteMatrix))
}

// handle adapts f into an echo handler that reports errors
// as JSON {"message": ...} bodies with the matching status code.
func (svr *Server) handle(f func(c echo.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := svr.core.Logger.WithContext(req.Context())
		c.SetRequest(req.WithContext(ctx))
		err := f(c)
		if err == nil {
			return nil
		}
		code := StatusOf(err)
		event := svr.core.Logger.Debug()
		if code >= http.StatusInternalServerError {
			event = svr.core.Logger.Error()
		}
		event.Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Msg("request failed")
		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("message")
		e.Str(err.Error())
		e.ObjEnd()
		return c.Blob(code, echo.MIMEApplicationJSON, e.Bytes())
	}
}

func decodeBody(c echo.Context) (*Request, error) {
	return DecodeRequest(jx.Decode(c.Request().Body, 4096))
}

func sendJSON(c echo.Context, code int, f func(e *jx.Encoder)) error {
	var e jx.Encoder
	f(&e)
	return c.Blob(code, echo.MIMEApplicationJSON, e.Bytes())
}

func encodeVector(e *jx.Encoder, v mat.Vector) {
	e.ArrStart()
	for i := 0; i < v.Len(); i++ {
		e.Float64(v.AtVec(i))
	}
	e.ArrEnd()
}

func (svr *Server) normalize(c echo.Context) error {
	req, err := decodeBody(c)
	if err != nil {
		return err
	}
	res, err := svr.core.Normalize(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("matrix")
		matrixio.EncodeJSON(e, res.Matrix)
		e.FieldStart("rowScale")
		encodeVector(e, res.RowScale)
		e.FieldStart("colScale")
		encodeVector(e, res.ColScale)
		e.FieldStart("iterations")
		e.Int(res.Iterations)
		e.FieldStart("converged")
		e.Bool(res.Converged)
		e.FieldStart("error")
		e.Float64(res.Error)
		e.ObjEnd()
	})
}

func (svr *Server) deviation(c echo.Context) error {
	req, err := decodeBody(c)
	if err != nil {
		return err
	}
	dev, err := svr.core.Deviation(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.Float64(dev)
		e.ObjEnd()
	})
}

func (svr *Server) closest(c echo.Context) error {
	req, err := decodeBody(c)
	if err != nil {
		return err
	}
	res, err := svr.core.Closest(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("matrix")
		matrixio.EncodeJSON(e, res.Matrix)
		e.FieldStart("error")
		e.Float64(res.Error)
		e.FieldStart("distance")
		e.Float64(res.Distance)
		e.ObjEnd()
	})
}

func (svr *Server) putMatrix(c echo.Context) error {
	id := c.Param("id")
	req, err := decodeBody(c)
	if err != nil {
		return err
	}
	if req.Matrix == nil {
		return HTTPError{
			Code:  http.StatusBadRequest,
			Inner: errors.New("inline matrix required"),
		}
	}
	r, cols := req.Matrix.Dims()
	svr.core.Logger.Trace().
		Str("matrixId", id).
		Int("rows", r).
		Int("cols", cols).
		Msg("storing matrix")
	if svr.core.StoredMatrices.Set(id, req.Matrix) {
		return c.NoContent(http.StatusCreated)
	}
	return c.NoContent(http.StatusOK)
}

func notFound(id string) error {
	return HTTPError{
		Code:  http.StatusNotFound,
		Inner: errors.Errorf("no stored matrix %#v", id),
	}
}

func (svr *Server) getMatrix(c echo.Context) error {
	id := c.Param("id")
	m, modified, ok := svr.core.StoredMatrices.Copy(id)
	if !ok {
		return notFound(id)
	}
	setLastModified(c, modified)
	return sendJSON(c, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("matrix")
		matrixio.EncodeJSON(e, m)
		e.ObjEnd()
	})
}

func (svr *Server) headMatrix(c echo.Context) error {
	modified, ok := svr.core.StoredMatrices.Modified(c.Param("id"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	setLastModified(c, modified)
	return c.NoContent(http.StatusNoContent)
}

func setLastModified(c echo.Context, t time.Time) {
	c.Response().Header().Set(echo.HeaderLastModified,
		t.UTC().Format(http.TimeFormat))
}

func (svr *Server) deleteMatrix(c echo.Context) error {
	id := c.Param("id")
	if !svr.core.StoredMatrices.Delete(id) {
		return notFound(id)
	}
	return c.NoContent(http.StatusNoContent)
}
