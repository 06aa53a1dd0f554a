package routes

import (
	"bytes"
	"net/http"

	"github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/pkg/gedcom"

	"github.com/labstack/echo/v4"
)

// GetTreeGraphHandler returns nodes and edges around person_id, or the
// whole graph when person_id is omitted.
func GetTreeGraphHandler(c echo.Context) error {
	type getTreeParams struct {
		PersonID int64 `query:"person_id" validate:"gte=0"`
		Depth    int   `query:"depth" validate:"gte=0"`
	}

	params := new(getTreeParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	graph, err := st.GetTreeGraph(c.Request().Context(), params.PersonID, params.Depth)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, graph)
}

// ExportGedcomHandler streams the whole store as a GEDCOM file.
func ExportGedcomHandler(c echo.Context) error {
	st := c.(*middleware.AppContext).App.Kinfolk.Store
	snap, err := st.GetSnapshot(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	var buf bytes.Buffer
	if err := gedcom.Write(&buf, snap); err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="kinfolk.ged"`)
	return c.Blob(http.StatusOK, "text/x-gedcom; charset=utf-8", buf.Bytes())
}

func GetStatsHandler(c echo.Context) error {
	st := c.(*middleware.AppContext).App.Kinfolk.Store
	stats, err := st.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
