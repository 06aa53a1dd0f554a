package routes

import (
	"net/http"

	"github.com/kinfolk-ai/kinfolk/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// GetPeopleHandler lists people by birth year, or searches by name when q
// is given.
func GetPeopleHandler(c echo.Context) error {
	type getPeopleParams struct {
		Query string `query:"q"`
	}

	params := new(getPeopleParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	ctx := c.Request().Context()

	if params.Query != "" {
		people, err := st.FindPersonByName(ctx, params.Query)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, people)
	}

	people, err := st.ListPeople(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, people)
}

func GetPersonHandler(c echo.Context) error {
	type getPersonParams struct {
		PersonID int64 `param:"id" validate:"required,gt=0"`
	}

	params := new(getPersonParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	detail, err := st.GetPersonDetail(c.Request().Context(), params.PersonID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// GetPersonTreeHandler returns the immediate family of a person.
func GetPersonTreeHandler(c echo.Context) error {
	type getPersonTreeParams struct {
		PersonID int64 `param:"id" validate:"required,gt=0"`
	}

	params := new(getPersonTreeParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	tree, err := st.GetFamilyTree(c.Request().Context(), params.PersonID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

// PatchPersonFamilyHandler tags a person with a family name and side.
func PatchPersonFamilyHandler(c echo.Context) error {
	type patchFamilyBody struct {
		PersonID   int64  `param:"id" validate:"required,gt=0"`
		FamilyName string `json:"family_name" validate:"required"`
		FamilySide string `json:"family_side"`
	}

	data := new(patchFamilyBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	ctx := c.Request().Context()
	if err := st.SetFamily(ctx, data.PersonID, data.FamilyName, data.FamilySide); err != nil {
		return writeError(c, err)
	}

	person, err := st.GetPerson(ctx, data.PersonID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, person)
}

func GetFamiliesHandler(c echo.Context) error {
	st := c.(*middleware.AppContext).App.Kinfolk.Store
	families, err := st.ListFamilies(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, families)
}
