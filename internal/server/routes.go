package server

import (
	"github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// People routes
	apiRoutes.GET("/people", routes.GetPeopleHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.GET("/people/:id", routes.GetPersonHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.GET("/people/:id/tree", routes.GetPersonTreeHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.PATCH("/people/:id/family", routes.PatchPersonFamilyHandler, middleware.RequirePermission(middleware.PermPeopleMerge))
	apiRoutes.GET("/families", routes.GetFamiliesHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.GET("/tree", routes.GetTreeGraphHandler, middleware.RequirePermission(middleware.PermPeopleView))

	// Reconciliation routes
	apiRoutes.GET("/duplicates", routes.GetDuplicatesHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.GET("/merges", routes.GetMergesHandler, middleware.RequirePermission(middleware.PermPeopleView))
	apiRoutes.POST("/merges", routes.PostMergeHandler, middleware.RequirePermission(middleware.PermPeopleMerge))
	apiRoutes.POST("/reconcile", routes.PostReconcileHandler, middleware.RequirePermission(middleware.PermReconcileRun))

	// Document routes
	apiRoutes.GET("/documents", routes.GetDocumentsHandler, middleware.RequirePermission(middleware.PermDocumentsView))
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler, middleware.RequirePermission(middleware.PermDocumentsView))
	apiRoutes.PATCH("/documents/:id", routes.PatchDocumentTypeHandler, middleware.RequirePermission(middleware.PermDocumentsIngest))
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler, middleware.RequirePermission(middleware.PermDocumentsDelete))
	apiRoutes.GET("/files", routes.GetFileLinkHandler, middleware.RequirePermission(middleware.PermDocumentsView))
	apiRoutes.POST("/extractions", routes.PostExtractionHandler, middleware.RequirePermission(middleware.PermDocumentsIngest))
	apiRoutes.GET("/extractions/schema", routes.GetExtractionSchemaHandler)

	// Export routes
	apiRoutes.GET("/export/gedcom", routes.ExportGedcomHandler, middleware.RequirePermission(middleware.PermExport))
	apiRoutes.GET("/stats", routes.GetStatsHandler, middleware.RequirePermission(middleware.PermPeopleView))
}
