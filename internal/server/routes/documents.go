package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/queue"
	"github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/pkg/extraction"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDocumentsHandler lists pages grouped by source.
func GetDocumentsHandler(c echo.Context) error {
	st := c.(*middleware.AppContext).App.Kinfolk.Store
	sources, err := st.ListDocumentSources(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sources)
}

func GetDocumentHandler(c echo.Context) error {
	type getDocumentParams struct {
		DocumentID int64 `param:"id" validate:"required,gt=0"`
	}

	params := new(getDocumentParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	doc, err := st.GetDocument(c.Request().Context(), params.DocumentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// PatchDocumentTypeHandler sets the document type of one page.
func PatchDocumentTypeHandler(c echo.Context) error {
	type patchDocumentBody struct {
		DocumentID   int64  `param:"id" validate:"required,gt=0"`
		DocumentType string `json:"document_type" validate:"required"`
	}

	data := new(patchDocumentBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	ctx := c.Request().Context()
	if err := st.SetDocumentType(ctx, data.DocumentID, data.DocumentType); err != nil {
		return writeError(c, err)
	}
	doc, err := st.GetDocument(ctx, data.DocumentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// DeleteDocumentHandler removes every page of the document's source. The
// optional file_key is removed from the bucket afterwards.
func DeleteDocumentHandler(c echo.Context) error {
	type deleteDocumentParams struct {
		DocumentID int64  `param:"id" validate:"required,gt=0"`
		FileKey    string `query:"file_key"`
		Async      bool   `query:"async"`
	}

	params := new(deleteDocumentParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	if params.Async && cc.App.Queue != nil {
		body, err := json.Marshal(queue.DeleteMsg{DocumentID: params.DocumentID, FileKey: params.FileKey})
		if err != nil {
			return writeError(c, err)
		}
		if err := cc.App.Queue.Publish(queue.DeleteQueue, body); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"message": "Deletion queued"})
	}

	report, err := cc.App.Kinfolk.Store.DeleteDocument(ctx, params.DocumentID)
	if err != nil {
		return writeError(c, err)
	}
	if params.FileKey != "" && cc.App.S3 != nil {
		if err := cc.App.S3.DeleteFile(ctx, params.FileKey); err != nil {
			logger.Warn("[Server] Failed to delete S3 file", "file_key", params.FileKey, "err", err)
			report.Warnings = append(report.Warnings, "file not deleted: "+err.Error())
		}
	}
	return c.JSON(http.StatusOK, report)
}

// PostExtractionHandler stores an extraction result for a page, creating
// the page when only source and page are given.
func PostExtractionHandler(c echo.Context) error {
	type postExtractionBody struct {
		queue.ExtractionMsg
		Async bool `json:"async"`
	}

	data := new(postExtractionBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if data.DocumentID == 0 && (data.Source == "" || data.Page <= 0) {
		return c.JSON(http.StatusBadRequest, errorResponse{"document_id or source and page are required"})
	}

	cc := c.(*middleware.AppContext)
	if data.Async && cc.App.Queue != nil {
		body, err := json.Marshal(data.ExtractionMsg)
		if err != nil {
			return writeError(c, err)
		}
		if err := cc.App.Queue.Publish(queue.ExtractionQueue, body); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"message": "Extraction queued"})
	}

	res, err := cc.App.Processor.Ingest(c.Request().Context(), data.ExtractionMsg)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func GetExtractionSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, extraction.Schema())
}

// GetFileLinkHandler returns a short-lived download link for a stored file.
func GetFileLinkHandler(c echo.Context) error {
	type getFileParams struct {
		FileKey string `query:"key" validate:"required"`
	}

	params := new(getFileParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	s3 := c.(*middleware.AppContext).App.S3
	if s3 == nil {
		return c.JSON(http.StatusNotFound, errorResponse{"File storage is not configured"})
	}

	link, err := s3.GenerateDownloadLink(c.Request().Context(), params.FileKey, 15*time.Minute)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": link})
}
