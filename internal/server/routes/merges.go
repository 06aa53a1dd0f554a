package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kinfolk-ai/kinfolk/internal/queue"
	"github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/merge"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"

	"github.com/labstack/echo/v4"
)

// GetDuplicatesHandler returns duplicate candidates, strongest first.
// min_confidence can only raise the configured floor.
func GetDuplicatesHandler(c echo.Context) error {
	type getDuplicatesParams struct {
		MinConfidence float64 `query:"min_confidence" validate:"gte=0,lte=1"`
	}

	params := new(getDuplicatesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	finder := c.(*middleware.AppContext).App.Kinfolk.Finder
	candidates, err := finder.FindDuplicates(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	out := make([]reconcile.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Confidence >= params.MinConfidence {
			out = append(out, cand)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// PostMergeHandler merges one person into another.
func PostMergeHandler(c echo.Context) error {
	type postMergeBody struct {
		KeepID                  int64    `json:"keep_id" validate:"required,gt=0"`
		MergeID                 int64    `json:"merge_id" validate:"required,gt=0,nefield=KeepID"`
		Confidence              *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
		Reasons                 []string `json:"reasons"`
		LinkCollapse            string   `json:"link_collapse" validate:"omitempty,oneof=document_type document"`
		KeepAbsorbedPrimaryName bool     `json:"keep_absorbed_primary_name"`
	}

	data := new(postMergeBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	confidence, err := genealogy.ConfidenceFromPtr(data.Confidence)
	if err != nil {
		return writeError(c, err)
	}

	cc := c.(*middleware.AppContext)
	report, err := cc.App.Kinfolk.Merger.Merge(c.Request().Context(), data.KeepID, data.MergeID, merge.MergeOptions{
		Confidence:              confidence,
		Reasons:                 data.Reasons,
		MergedBy:                fmt.Sprintf("user:%d", cc.User.UserID),
		LinkCollapse:            merge.LinkCollapse(data.LinkCollapse),
		KeepAbsorbedPrimaryName: data.KeepAbsorbedPrimaryName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func GetMergesHandler(c echo.Context) error {
	type getMergesParams struct {
		Limit int `query:"limit" validate:"gte=0,lte=1000"`
	}

	params := new(getMergesParams)
	if err := c.Bind(params); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(params); err != nil {
		return badRequest(c)
	}

	st := c.(*middleware.AppContext).App.Kinfolk.Store
	merges, err := st.ListMerges(c.Request().Context(), params.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, merges)
}

// PostReconcileHandler runs an auto-approve reconciliation pass, or queues
// one for the worker when async is set and a queue is available.
func PostReconcileHandler(c echo.Context) error {
	type postReconcileBody struct {
		AutoThreshold float64 `json:"auto_threshold" validate:"gte=0,lte=1"`
		MaxMerges     int     `json:"max_merges" validate:"gte=0"`
		Async         bool    `json:"async"`
	}

	data := new(postReconcileBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	cc := c.(*middleware.AppContext)
	mergedBy := fmt.Sprintf("user:%d", cc.User.UserID)

	if data.Async && cc.App.Queue != nil {
		body, err := json.Marshal(queue.ReconcileMsg{MergedBy: mergedBy, MaxMerges: data.MaxMerges})
		if err != nil {
			return writeError(c, err)
		}
		if err := cc.App.Queue.Publish(queue.ReconcileQueue, body); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"message": "Reconciliation queued"})
	}

	k := cc.App.Kinfolk
	policy := k.Config.AutoPolicy(mergedBy)
	if data.AutoThreshold > 0 {
		policy.AutoThreshold = data.AutoThreshold
	}
	if data.MaxMerges > 0 {
		policy.MaxMerges = data.MaxMerges
	}

	run, err := k.Reconciler.Run(c.Request().Context(), policy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
