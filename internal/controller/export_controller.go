package controller

import (
	"errors"
	"fmt"
	"net/http"

	"omr_grading_backend/internal/omr"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExportController struct {
	Submissions *service.SubmissionService
}

func NewExportController(submissions *service.SubmissionService) *ExportController {
	return &ExportController{Submissions: submissions}
}

// ExportCSV godoc
// @Summary Export results as CSV
// @Description Per-question rows followed by a summary block; only completed submissions export
// @Tags export
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {string} string
// @Failure 409 {object} util.Response
// @Router /api/submissions/{id}/export/csv [get]
func (ctl *ExportController) ExportCSV(c *gin.Context) {
	ctl.export(c, util.MimeCSV, ctl.Submissions.ExportCSV)
}

// Report godoc
// @Summary Export a printable HTML report
// @Tags export
// @Produce text/html
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {string} string
// @Failure 409 {object} util.Response
// @Router /api/submissions/{id}/export/report [get]
func (ctl *ExportController) Report(c *gin.Context) {
	ctl.export(c, util.MimeHTML, ctl.Submissions.ExportHTML)
}

func (ctl *ExportController) export(c *gin.Context, contentType string, render func(uint, string) ([]byte, string, error)) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	data, filename, err := render(claims.UserID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, omr.ErrNotReady):
			util.Error(c, http.StatusConflict, "Submission has no exportable results yet")
		case errors.Is(err, util.ErrSubmissionNotFound):
			util.NotFound(c)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(c)
		default:
			util.LogInternalError(c, err)
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}
