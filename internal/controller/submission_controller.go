package controller

import (
	"errors"
	"net/http"
	"strconv"

	"omr_grading_backend/internal/omr"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	Submissions *service.SubmissionService
}

func NewSubmissionController(submissions *service.SubmissionService) *SubmissionController {
	return &SubmissionController{Submissions: submissions}
}

// Create godoc
// @Summary Upload an answer sheet
// @Description Stores the sheet, creates a submission in processing and starts grading in the background
// @Tags submissions
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param examName formData string true "Exam name"
// @Param totalQuestions formData int true "Number of questions on the sheet"
// @Param sheet formData file true "Answer sheet image (jpg, png or webp)"
// @Param answerKey formData file false "Answer key file (csv or json)"
// @Success 201 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response
// @Router /api/submissions [post]
func (ctl *SubmissionController) Create(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	totalQuestions, err := strconv.Atoi(c.PostForm("totalQuestions"))
	if err != nil {
		util.BadRequest(c, "totalQuestions must be an integer")
		return
	}

	sheet, err := c.FormFile("sheet")
	if err != nil {
		util.BadRequest(c, "sheet file is required")
		return
	}

	// Optional; grading synthesizes a flagged placeholder key without it.
	answerKey, _ := c.FormFile("answerKey")

	sub, err := ctl.Submissions.Create(c.Request.Context(), service.CreateSubmissionInput{
		UserID:         claims.UserID,
		ExamName:       c.PostForm("examName"),
		TotalQuestions: totalQuestions,
		Sheet:          sheet,
		AnswerKey:      answerKey,
	})
	if err != nil {
		var verr *omr.ValidationError
		if errors.As(err, &verr) {
			util.BadRequest(c, verr.Error())
			return
		}
		util.LogInternalError(c, err)
		return
	}

	util.Created(c, sub)
}

// List godoc
// @Summary List the caller's submissions
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/submissions [get]
func (ctl *SubmissionController) List(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	subs, err := ctl.Submissions.List(claims.UserID)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, subs)
}

// Stats godoc
// @Summary Aggregate stats over the caller's submissions
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=repository.SubmissionStats}
// @Router /api/submissions/stats [get]
func (ctl *SubmissionController) Stats(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	stats, err := ctl.Submissions.Stats(claims.UserID)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, stats)
}

// Detail godoc
// @Summary Submission detail
// @Description Returns the submission, its per-question results and the caller's previous completed submissions
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} util.Response{data=service.SubmissionDetail}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/submissions/{id} [get]
func (ctl *SubmissionController) Detail(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	detail, err := ctl.Submissions.Detail(claims.UserID, c.Param("id"))
	if err != nil {
		ctl.handleLookupError(c, err)
		return
	}
	util.Success(c, detail)
}

// Trigger godoc
// @Summary Re-drive grading for a stuck submission
// @Description Restarts the pipeline for a submission still in processing
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/submissions/{id}/process [post]
func (ctl *SubmissionController) Trigger(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	if err := ctl.Submissions.Trigger(claims.UserID, c.Param("id")); err != nil {
		if errors.Is(err, util.ErrAlreadyTerminal) {
			util.Error(c, http.StatusConflict, "Submission already reached a terminal state")
			return
		}
		ctl.handleLookupError(c, err)
		return
	}
	util.Success(c, gin.H{"status": "processing"})
}

// AdminList godoc
// @Summary Recent submissions across all users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows" default(50)
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/admin/submissions [get]
func (ctl *SubmissionController) AdminList(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			util.BadRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	subs, err := ctl.Submissions.ListRecent(limit)
	if err != nil {
		util.LogInternalError(c, err)
		return
	}
	util.Success(c, subs)
}

// KeyTemplate godoc
// @Summary Download an answer key CSV template
// @Tags submissions
// @Produce text/csv
// @Security BearerAuth
// @Param totalQuestions query int false "Number of rows to generate" default(10)
// @Success 200 {string} string
// @Router /api/answer-key/template [get]
func (ctl *SubmissionController) KeyTemplate(c *gin.Context) {
	totalQuestions := 10
	if raw := c.Query("totalQuestions"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			util.BadRequest(c, "totalQuestions must be between 1 and 200")
			return
		}
		totalQuestions = n
	}

	c.Header("Content-Disposition", `attachment; filename="answer_key_template.csv"`)
	c.Data(http.StatusOK, util.MimeCSV, omr.KeyTemplateCSV(totalQuestions))
}

func (ctl *SubmissionController) handleLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSubmissionNotFound):
		util.NotFound(c)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(c)
	default:
		util.LogInternalError(c, err)
	}
}
