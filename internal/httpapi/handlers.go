package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/refset/prevd-classifier/internal/classifier"
	"github.com/refset/prevd-classifier/internal/config"
	"github.com/refset/prevd-classifier/internal/intake"
	"github.com/refset/prevd-classifier/internal/pipeline"
	"github.com/refset/prevd-classifier/internal/store"
)

// ValidationError is a malformed request. It maps to HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// bindError turns a gin binding failure into a ValidationError.
func bindError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Namespace(), Message: "failed on the '" + fe.Tag() + "' rule"}
	}
	return &ValidationError{Message: err.Error()}
}

func abortWith(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

type rawEntryRequest struct {
	Header      string `json:"header"`
	Value       string `json:"value"`
	ColumnIndex int    `json:"columnIndex" binding:"min=0"`
}

type classifyRowRequest struct {
	RowIndex          int               `json:"rowIndex" binding:"required,min=1"`
	RawData           map[string]string `json:"rawData" binding:"required"`
	RawEntries        []rawEntryRequest `json:"rawEntries" binding:"omitempty,dive"`
	Criteria          string            `json:"criteria"`
	CoreValue         string            `json:"coreValue"`
	AbuserCriteria    string            `json:"abuserCriteria"`
	DiscoveryCriteria string            `json:"discoveryCriteria"`
	SampleCount       *int              `json:"sampleCount" binding:"omitempty,min=1,max=7"`
}

func (s *Server) classifyRow(c *gin.Context) {
	var req classifyRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, bindError(err))
		return
	}

	entries := make([]classifier.RawEntry, len(req.RawEntries))
	for i, e := range req.RawEntries {
		entries[i] = classifier.RawEntry{Header: e.Header, Value: e.Value, ColumnIndex: e.ColumnIndex}
	}
	n := s.sampleCount
	if req.SampleCount != nil {
		n = *req.SampleCount
	}

	resp, err := s.pipe.ClassifyRow(c.Request.Context(), pipeline.RowRequest{
		RowIndex:   req.RowIndex,
		RawData:    req.RawData,
		RawEntries: entries,
		Criteria: s.withDefaults(classifier.Criteria{
			User:      req.Criteria,
			CoreValue: req.CoreValue,
			Abuser:    req.AbuserCriteria,
			Discovery: req.DiscoveryCriteria,
		}),
		SampleCount: n,
	})
	if err != nil {
		s.log.Error("classify row failed", zap.Int("row", req.RowIndex), zap.Error(err))
		abortWith(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) classifyUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		abortWith(c, http.StatusBadRequest, &ValidationError{Field: "file", Message: "CSV file is required."})
		return
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		abortWith(c, http.StatusBadRequest, &ValidationError{Field: "file", Message: "Only CSV files are supported."})
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	defer f.Close()

	up, err := intake.ParseCSV(f)
	if err != nil {
		abortWith(c, http.StatusBadRequest, &ValidationError{Field: "file", Message: err.Error()})
		return
	}
	up.Filename = fh.Filename

	job := pipeline.Job{
		Filename: fh.Filename,
		Upload:   up,
		Criteria: s.withDefaults(classifier.Criteria{
			User:      strings.TrimSpace(c.PostForm("criteria")),
			CoreValue: strings.TrimSpace(c.PostForm("coreValue")),
			Abuser:    strings.TrimSpace(c.PostForm("abuserCriteria")),
			Discovery: strings.TrimSpace(c.PostForm("discoveryCriteria")),
		}),
		SampleCount:    formInt(c.PostForm("sampleCount"), s.sampleCount, config.ClampSampleCount),
		RowConcurrency: formInt(c.PostForm("rowConcurrency"), s.rowConcurrency, config.ClampRowConcurrency),
	}
	if err := s.pipe.Validate(job); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Status(http.StatusOK)

	// The error event already carries the failure to the client.
	if _, err := s.pipe.Run(c.Request.Context(), job, pipeline.NewNDJSONSink(c.Writer)); err != nil {
		s.log.Warn("upload classification failed", zap.String("file", fh.Filename), zap.Error(err))
	}
}

func (s *Server) listRows(c *gin.Context) {
	rows, err := s.store.Rows(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":           r.ID,
			"rowIndex":     r.RowIndex,
			"modelLabel":   r.ModelLabel,
			"finalLabel":   r.FinalLabel,
			"confidence":   r.Confidence,
			"overriddenBy": r.OverriddenBy,
			"overriddenAt": r.OverriddenAt,
			"row":          r.Payload,
		})
	}
	c.JSON(http.StatusOK, gin.H{"uploadId": c.Param("id"), "rows": out})
}

type overrideRequest struct {
	Label string `json:"label" binding:"required"`
	By    string `json:"by"`
}

func (s *Server) overrideRow(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, bindError(err))
		return
	}
	label, err := classifier.ParseLabel(req.Label)
	if err != nil {
		abortWith(c, http.StatusBadRequest, &ValidationError{Field: "label", Message: err.Error()})
		return
	}

	id := c.Param("id")
	if err := s.store.Override(c.Request.Context(), id, label, req.By); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		abortWith(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "finalLabel": label})
}

// withDefaults fills blank criteria from the configured defaults.
func (s *Server) withDefaults(c classifier.Criteria) classifier.Criteria {
	if c.User == "" {
		c.User = s.criteria.User
	}
	if c.CoreValue == "" {
		c.CoreValue = s.criteria.CoreValue
	}
	if c.Abuser == "" {
		c.Abuser = s.criteria.Abuser
	}
	if c.Discovery == "" {
		c.Discovery = s.criteria.Discovery
	}
	return c
}

// formInt parses a form number, truncating fractions. Missing or non-numeric
// values use def; the result is passed through clamp.
func formInt(v string, def int, clamp func(int) int) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return clamp(int(math.Floor(f)))
}
