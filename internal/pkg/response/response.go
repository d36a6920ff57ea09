package response

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// Envelope is the body of every /api response.
type Envelope struct {
	Success       bool              `json:"success"`
	Data          any               `json:"data,omitempty"`
	Error         string            `json:"error,omitempty"`
	Code          string            `json:"code,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	RetryAfter    int               `json:"retryAfter,omitempty"`
	SuggestedSlug string            `json:"suggestedSlug,omitempty"`
}

// Page is the data shape of paginated list responses.
type Page struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

var logger = zap.NewNop()

// SetLogger configures where internal errors are reported.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l.Named("Response")
	}
}

// OK sends a 200 success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created sends a 201 success envelope.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Accepted acknowledges work that continues in the background.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Envelope{Success: true, Data: data})
}

// Paged sends a paginated list.
func Paged(c *gin.Context, items any, total, limit, offset int) {
	OK(c, Page{Items: items, Total: total, Limit: limit, Offset: offset})
}

// BadRequest sends a 400 error envelope.
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, Envelope{Error: message, Code: string(apperr.KindValidation)})
}

// Unauthorized sends a 401 error envelope.
func Unauthorized(c *gin.Context) {
	fail(c, http.StatusUnauthorized, Envelope{Error: "authentication required", Code: string(apperr.KindUnauthenticated)})
}

// Forbidden sends a 403 error envelope.
func Forbidden(c *gin.Context) {
	fail(c, http.StatusForbidden, Envelope{Error: "insufficient permissions", Code: string(apperr.KindUnauthorized)})
}

// NotFound sends a 404 error envelope.
func NotFound(c *gin.Context) {
	fail(c, http.StatusNotFound, Envelope{Error: "Not found", Code: string(apperr.KindNotFound)})
}

// MethodNotAllowed sends a 405 error envelope.
func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, Envelope{Error: "Method not allowed", Code: "method_not_allowed"})
}

// Error maps err onto the envelope. Unclassified errors become 500 with a generic message.
func Error(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("internal error", err)
	}
	status := Status(e.Kind)
	body := Envelope{
		Error:         e.Message,
		Code:          string(e.Kind),
		Fields:        e.Fields,
		SuggestedSlug: e.SuggestedSlug,
	}
	if e.Kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		body.RetryAfter = secs
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	fail(c, status, body)
}

// Status maps an error kind to its HTTP status code.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindValidation, apperr.KindInvalidPackage:
		return http.StatusBadRequest
	case apperr.KindDuplicateSlug, apperr.KindConflict, apperr.KindAlreadyInstalled:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, body Envelope) {
	body.Success = false
	c.AbortWithStatusJSON(status, body)
}
