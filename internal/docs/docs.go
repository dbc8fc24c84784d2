// Package docs serves the OpenAPI description of the admin API.
package docs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// SchemaLister is implemented by validation.SchemaValidator.
type SchemaLister interface {
	GetAvailableSchemas() []string
}

// ErrorCode documents one value of the error.code field.
type ErrorCode struct {
	Code        string `json:"code"`
	HTTPStatus  int    `json:"http_status"`
	Description string `json:"description"`
}

// ErrorCodes lists the error codes the API can return.
var ErrorCodes = []ErrorCode{
	{"MISSING_AUTHORIZATION", http.StatusUnauthorized, "No bearer token or API key was sent"},
	{"INVALID_AUTHORIZATION_FORMAT", http.StatusUnauthorized, "The Authorization header is not a Bearer value"},
	{"INVALID_TOKEN", http.StatusUnauthorized, "The bearer token is malformed, expired or revoked"},
	{"INVALID_API_KEY", http.StatusUnauthorized, "The API key is unknown"},
	{"INSUFFICIENT_ROLE", http.StatusForbidden, "The caller's role does not allow this operation"},
	{"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests, "Too many requests in the current window"},
	{"INVALID_HEADER", http.StatusUnsupportedMediaType, "Request bodies must be application/json"},
	{"BODY_TOO_LARGE", http.StatusRequestEntityTooLarge, "The request body exceeds the size limit"},
	{"BODY_READ_ERROR", http.StatusBadRequest, "The request body could not be read"},
	{"EMPTY_BODY", http.StatusBadRequest, "The request body is empty"},
	{"INVALID_JSON", http.StatusBadRequest, "The request body is not valid JSON"},
	{"VALIDATION_ERROR", http.StatusBadRequest, "The request body does not match its schema"},
	{"INVALID_REQUEST", http.StatusBadRequest, "The request body could not be bound"},
	{"INVALID_QUERY_PARAM", http.StatusBadRequest, "A query parameter could not be parsed"},
	{"INVALID_DECISION_ID", http.StatusBadRequest, "The decision id is not a UUID"},
	{"TOO_MANY_ITEMS", http.StatusBadRequest, "The explain request carries more items than allowed"},
	{"BACKEND_REJECTED", http.StatusBadRequest, "The ranking backend rejected the request"},
	{"DECISION_NOT_FOUND", http.StatusNotFound, "No decision trace has that id"},
	{"TRACE_NOT_YET_AVAILABLE", http.StatusNotFound, "The decision trace has not been recorded yet"},
	{"EXPLAIN_FAILED", http.StatusInternalServerError, "Attribution could not be computed"},
	{"AUDIT_QUERY_FAILED", http.StatusInternalServerError, "The audit store could not be queried"},
	{"AUTH_FAILED", http.StatusInternalServerError, "A token could not be issued"},
	{"REVOKE_FAILED", http.StatusInternalServerError, "The session could not be revoked"},
	{"INTERNAL_SERVER_ERROR", http.StatusInternalServerError, "Unexpected server failure"},
	{"BACKEND_ERROR", http.StatusBadGateway, "The ranking backend returned an error"},
	{"BACKEND_UNAVAILABLE", http.StatusServiceUnavailable, "The ranking backend circuit is open"},
	{"BACKEND_TIMEOUT", http.StatusGatewayTimeout, "The ranking backend did not answer in time"},
	{"LOOKUP_CANCELLED", http.StatusGatewayTimeout, "The decision lookup was cancelled"},
}

type Handler struct {
	schemas SchemaLister
	json    []byte
}

// NewHandler parses the embedded OpenAPI document once so the JSON
// rendition can be served without re-encoding per request.
func NewHandler(schemas SchemaLister) (*Handler, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPISpec, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse openapi spec: %w", err)
	}
	data, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return &Handler{schemas: schemas, json: data}, nil
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	docs := router.Group("/docs")
	{
		docs.GET("/openapi.yaml", h.OpenAPIYAML)
		docs.GET("/openapi.json", h.OpenAPIJSON)
		docs.GET("/schemas", h.Schemas)
		docs.GET("/errors", h.Errors)
	}
}

func (h *Handler) OpenAPIYAML(c *gin.Context) {
	c.Data(http.StatusOK, "application/x-yaml", openAPISpec)
}

func (h *Handler) OpenAPIJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", h.json)
}

// Schemas lists the request body schemas enforced by the API.
func (h *Handler) Schemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schemas": h.schemas.GetAvailableSchemas()})
}

func (h *Handler) Errors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"errors": ErrorCodes})
}

// jsonCompatible encodes a decoded YAML document as JSON. Maps with
// non-string keys are rekeyed with their printed form.
func jsonCompatible(doc any) ([]byte, error) {
	data, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode openapi spec as json: %w", err)
	}
	return data, nil
}

func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = stringKeys(t[i])
		}
		return t
	default:
		return v
	}
}
