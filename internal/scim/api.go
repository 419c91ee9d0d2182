package scim

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// HTTPHandler is the gin transport for the SCIM User surface (§6).
type HTTPHandler struct {
	svc      *Service
	logger   *zap.Logger
	validate *validator.Validate
}

// NewHTTPHandler creates a new SCIM HTTP handler.
func NewHTTPHandler(svc *Service, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{svc: svc, logger: logger, validate: validator.New()}
}

// RegisterRoutes mounts the /scim/v2/Users routes. authGate is the
// caller-provided authentication hook the core assumes runs first;
// pass nil to skip it (e.g. in tests).
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine, authGate gin.HandlerFunc) {
	group := router.Group("/scim/v2")
	if authGate != nil {
		group.Use(authGate)
	}
	group.Use(scimContentType())

	group.GET("/Users", h.listUsers)
	group.GET("/Users/:id", h.getUser)
	group.POST("/Users", h.createUser)
	group.PUT("/Users/:id", h.replaceUser)
	group.PATCH("/Users/:id", h.patchUser)
	group.DELETE("/Users/:id", h.deleteUser)
}

func scimContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/scim+json")
		c.Next()
	}
}

func (h *HTTPHandler) listUsers(c *gin.Context) {
	filter := c.Query("filter")
	startIndex, _ := strconv.Atoi(c.DefaultQuery("startIndex", "1"))
	count, _ := strconv.Atoi(c.DefaultQuery("count", "100"))

	resp, apiErr := h.svc.List(c.Request.Context(), filter, startIndex, count)
	if apiErr != nil {
		h.respondError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) getUser(c *gin.Context) {
	user, apiErr := h.svc.Get(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		h.respondError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) createUser(c *gin.Context) {
	var req User
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: "malformed JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: err.Error()})
		return
	}

	user, apiErr := h.svc.Create(c.Request.Context(), req)
	if apiErr != nil {
		h.respondError(c, apiErr)
		return
	}

	c.Header("Location", locationFor(user))
	c.JSON(http.StatusCreated, user)
}

func (h *HTTPHandler) replaceUser(c *gin.Context) {
	var req User
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: "malformed JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: err.Error()})
		return
	}

	user, apiErr := h.svc.Replace(c.Request.Context(), c.Param("id"), req)
	if apiErr != nil {
		h.respondError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) patchUser(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: "malformed JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, &APIError{Status: 400, ScimType: "invalidValue", Detail: err.Error()})
		return
	}

	user, apiErr := h.svc.Patch(c.Request.Context(), c.Param("id"), req)
	if apiErr != nil {
		h.respondError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) deleteUser(c *gin.Context) {
	if apiErr := h.svc.Delete(c.Request.Context(), c.Param("id")); apiErr != nil {
		h.respondError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) respondError(c *gin.Context, apiErr *APIError) {
	if apiErr.Status >= 500 {
		h.logger.Error("scim request failed", zap.Int("status", apiErr.Status), zap.String("detail", apiErr.Detail))
	}
	c.JSON(apiErr.Status, FormatError(apiErr.Status, apiErr.ScimType, apiErr.Detail))
}

func locationFor(u User) string {
	if u.Meta != nil {
		return u.Meta.Location
	}
	return ""
}
