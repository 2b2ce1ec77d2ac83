package scim

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/filter"
	"github.com/scimgate/scimgate/internal/store"
)

const (
	contentType  = "application/scim+json"
	defaultCount = 50
)

// Config is the dispatcher's static configuration, loaded once at startup
// and immutable afterwards.
type Config struct {
	BearerToken      string
	BaseURL          string
	BasePath         string
	DocumentationURI string
}

// Handler serves the SCIM endpoints for one deployment.
type Handler struct {
	store  store.Store
	logger *zap.Logger
	cfg    Config
	base   string
}

// NewHandler creates the dispatcher. base locations are composed from the
// configured base URL and path.
func NewHandler(s store.Store, logger *zap.Logger, cfg Config) *Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = "/scim/v2"
	}
	return &Handler{
		store:  s,
		logger: logger,
		cfg:    cfg,
		base:   strings.TrimRight(cfg.BaseURL, "/") + cfg.BasePath,
	}
}

// RegisterRoutes registers the SCIM endpoints under the configured base path.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group(h.cfg.BasePath)

	// not implemented by this deployment, answered before authentication
	g.Any("", notImplemented)
	g.Any("/", notImplemented)
	g.Any("/Me", notImplemented)

	g.GET("/ServiceProviderConfig", h.wrap(h.serviceProviderConfig))
	g.GET("/ResourceTypes", h.wrap(h.resourceTypes))
	g.GET("/ResourceTypes/:id", h.wrap(h.resourceType))

	users := g.Group("/Users")
	{
		users.GET("", h.wrap(h.listUsers))
		users.POST("", h.wrap(h.createUser))
		users.GET("/:id", h.wrap(h.getUser))
		users.POST("/:id", h.wrap(h.searchUsers)) // POST /Users/.search
		users.PUT("/:id", h.wrap(h.replaceUser))
		users.PATCH("/:id", h.wrap(h.patchUser))
		users.DELETE("/:id", h.wrap(h.deleteUser))
	}

	groups := g.Group("/Groups")
	{
		groups.GET("", h.wrap(h.listGroups))
		groups.POST("", h.wrap(h.createGroup))
		groups.GET("/:id", h.wrap(h.getGroup))
		groups.POST("/:id", h.searchGroups) // POST /Groups/.search
		groups.PUT("/:id", h.wrap(h.replaceGroup))
		groups.PATCH("/:id", h.wrap(h.patchGroup))
		groups.DELETE("/:id", h.wrap(h.deleteGroup))
	}
}

// writeJSON serializes a response body with the SCIM media type.
func writeJSON(c *gin.Context, status int, body interface{}) {
	c.Header("Content-Type", contentType)
	c.JSON(status, body)
}

// writeError converts any error into the wire-level SCIM error document.
// Full diagnostic detail goes to the log only.
func (h *Handler) writeError(c *gin.Context, err error) {
	var scimErr *Error
	if !errors.As(err, &scimErr) {
		scimErr = Internal(err)
	}

	if scimErr.Status >= 500 {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", scimErr.Status),
			zap.String("detail", scimErr.Detail))
	}

	if scimErr.Status == http.StatusUnauthorized {
		c.Status(http.StatusUnauthorized)
		return
	}

	writeJSON(c, scimErr.Status, scimErr.Document())
}

// ============================================================
// Discovery endpoints
// ============================================================

func (h *Handler) serviceProviderConfig(c *gin.Context) error {
	writeJSON(c, http.StatusOK, NewServiceProviderConfig(h.base, h.cfg.DocumentationURI))
	return nil
}

func (h *Handler) resourceTypes(c *gin.Context) error {
	resources := []interface{}{
		UserResourceType(h.base),
		GroupResourceType(h.base),
	}
	writeJSON(c, http.StatusOK, NewListResponse(len(resources), 1, resources))
	return nil
}

func (h *Handler) resourceType(c *gin.Context) error {
	switch c.Param("id") {
	case "User":
		writeJSON(c, http.StatusOK, UserResourceType(h.base))
	case "Group":
		writeJSON(c, http.StatusOK, GroupResourceType(h.base))
	default:
		return NotFound(c.Param("id"))
	}
	return nil
}

// ============================================================
// User endpoints
// ============================================================

func (h *Handler) listUsers(c *gin.Context) error {
	page, err := parsePagination(c)
	if err != nil {
		return err
	}
	return h.listUsersResponse(c, c.Query("filter"), page)
}

// searchUsers handles POST /Users/.search. The :id route doubles for it, so
// any other id is rejected here.
func (h *Handler) searchUsers(c *gin.Context) error {
	if c.Param("id") != ".search" {
		return NotFound(c.Param("id"))
	}

	req, page, err := parseSearchRequest(c)
	if err != nil {
		return err
	}
	return h.listUsersResponse(c, req.Filter, page)
}

func (h *Handler) listUsersResponse(c *gin.Context, filterStr string, page pagination) error {
	expr, err := parseFilter(filterStr, filter.UserFields())
	if err != nil {
		return err
	}

	users, err := h.store.SearchUsers(c.Request.Context(), expr)
	if err != nil {
		return Internal(err)
	}

	total := len(users)
	users = paginate(users, page)

	resources := make([]interface{}, 0, len(users))
	for i := range users {
		resources = append(resources, NewUserAdapter(h.store, h.base, &users[i]).Resource())
	}

	writeJSON(c, http.StatusOK, NewListResponse(total, page.startIndex, resources))
	return nil
}

func (h *Handler) getUser(c *gin.Context) error {
	u, err := h.store.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		return h.resolveError(c.Param("id"), err)
	}

	adapter := NewUserAdapter(h.store, h.base, u)
	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusOK, adapter.Resource())
	return nil
}

func (h *Handler) createUser(c *gin.Context) error {
	var res UserResource
	if err := c.ShouldBindJSON(&res); err != nil {
		return BadSyntax("Invalid request body")
	}

	adapter := NewUserRecord(h.store, h.base)
	if err := adapter.Apply(&res); err != nil {
		return err
	}
	if err := adapter.Save(c.Request.Context()); err != nil {
		return err
	}

	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusCreated, adapter.Resource())
	return nil
}

// replaceUser handles PUT. A body carrying active:false removes the record
// entirely; partial deactivation belongs to PATCH.
func (h *Handler) replaceUser(c *gin.Context) error {
	id := c.Param("id")
	u, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	var res UserResource
	if err := c.ShouldBindJSON(&res); err != nil {
		return BadSyntax("Invalid request body")
	}

	adapter := NewUserAdapter(h.store, h.base, u)
	if err := adapter.Apply(&res); err != nil {
		return err
	}

	if !adapter.Active() {
		body := adapter.Resource()
		if err := adapter.Delete(c.Request.Context()); err != nil {
			return err
		}
		c.Header("Location", adapter.Location())
		writeJSON(c, http.StatusOK, body)
		return nil
	}

	if err := adapter.Save(c.Request.Context()); err != nil {
		return err
	}

	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusOK, adapter.Resource())
	return nil
}

func (h *Handler) patchUser(c *gin.Context) error {
	id := c.Param("id")
	u, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	ops, err := parsePatchRequest(c)
	if err != nil {
		return err
	}

	adapter := NewUserAdapter(h.store, h.base, u)
	if err := adapter.ApplyPatch(ops); err != nil {
		return err
	}
	if err := adapter.Save(c.Request.Context()); err != nil {
		return err
	}

	writeJSON(c, http.StatusOK, adapter.Resource())
	return nil
}

func (h *Handler) deleteUser(c *gin.Context) error {
	id := c.Param("id")
	u, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	if err := NewUserAdapter(h.store, h.base, u).Delete(c.Request.Context()); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

// ============================================================
// Group endpoints
// ============================================================

func (h *Handler) listGroups(c *gin.Context) error {
	page, err := parsePagination(c)
	if err != nil {
		return err
	}

	expr, err := parseFilter(c.Query("filter"), filter.GroupFields())
	if err != nil {
		return err
	}

	groups, err := h.store.SearchGroups(c.Request.Context(), expr)
	if err != nil {
		return Internal(err)
	}

	total := len(groups)
	groups = paginate(groups, page)

	resources := make([]interface{}, 0, len(groups))
	for i := range groups {
		resources = append(resources, NewGroupAdapter(h.store, h.base, &groups[i]).Resource())
	}

	writeJSON(c, http.StatusOK, NewListResponse(total, page.startIndex, resources))
	return nil
}

// searchGroups handles POST /Groups/.search, which this deployment does not
// implement; the 501 is answered before authentication. Any other id falls
// through to the authenticated error path.
func (h *Handler) searchGroups(c *gin.Context) {
	if c.Param("id") == ".search" {
		c.Status(http.StatusNotImplemented)
		return
	}

	h.wrap(func(c *gin.Context) error {
		return NotFound(c.Param("id"))
	})(c)
}

func (h *Handler) getGroup(c *gin.Context) error {
	g, err := h.store.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		return h.resolveError(c.Param("id"), err)
	}

	adapter := NewGroupAdapter(h.store, h.base, g)
	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusOK, adapter.Resource())
	return nil
}

func (h *Handler) createGroup(c *gin.Context) error {
	var res GroupResource
	if err := c.ShouldBindJSON(&res); err != nil {
		return BadSyntax("Invalid request body")
	}

	adapter := NewGroupRecord(h.store, h.base)
	if err := adapter.Apply(&res); err != nil {
		return err
	}
	if err := adapter.Save(c.Request.Context()); err != nil {
		return err
	}

	g, err := h.store.GetGroup(c.Request.Context(), adapter.ID())
	if err != nil {
		return Internal(err)
	}
	adapter = NewGroupAdapter(h.store, h.base, g)

	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusCreated, adapter.Resource())
	return nil
}

func (h *Handler) replaceGroup(c *gin.Context) error {
	id := c.Param("id")
	g, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	var res GroupResource
	if err := c.ShouldBindJSON(&res); err != nil {
		return BadSyntax("Invalid request body")
	}

	adapter := NewGroupAdapter(h.store, h.base, g)
	if err := adapter.Apply(&res); err != nil {
		return err
	}
	if err := adapter.Save(c.Request.Context()); err != nil {
		return err
	}

	g, err = h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		return Internal(err)
	}
	adapter = NewGroupAdapter(h.store, h.base, g)

	c.Header("Location", adapter.Location())
	writeJSON(c, http.StatusOK, adapter.Resource())
	return nil
}

func (h *Handler) patchGroup(c *gin.Context) error {
	id := c.Param("id")
	g, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	ops, err := parsePatchRequest(c)
	if err != nil {
		return err
	}

	adapter := NewGroupAdapter(h.store, h.base, g)
	if err := adapter.ApplyPatch(c.Request.Context(), ops); err != nil {
		return err
	}

	g, err = h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		return Internal(err)
	}

	writeJSON(c, http.StatusOK, NewGroupAdapter(h.store, h.base, g).Resource())
	return nil
}

func (h *Handler) deleteGroup(c *gin.Context) error {
	id := c.Param("id")
	g, err := h.store.GetGroup(c.Request.Context(), id)
	if err != nil {
		return h.resolveError(id, err)
	}

	if err := NewGroupAdapter(h.store, h.base, g).Delete(c.Request.Context()); err != nil {
		return err
	}

	c.Status(http.StatusNoContent)
	return nil
}

// ============================================================
// Request parsing helpers
// ============================================================

// pagination is the validated startIndex/count pair. startIndex is 1-based.
type pagination struct {
	startIndex int
	count      int
}

// paginate returns the page of items; totals are counted before slicing.
// count is clamped before the bound is computed so an arbitrarily large value
// cannot overflow.
func paginate[T any](items []T, p pagination) []T {
	low := p.startIndex - 1
	if low > len(items) {
		low = len(items)
	}
	high := len(items)
	if p.count < high-low {
		high = low + p.count
	}
	return items[low:high]
}

func parsePagination(c *gin.Context) (pagination, error) {
	page := pagination{startIndex: 1, count: defaultCount}

	if raw := c.Query("startIndex"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, BadRequest("startIndex must be an integer >= 1")
		}
		page.startIndex = n
	}

	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, BadRequest("count must be a non-negative integer")
		}
		page.count = n
	}

	return page, nil
}

// parseSearchRequest validates a POST .search body (RFC 7644 3.4.3).
func parseSearchRequest(c *gin.Context) (*SearchRequest, pagination, error) {
	page := pagination{startIndex: 1, count: defaultCount}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, page, BadSyntax("Invalid search request body")
	}

	if !hasSchema(req.Schemas, SchemaSearchRequest) {
		return nil, page, BadRequest("Search request must declare the SearchRequest schema")
	}
	if req.Filter == "" {
		return nil, page, BadRequest("Search request requires a filter")
	}

	if req.StartIndex != 0 {
		if req.StartIndex < 1 {
			return nil, page, BadRequest("startIndex must be an integer >= 1")
		}
		page.startIndex = req.StartIndex
	}
	if req.Count != nil {
		if *req.Count < 0 {
			return nil, page, BadRequest("count must be a non-negative integer")
		}
		page.count = *req.Count
	}

	return &req, page, nil
}

// parsePatchRequest validates a PATCH body and returns its operations.
func parsePatchRequest(c *gin.Context) ([]PatchOperation, error) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, BadSyntax("Invalid PATCH request body")
	}
	// providers routinely omit the schemas key on PATCH; reject only a wrong one
	if len(req.Schemas) > 0 && !hasSchema(req.Schemas, SchemaPatchOp) {
		return nil, BadRequest("PATCH request must declare the PatchOp schema")
	}
	if len(req.Operations) == 0 {
		return nil, BadRequest("PATCH request requires at least one operation")
	}
	return req.Operations, nil
}

// parseFilter parses a filter string and validates its attributes against
// the resource's allow-list before any store access.
func parseFilter(filterStr string, fields map[string]string) (*filter.Expr, error) {
	if filterStr == "" {
		return nil, nil
	}

	expr, err := filter.Parse(filterStr)
	if err != nil {
		return nil, BadRequest("Invalid filter: " + err.Error())
	}
	if _, err := filter.ToSQL(expr, fields, 1); err != nil {
		return nil, BadRequest("Unsupported filter: " + err.Error())
	}

	return expr, nil
}

func hasSchema(schemas []string, want string) bool {
	for _, s := range schemas {
		if s == want {
			return true
		}
	}
	return false
}

// resolveError maps a failed id lookup onto the taxonomy.
func (h *Handler) resolveError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound(id)
	}
	return Internal(err)
}
