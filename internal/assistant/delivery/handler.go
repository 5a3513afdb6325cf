package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	authdomain "friendlymail-backend/internal/auth/domain"
	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/dto"
	"friendlymail-backend/internal/assistant/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultProcessLimit = 10
	maxProcessLimit     = 100
	defaultPageSize     = 20
)

type AssistantHandler struct {
	roles     usecase.RoleUsecase
	rules     usecase.RuleUsecase
	lifecycle usecase.ResponseLifecycle
	engine    usecase.DecisionEngine
	locker    usecase.Locker
	lockTTL   time.Duration
	log       *zap.Logger
}

func NewAssistantHandler(roles usecase.RoleUsecase, rules usecase.RuleUsecase, lifecycle usecase.ResponseLifecycle, engine usecase.DecisionEngine, locker usecase.Locker, lockTTL time.Duration, log *zap.Logger) *AssistantHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssistantHandler{
		roles:     roles,
		rules:     rules,
		lifecycle: lifecycle,
		engine:    engine,
		locker:    locker,
		lockTTL:   lockTTL,
		log:       log.Named("assistant_http"),
	}
}

func currentUser(c *gin.Context) *authdomain.User {
	user, _ := c.MustGet("user").(*authdomain.User)
	return user
}

// writeError maps domain errors onto HTTP statuses.
func (h *AssistantHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrLastRole),
		errors.Is(err, domain.ErrIntegrity):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDeliveryFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *AssistantHandler) ListRoles(c *gin.Context) {
	user := currentUser(c)
	roles, err := h.roles.ListRoles(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	active, err := h.roles.GetActiveRole(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RolesResponse{Roles: roles, ActiveRole: active})
}

func (h *AssistantHandler) GetRole(c *gin.Context) {
	role, err := h.roles.GetRole(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *AssistantHandler) CreateRole(c *gin.Context) {
	var req dto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.ToRole(currentUser(c).ID)
	if err := h.roles.CreateRole(c.Request.Context(), role); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h *AssistantHandler) UpdateRole(c *gin.Context) {
	var req dto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := currentUser(c)
	role := req.ToRole(user.ID)
	role.ID = c.Param("id")

	updated, err := h.roles.UpdateRole(c.Request.Context(), user.ID, role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AssistantHandler) ActivateRole(c *gin.Context) {
	user := currentUser(c)
	if err := h.roles.ActivateRole(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	role, err := h.roles.GetRole(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *AssistantHandler) DeleteRole(c *gin.Context) {
	if err := h.roles.DeleteRole(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AssistantHandler) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RulesResponse{Rules: rules})
}

func (h *AssistantHandler) CreateRule(c *gin.Context) {
	var req dto.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule := req.ToRule()
	if err := h.rules.CreateRule(c.Request.Context(), currentUser(c).ID, c.Param("id"), rule); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *AssistantHandler) UpdateRule(c *gin.Context) {
	var req dto.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule := req.ToRule()
	rule.ID = c.Param("ruleId")

	updated, err := h.rules.UpdateRule(c.Request.Context(), currentUser(c).ID, c.Param("id"), rule)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AssistantHandler) DeleteRule(c *gin.Context) {
	if err := h.rules.DeleteRule(c.Request.Context(), currentUser(c).ID, c.Param("id"), c.Param("ruleId")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AssistantHandler) ListResponses(c *gin.Context) {
	status := domain.ResponseStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	responses, total, err := h.lifecycle.List(c.Request.Context(), currentUser(c).ID, status, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResponsesResponse{Responses: responses, Total: total, Limit: limit, Offset: offset})
}

func (h *AssistantHandler) ResponseStats(c *gin.Context) {
	stats, err := h.lifecycle.Stats(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AssistantHandler) GetResponse(c *gin.Context) {
	response, err := h.lifecycle.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AssistantHandler) ApproveResponse(c *gin.Context) {
	response, err := h.lifecycle.Approve(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.writeDeliveryError(c, response, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AssistantHandler) ResendResponse(c *gin.Context) {
	response, err := h.lifecycle.Resend(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.writeDeliveryError(c, response, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// writeDeliveryError includes the still-approved draft when the provider send
// failed, so the client can offer a resend.
func (h *AssistantHandler) writeDeliveryError(c *gin.Context, response *domain.AIResponse, err error) {
	if errors.Is(err, domain.ErrDeliveryFailed) && response != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "response": response})
		return
	}
	h.writeError(c, err)
}

func (h *AssistantHandler) RejectResponse(c *gin.Context) {
	var req dto.RejectRequest
	// feedback is optional, an empty body is fine
	_ = c.ShouldBindJSON(&req)

	response, err := h.lifecycle.Reject(c.Request.Context(), currentUser(c).ID, c.Param("id"), req.Feedback)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *AssistantHandler) EditResponse(c *gin.Context) {
	var req dto.EditResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	response, err := h.lifecycle.Edit(c.Request.Context(), currentUser(c).ID, c.Param("id"), req.ResponseSubject, req.ResponseText)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ProcessPending runs the decision engine over the caller's unprocessed mail.
func (h *AssistantHandler) ProcessPending(c *gin.Context) {
	var req dto.ProcessRequest
	_ = c.ShouldBindJSON(&req)
	if q := c.Query("limit"); q != "" {
		req.Limit, _ = strconv.Atoi(q)
	}
	if req.Limit <= 0 {
		req.Limit = defaultProcessLimit
	}
	if req.Limit > maxProcessLimit {
		req.Limit = maxProcessLimit
	}

	user := currentUser(c)
	ctx := c.Request.Context()

	unlock, ok, err := h.locker.TryLock(ctx, usecase.OwnerLockKey(user.ID), h.lockTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "processing already in progress"})
		return
	}
	defer unlock()

	summary, err := h.engine.ProcessPending(ctx, user.ID, req.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
