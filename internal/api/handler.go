// Package api exposes the orchestrator over HTTP for synchronous callers
// and operators.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hush/internal/fatigue"
	"hush/internal/logger"
	"hush/internal/rules"
	"hush/pkg/cel"
	"hush/pkg/errors"
	"hush/pkg/models"
)

type Decider interface {
	Decide(ctx context.Context, event *models.NotificationEvent) (models.Decision, error)
	Snapshot() *rules.Snapshot
}

type RuleReloader interface {
	Reload(ctx context.Context) (bool, error)
}

type PreferenceStore interface {
	SetPreferences(ctx context.Context, userID string, prefs fatigue.Preferences) error
}

type Handler struct {
	decider   Decider
	reloader  RuleReloader
	prefs     PreferenceStore
	evaluator *cel.Evaluator
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(decider Decider, reloader RuleReloader, prefs PreferenceStore, evaluator *cel.Evaluator, log logger.Logger) *Handler {
	return &Handler{
		decider:   decider,
		reloader:  reloader,
		prefs:     prefs,
		evaluator: evaluator,
		logger:    log,
		now:       time.Now,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/decisions", h.Decide)

		rules := v1.Group("/rules")
		{
			rules.GET("", h.GetRules)
			rules.POST("/reload", h.ReloadRules)
			rules.POST("/validate", h.ValidateRules)
		}

		v1.PUT("/users/:user_id/preferences", h.SetPreferences)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func badRequest(err error) error {
	return errors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
}

// Decide godoc
// @Summary      Decide a notification
// @Description  Evaluate one notification event and return SEND_NOW, DEFER or SUPPRESS with its reason. received_at defaults to the time the request arrived.
// @Tags         decisions
// @Accept       json
// @Produce      json
// @Param        event  body      models.NotificationEvent  true  "Notification event"
// @Success      200    {object}  models.Decision
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      500    {object}  errors.ErrorResponse
// @Router       /decisions [post]
func (h *Handler) Decide(c *gin.Context) {
	var event models.NotificationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.handleError(c, badRequest(err))
		return
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = h.now().UTC()
	}

	decision, err := h.decider.Decide(c.Request.Context(), &event)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

type RulesResponse struct {
	Version  int64             `json:"version"`
	LoadedAt time.Time         `json:"loaded_at"`
	Count    int               `json:"count"`
	Rules    []models.RuleSpec `json:"rules"`
}

// GetRules godoc
// @Summary      Get the active rule set
// @Description  Return the rule snapshot new evaluations bind to
// @Tags         rules
// @Produce      json
// @Success      200  {object}  RulesResponse
// @Router       /rules [get]
func (h *Handler) GetRules(c *gin.Context) {
	snap := h.decider.Snapshot()
	specs := snap.Specs()
	c.JSON(http.StatusOK, RulesResponse{
		Version:  snap.Version,
		LoadedAt: snap.LoadedAt,
		Count:    len(specs),
		Rules:    specs,
	})
}

type ReloadResponse struct {
	Applied bool  `json:"applied"`
	Version int64 `json:"version"`
}

// ReloadRules godoc
// @Summary      Reload rules
// @Description  Load the rule set from its provider and swap it in when the version moved forward
// @Tags         rules
// @Produce      json
// @Success      200  {object}  ReloadResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /rules/reload [post]
func (h *Handler) ReloadRules(c *gin.Context) {
	if h.reloader == nil {
		h.handleError(c, errors.ErrServiceUnavailable.WithDetail("message", "rule reload not configured"))
		return
	}

	applied, err := h.reloader.Reload(c.Request.Context())
	if err != nil {
		h.handleError(c, errors.ErrDependencyUnavailable.WithCause(err).WithDetail("message", err.Error()))
		return
	}

	c.JSON(http.StatusOK, ReloadResponse{
		Applied: applied,
		Version: h.decider.Snapshot().Version,
	})
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
	Count int  `json:"count"`
}

// ValidateRules godoc
// @Summary      Validate a rule set
// @Description  Compile a rule set without publishing it
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        rules  body      models.RuleSet  true  "Rule set"
// @Success      200    {object}  ValidateResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Router       /rules/validate [post]
func (h *Handler) ValidateRules(c *gin.Context) {
	var set models.RuleSet
	if err := c.ShouldBindJSON(&set); err != nil {
		h.handleError(c, badRequest(err))
		return
	}

	snap, err := rules.Compile(set, h.evaluator)
	if err != nil {
		h.handleError(c, badRequest(err))
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{Valid: true, Count: len(snap.Rules)})
}

// SetPreferences godoc
// @Summary      Set user preferences
// @Description  Store do-not-disturb and channel opt-outs for a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user_id      path      string               true  "User ID"
// @Param        preferences  body      fatigue.Preferences  true  "Preferences"
// @Success      200          {object}  fatigue.Preferences
// @Failure      400          {object}  errors.ErrorResponse
// @Failure      503          {object}  errors.ErrorResponse
// @Router       /users/{user_id}/preferences [put]
func (h *Handler) SetPreferences(c *gin.Context) {
	userID := c.Param("user_id")

	var prefs fatigue.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		h.handleError(c, badRequest(err))
		return
	}
	for _, ch := range prefs.OptedOut {
		if !ch.Valid() {
			h.handleError(c, errors.ErrValidation.
				WithDetail("message", "unknown channel").
				WithDetail("channel", string(ch)))
			return
		}
	}

	if err := h.prefs.SetPreferences(c.Request.Context(), userID, prefs); err != nil {
		h.handleError(c, errors.ErrDependencyUnavailable.WithCause(err).WithDetail("message", "history store unavailable"))
		return
	}

	c.JSON(http.StatusOK, prefs)
}
