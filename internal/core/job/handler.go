package job

import (
	"context"
	"errors"
	"time"

	"storescraper/internal/core/runlog"
	"storescraper/internal/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TriggerManager is the slice of the scheduler the HTTP surface needs:
// keeping live triggers in sync with definition changes, and computing the
// next-run preview returned to clients.
type TriggerManager interface {
	Install(def *Definition) error
	Uninstall(jobID string)
	ComputeNextRun(scheduleType ScheduleType, scheduleTime string, now time.Time) (time.Time, error)
}

// Dispatcher queues an immediate run for the manual trigger endpoint.
type Dispatcher interface {
	DispatchExecute(ctx context.Context, jobID string) error
}

type Handler struct {
	service    *Service
	logs       *runlog.Service
	triggers   TriggerManager
	dispatcher Dispatcher
	validate   *validator.Validate
	log        *logger.Logger
}

func NewHandler(service *Service, logs *runlog.Service, triggers TriggerManager, dispatcher Dispatcher) *Handler {
	return &Handler{
		service:    service,
		logs:       logs,
		triggers:   triggers,
		dispatcher: dispatcher,
		validate:   validator.New(),
		log:        logger.New("JobHandler"),
	}
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}

// HandleCreate registers a new job definition and, when active, installs its
// recurring trigger.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	now := time.Now()
	def := req.Definition(uuid.New().String(), now)

	// Reject an unusable schedule before anything is persisted.
	next, err := h.triggers.ComputeNextRun(def.ScheduleType, def.ScheduleTime, now)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	def.NextRunAt = &next

	if err := h.service.Create(c.Context(), def); err != nil {
		h.log.LogError("failed to create job", err)
		return fail(c, fiber.StatusInternalServerError, "failed to create job")
	}

	if def.IsActive {
		if err := h.triggers.Install(def); err != nil {
			h.log.LogErrorf("job %s created but trigger install failed: %v", def.ID, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "job": def})
}

func (h *Handler) HandleList(c *fiber.Ctx) error {
	defs, err := h.service.List(c.Context())
	if err != nil {
		h.log.LogError("failed to list jobs", err)
		return fail(c, fiber.StatusInternalServerError, "failed to list jobs")
	}
	return c.JSON(fiber.Map{"success": true, "jobs": defs, "count": len(defs)})
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	def, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, "job not found")
		}
		return fail(c, fiber.StatusInternalServerError, "failed to load job")
	}
	return c.JSON(fiber.Map{"success": true, "job": def})
}

// HandleUpdate applies a partial update. Changes to schedule or active state
// reconcile the live trigger in the same request.
func (h *Handler) HandleUpdate(c *fiber.Ctx) error {
	var req UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	def, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, "job not found")
		}
		return fail(c, fiber.StatusInternalServerError, "failed to load job")
	}

	applyUpdate(def, &req)

	now := time.Now()
	next, err := h.triggers.ComputeNextRun(def.ScheduleType, def.ScheduleTime, now)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	def.NextRunAt = &next

	if err := h.service.Save(c.Context(), def); err != nil {
		h.log.LogErrorf("failed to save job %s: %v", def.ID, err)
		return fail(c, fiber.StatusInternalServerError, "failed to save job")
	}

	if def.IsActive {
		if err := h.triggers.Install(def); err != nil {
			h.log.LogErrorf("job %s updated but trigger install failed: %v", def.ID, err)
		}
	} else {
		h.triggers.Uninstall(def.ID)
	}

	return c.JSON(fiber.Map{"success": true, "job": def})
}

// HandleDelete removes a definition, its live trigger and its run history.
// A run already in flight is unaffected and settles on its own.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(c.Context(), id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, "job not found")
		}
		h.log.LogErrorf("failed to delete job %s: %v", id, err)
		return fail(c, fiber.StatusInternalServerError, "failed to delete job")
	}
	h.triggers.Uninstall(id)
	if err := h.logs.Purge(c.Context(), id); err != nil {
		h.log.LogWarnf("failed to purge run history for %s: %v", id, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleTrigger queues an immediate run outside the recurrence. The recurring
// schedule is not consulted and not modified.
func (h *Handler) HandleTrigger(c *fiber.Ctx) error {
	id := c.Params("id")
	def, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, "job not found")
		}
		return fail(c, fiber.StatusInternalServerError, "failed to load job")
	}

	if err := h.dispatcher.DispatchExecute(c.Context(), def.ID); err != nil {
		h.log.LogErrorf("failed to dispatch manual run for %s: %v", id, err)
		return fail(c, fiber.StatusInternalServerError, "failed to queue run")
	}
	h.log.LogInfof("manual run queued for job %s (%s)", def.ID, def.Name)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "message": "run queued"})
}

func (h *Handler) HandleLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.service.Get(c.Context(), id); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return fail(c, fiber.StatusNotFound, "job not found")
		}
		return fail(c, fiber.StatusInternalServerError, "failed to load job")
	}

	limit := c.QueryInt("limit", 20)
	entries, err := h.logs.ListByJob(c.Context(), id, limit)
	if err != nil {
		h.log.LogErrorf("failed to list logs for %s: %v", id, err)
		return fail(c, fiber.StatusInternalServerError, "failed to list logs")
	}
	return c.JSON(fiber.Map{"success": true, "logs": entries, "count": len(entries)})
}

func applyUpdate(def *Definition, req *UpdateRequest) {
	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.CategoryPaths != nil {
		def.CategoryPaths = *req.CategoryPaths
	}
	if req.ScheduleType != nil {
		def.ScheduleType = *req.ScheduleType
	}
	if req.ScheduleTime != nil {
		def.ScheduleTime = *req.ScheduleTime
	}
	if req.ScrapeOptions != nil {
		def.ScrapeOptions = *req.ScrapeOptions
	}
	if req.Concurrency != nil {
		def.Concurrency = *req.Concurrency
	}
	if req.NotifyOnSuccess != nil {
		def.NotifyOnSuccess = *req.NotifyOnSuccess
	}
	if req.NotifyOnFailure != nil {
		def.NotifyOnFailure = *req.NotifyOnFailure
	}
	if req.EmailRecipients != nil {
		def.EmailRecipients = *req.EmailRecipients
	}
	if req.AutoRetry != nil {
		def.AutoRetry = *req.AutoRetry
	}
	if req.MaxRetries != nil {
		def.MaxRetries = *req.MaxRetries
	}
	if req.RetryDelayMinutes != nil {
		def.RetryDelayMinutes = *req.RetryDelayMinutes
	}
	if req.IsActive != nil {
		def.IsActive = *req.IsActive
	}
}
