package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/dubaigit/task-mail-sub006/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Repository stores workflow definitions. Every save is compiled first, so an
// invalid or cyclic definition never reaches the store, and bumps the version.
type Repository struct {
	store    persistence.WorkflowStore
	cache    *PlanCache
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewRepository(store persistence.WorkflowStore, cache *PlanCache, logger *slog.Logger) *Repository {
	if cache == nil {
		cache = NewPlanCache()
	}

	return &Repository{
		store:    store,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "workflow_repository"),
		now:      time.Now,
	}
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := r.store.Workflows(ctx)
	if err != nil {
		return make([]*models.Workflow, 0), err
	}

	return workflows, nil
}

// Active returns the definitions eligible for trigger matching.
func (r *Repository) Active(ctx context.Context) ([]*models.Workflow, error) {
	return r.store.ActiveWorkflows(ctx)
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.store.WorkflowByID(ctx, id)
}

// Save creates or updates a definition. New definitions get an id and version
// 1; updates keep the creation time and activation state and get version+1.
func (r *Repository) Save(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	now := r.now().UTC()

	var existing *models.Workflow

	if workflow.ID != "" {
		found, err := r.store.WorkflowByID(ctx, workflow.ID)

		switch {
		case err == nil:
			existing = found
		case !persistence.IsWorkflowNotFound(err):
			return nil, err
		}
	} else {
		workflow.ID = uuid.Must(uuid.NewV7()).String()
	}

	if existing != nil {
		workflow.Version = existing.Version + 1
		workflow.CreatedAt = existing.CreatedAt
		workflow.IsActive = existing.IsActive
	} else {
		workflow.Version = 1
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	plan, err := r.compile(workflow)
	if err != nil {
		return nil, err
	}

	err = r.store.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	r.cache.Put(plan)

	r.logger.InfoContext(ctx, "Saved workflow", "workflow_id", workflow.ID, "version", workflow.Version)

	return workflow, nil
}

// Validate checks a definition without storing it.
func (r *Repository) Validate(workflow *models.Workflow) error {
	_, err := r.compile(workflow)

	return err
}

func (r *Repository) compile(workflow *models.Workflow) (*Plan, error) {
	err := r.validate.Struct(workflow)
	if err != nil {
		return nil, newCompilationError(workflow.ID, "", err)
	}

	return Compile(workflow)
}

// SetActive toggles matching eligibility. Activation does not change the
// content and therefore keeps the version.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) (*models.Workflow, error) {
	workflow, err := r.store.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if active {
		_, err := r.cache.Plan(workflow)
		if err != nil {
			return nil, err
		}
	}

	workflow.IsActive = active
	workflow.UpdatedAt = r.now().UTC()

	err = r.store.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", id, err)
	}

	r.logger.InfoContext(ctx, "Changed workflow activation", "workflow_id", id, "active", active)

	return workflow, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.store.DeleteWorkflow(ctx, id)
	if err != nil {
		return err
	}

	r.cache.Invalidate(id)

	return nil
}

// Plan returns the compiled plan of a stored definition.
func (r *Repository) Plan(workflow *models.Workflow) (*Plan, error) {
	return r.cache.Plan(workflow)
}
