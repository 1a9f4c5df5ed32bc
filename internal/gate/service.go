package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
	"github.com/frahmantamala/scriptdeck/internal/executor"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/observability"
	"github.com/frahmantamala/scriptdeck/internal/parameter"
	"github.com/frahmantamala/scriptdeck/pkg/logger"
)

// Authorizer answers role to module membership. HasAccess must fail closed.
type Authorizer interface {
	AccessibleModules(ctx context.Context, roleID string) ([]string, error)
	HasAccess(ctx context.Context, roleID, moduleID string) bool
}

// Catalog serves enabled modules only.
type Catalog interface {
	ListEnabled(ctx context.Context) ([]*module.Module, error)
	GetByID(ctx context.Context, id string) (*module.Module, error)
}

type Runner interface {
	Run(ctx context.Context, name string, args []string, timeout time.Duration, env map[string]string) (*executor.Output, error)
}

const (
	EnvUserID      = "SCRIPTDECK_USER_ID"
	EnvModuleID    = "SCRIPTDECK_MODULE_ID"
	EnvExecutionID = "SCRIPTDECK_EXECUTION_ID"
	EnvTimeoutMs   = "SCRIPTDECK_TIMEOUT_MS"
)

type Service struct {
	authorizer Authorizer
	catalog    Catalog
	runner     Runner
	publisher  events.Publisher
	metrics    *observability.Metrics
	cfg        internal.ExecutionConfig
	logger     *slog.Logger
}

// NewService wires the gate. publisher and metrics may be nil.
func NewService(authorizer Authorizer, catalog Catalog, runner Runner, publisher events.Publisher, metrics *observability.Metrics, cfg internal.ExecutionConfig, logger *slog.Logger) *Service {
	return &Service{
		authorizer: authorizer,
		catalog:    catalog,
		runner:     runner,
		publisher:  publisher,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// ListAccessibleModules returns metadata for every enabled module the
// caller's role can reach, sorted by name.
func (s *Service) ListAccessibleModules(ctx context.Context, caller *internal.Identity) ([]module.ModuleResponse, error) {
	if caller == nil {
		return nil, internal.ErrAccessDenied
	}

	ids, err := s.authorizer.AccessibleModules(ctx, caller.RoleID)
	if err != nil {
		s.logger.Error("failed to resolve accessible modules", "role", caller.RoleID, "error", err)
		return nil, internal.NewInternalError("failed to resolve permissions", err)
	}
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	modules, err := s.catalog.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]module.ModuleResponse, 0, len(ids))
	for _, m := range modules {
		if _, ok := allowed[m.ID]; ok {
			out = append(out, m.ToResponse())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetModule authorizes before looking the module up, so a caller cannot
// probe for modules outside their grants.
func (s *Service) GetModule(ctx context.Context, caller *internal.Identity, moduleID string) (*module.ModuleResponse, error) {
	id := module.NormalizeID(moduleID)
	if !s.authorize(ctx, caller, id) {
		return nil, internal.ErrAccessDenied
	}
	m, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := m.ToResponse()
	return &resp, nil
}

// ExecuteModule runs moduleID for caller with the raw parameters. Denied and
// not found requests return before anything is spawned.
func (s *Service) ExecuteModule(ctx context.Context, caller *internal.Identity, moduleID string, raw map[string]interface{}) *Result {
	start := time.Now()
	res := &Result{
		ExecutionID: uuid.NewString(),
		ModuleID:    module.NormalizeID(moduleID),
		StartedAt:   start.UTC(),
	}
	if caller == nil {
		caller = &internal.Identity{}
	}
	log := logger.From(ctx).With(
		"execution_id", res.ExecutionID,
		"module", res.ModuleID,
		"role", caller.RoleID,
		"user_id", caller.UserID)
	tracker := s.metrics.Track(res.ModuleID)

	s.execute(ctx, log, caller, res, raw)

	if !res.Status.ran() {
		res.ElapsedMs = millis(time.Since(start))
	}
	tracker.End(string(res.Status), res.Status.ran())
	s.publish(ctx, log, caller, res)
	return res
}

func (s *Service) execute(ctx context.Context, log *slog.Logger, caller *internal.Identity, res *Result, raw map[string]interface{}) {
	if !s.authorize(ctx, caller, res.ModuleID) {
		res.Status = StatusDenied
		res.Error = internal.ErrAccessDenied.Message
		return
	}

	m, err := s.catalog.GetByID(ctx, res.ModuleID)
	if err != nil {
		if errors.Is(err, internal.ErrModuleNotFound) {
			log.Warn("execution refused: module not found")
			res.Status = StatusNotFound
			res.Error = internal.ErrModuleNotFound.Message
			return
		}
		log.Error("execution aborted: module lookup failed", "error", err)
		res.Status = StatusInternalError
		res.Error = "internal server error"
		return
	}

	values, err := parameter.Validate(raw, m.Parameters)
	if err != nil {
		res.Status = StatusInvalidParameters
		res.ValidationErrors = internal.FieldErrors(err)
		res.Error = err.Error()
		log.Warn("execution refused: invalid parameters", "errors", len(res.ValidationErrors))
		return
	}

	timeout := m.Timeout(s.cfg.DefaultTimeout, s.cfg.MaxTimeout)
	env := map[string]string{
		EnvUserID:      strconv.FormatInt(caller.UserID, 10),
		EnvModuleID:    m.ID,
		EnvExecutionID: res.ExecutionID,
		EnvTimeoutMs:   strconv.FormatInt(timeout.Milliseconds(), 10),
	}

	log.Info("executing module", "executable", m.Executable, "timeout", timeout, "parameters", values.Names())
	out, err := s.runner.Run(ctx, m.Executable, executor.BuildArgs(values), timeout, env)
	if err != nil {
		s.fail(log, res, err, timeout)
		return
	}

	exitCode := out.ExitCode
	res.Status = StatusSucceeded
	res.Success = true
	res.Output = out.Stdout
	res.Stderr = out.Stderr
	res.Truncated = out.Truncated
	res.ExitCode = &exitCode
	res.ElapsedMs = millis(out.Elapsed)
	log.Info("module execution succeeded", "elapsed_ms", res.ElapsedMs)
}

func (s *Service) fail(log *slog.Logger, res *Result, err error, timeout time.Duration) {
	var runErr *executor.RunError
	if !errors.As(err, &runErr) {
		log.Error("module execution failed unexpectedly", "error", err)
		res.Status = StatusInternalError
		res.Error = "internal server error"
		return
	}

	res.ElapsedMs = millis(runErr.Elapsed)
	res.Stderr = runErr.Stderr

	switch {
	case errors.Is(err, executor.ErrTimeout):
		res.Status = StatusTimedOut
		res.Error = fmt.Sprintf("%s after %s", internal.ErrExecutionTimeout.Message, timeout)
		log.Warn("module execution timed out", "timeout", timeout, "elapsed_ms", res.ElapsedMs)
	case errors.Is(err, executor.ErrUnsafeName), errors.Is(err, executor.ErrNotFound):
		res.Status = StatusFailed
		res.Error = "Module executable is unavailable"
		log.Error("module executable cannot be resolved", "error", err)
	default:
		exitCode := runErr.ExitCode
		res.Status = StatusFailed
		res.ExitCode = &exitCode
		res.Error = fmt.Sprintf("%s with exit code %d", internal.ErrExecutionFailed.Message, exitCode)
		if exitCode < 0 {
			res.Error = internal.ErrExecutionFailed.Message
		}
		log.Warn("module execution failed", "exit_code", exitCode, "elapsed_ms", res.ElapsedMs, "error", err)
	}
}

func (s *Service) authorize(ctx context.Context, caller *internal.Identity, moduleID string) bool {
	log := logger.From(ctx)
	if caller == nil || caller.RoleID == "" {
		log.Warn("access denied: no role", "module", moduleID)
		s.metrics.Denied("")
		return false
	}
	if !s.authorizer.HasAccess(ctx, caller.RoleID, moduleID) {
		log.Warn("access denied", "role", caller.RoleID, "module", moduleID, "user_id", caller.UserID)
		s.metrics.Denied(caller.RoleID)
		return false
	}
	log.Info("access granted", "role", caller.RoleID, "module", moduleID)
	return true
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, caller *internal.Identity, res *Result) {
	if s.publisher == nil {
		return
	}
	event := events.NewExecutionCompletedEvent(
		res.ExecutionID,
		res.ModuleID,
		caller.RoleID,
		caller.UserID,
		string(res.Status),
		res.ExitCode,
		int64(math.Ceil(res.ElapsedMs)),
		res.Error,
		res.StartedAt,
	)
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Error("failed to publish execution event", "error", err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
