package authz

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atriumhq/atrium/pkg/observability"
)

// DefaultMaxDepth bounds role hierarchy traversal, counted in parent hops
// from each directly assigned role.
const DefaultMaxDepth = 5

// TenantResolver is the collaborator that maps a user to their home tenant.
// When configured, queries with a nil tenant run against the user's home
// tenant instead of unscoped. Implementations live with the tenant
// provisioning layer.
type TenantResolver interface {
	GetUserTenantID(ctx context.Context, userID int64) (*int64, error)
}

// Check is a single authorization question
type Check struct {
	UserID   int64        `json:"user_id"`
	Code     string       `json:"code"`
	TenantID *int64       `json:"tenant_id,omitempty"`
	Resource *ResourceRef `json:"resource,omitempty"`
}

// Decision is the answer to a Check, with enough context for authorization
// logging
type Decision struct {
	CheckID   string    `json:"check_id"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Resolver computes effective permission sets and answers point queries.
// It is stateless: every query recomputes its answer from current storage,
// so concurrent use needs no coordination. Callers own any caching.
type Resolver struct {
	store    *Store
	legacy   *legacySource
	scoped   *moduleScopedSource
	prec     Precedence
	tenants  TenantResolver
	maxDepth int
	logger   *observability.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMaxDepth overrides the hierarchy traversal bound
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithTenantResolver sets the collaborator used to default nil tenant
// arguments to the user's home tenant
func WithTenantResolver(tr TenantResolver) Option {
	return func(r *Resolver) { r.tenants = tr }
}

// WithLogger sets the structured logger
func WithLogger(logger *observability.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics enables prometheus instrumentation
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithTracer sets the tracer used for resolution spans
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// NewResolver creates a resolver over the given store
func NewResolver(store *Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		legacy:   &legacySource{store: store},
		scoped:   &moduleScopedSource{store: store},
		maxDepth: DefaultMaxDepth,
		logger:   observability.NewLogger(observability.InfoLevel, io.Discard),
		tracer:   otel.Tracer("atrium/authz"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetUserPermissions returns the user's effective permission codes, sorted
// and deduplicated. A user with a direct SUPER_ADMIN role gets every active
// permission code. Users with no roles get an empty slice, never an error.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	set, err := r.effectiveSet(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return set.sorted(), nil
}

// UserHasPermission reports whether the user may perform the action named by
// code. When resource is non-nil, a matching resource-level override grants
// access immediately, regardless of role state.
func (r *Resolver) UserHasPermission(ctx context.Context, userID int64, code string, tenantID *int64, resource *ResourceRef) (bool, error) {
	d, err := r.Evaluate(ctx, Check{UserID: userID, Code: code, TenantID: tenantID, Resource: resource})
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// UserHasAnyPermission reports whether the user holds at least one of the
// codes. Resource-level overrides are deliberately not consulted here; only
// the single-code check honors them.
func (r *Resolver) UserHasAnyPermission(ctx context.Context, userID int64, codes []string, tenantID *int64) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}
	set, err := r.effectiveSet(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if set.matches(code) {
			return true, nil
		}
	}
	return false, nil
}

// UserHasAllPermissions reports whether the user holds every one of the
// codes. Resource-level overrides are deliberately not consulted here.
func (r *Resolver) UserHasAllPermissions(ctx context.Context, userID int64, codes []string, tenantID *int64) (bool, error) {
	set, err := r.effectiveSet(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if !set.matches(code) {
			return false, nil
		}
	}
	return true, nil
}

// GetUserRoles returns the user's direct, currently valid role assignments
// ordered by priority, highest first. Inherited roles are not included.
func (r *Resolver) GetUserRoles(ctx context.Context, userID int64, tenantID *int64) ([]Role, error) {
	tenantID, err := r.resolveTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return r.store.GetActiveUserRoles(ctx, userID, tenantID)
}

// IsUserSuperAdmin reports whether any of the user's direct role assignments
// carries the SUPER_ADMIN code. Inherited roles do not count.
func (r *Resolver) IsUserSuperAdmin(ctx context.Context, userID int64) (bool, error) {
	seeds, err := r.store.GetActiveUserRoles(ctx, userID, nil)
	if err != nil {
		return false, err
	}
	return hasSuperAdmin(seeds), nil
}

// GetUserDataAccess returns the widest data-access scope the user's resolved
// roles grant for a module. Super admins see everything; users with no
// access-granting row get DataAccessNone.
func (r *Resolver) GetUserDataAccess(ctx context.Context, userID int64, tenantID *int64, moduleCode string) (DataAccessScope, error) {
	tenantID, err := r.resolveTenant(ctx, userID, tenantID)
	if err != nil {
		return DataAccessNone, err
	}
	seeds, err := r.store.GetActiveUserRoles(ctx, userID, tenantID)
	if err != nil {
		return DataAccessNone, err
	}
	if hasSuperAdmin(seeds) {
		return DataAccessAll, nil
	}

	roles, err := r.expandHierarchy(ctx, seeds)
	if err != nil {
		return DataAccessNone, err
	}
	scopes, err := r.store.GetRoleDataAccess(ctx, roleIDs(roles), moduleCode)
	if err != nil {
		return DataAccessNone, err
	}

	widest := DataAccessNone
	for _, s := range scopes {
		widest = widest.Widest(s)
	}
	return widest, nil
}

// Evaluate answers a single Check and explains the outcome. The resource
// override is consulted first when a resource is supplied; it has the
// highest precedence and is independent of role state.
func (r *Resolver) Evaluate(ctx context.Context, check Check) (*Decision, error) {
	ctx, span := r.tracer.Start(ctx, "authz.Evaluate",
		trace.WithAttributes(
			attribute.Int64("authz.user_id", check.UserID),
			attribute.String("authz.code", check.Code),
		))
	defer span.End()

	started := time.Now()
	d := &Decision{CheckID: uuid.NewString(), CheckedAt: started}

	if check.Resource != nil {
		tenantID, err := r.resolveTenant(ctx, check.UserID, check.TenantID)
		if err != nil {
			return nil, err
		}
		check.TenantID = tenantID
		ok, err := r.store.HasResourcePermission(ctx, check.UserID, check.TenantID,
			check.Resource.Type, check.Resource.ID, check.Code)
		if err != nil {
			return nil, err
		}
		if ok {
			d.Allowed = true
			d.Reason = fmt.Sprintf("resource override on %s/%s", check.Resource.Type, check.Resource.ID)
			r.observeCheck(d, started)
			return d, nil
		}
	}

	set, err := r.effectiveSet(ctx, check.UserID, check.TenantID)
	if err != nil {
		return nil, err
	}

	if set.matches(check.Code) {
		d.Allowed = true
		d.Reason = "granted by role permissions"
	} else {
		d.Reason = "no matching grant"
	}
	r.observeCheck(d, started)
	return d, nil
}

// effectiveSet runs the full resolution pipeline: seed roles, super-admin
// gate, hierarchy expansion, both permission sources, precedence merge.
func (r *Resolver) effectiveSet(ctx context.Context, userID int64, tenantID *int64) (permissionSet, error) {
	ctx, span := r.tracer.Start(ctx, "authz.effectiveSet",
		trace.WithAttributes(attribute.Int64("authz.user_id", userID)))
	defer span.End()

	started := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ResolveDuration.Observe(time.Since(started).Seconds())
		}
	}()

	tenantID, err := r.resolveTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	seeds, err := r.store.GetActiveUserRoles(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return newPermissionSet(), nil
	}

	// The gate only looks at direct assignments, never inherited roles.
	if hasSuperAdmin(seeds) {
		codes, err := r.store.ListActivePermissionCodes(ctx)
		if err != nil {
			return nil, err
		}
		return newPermissionSet(codes...), nil
	}

	roles, err := r.expandHierarchy(ctx, seeds)
	if err != nil {
		return nil, err
	}
	ids := roleIDs(roles)

	legacy, err := r.legacy.Grants(ctx, ids)
	if err != nil {
		return nil, err
	}
	scoped, err := r.scoped.Grants(ctx, ids)
	if err != nil {
		return nil, err
	}
	owned, err := r.scoped.OwnedModules(ctx, ids)
	if err != nil {
		return nil, err
	}

	return r.prec.Merge(legacy, scoped, owned), nil
}

// expandHierarchy walks each seed role's parent chain. The tree is
// single-parent, so each walk is linear: at most maxDepth hops from the
// seed. Parent lookups filter on status only; tenant and temporal filters
// apply to direct assignments alone. A chain that returns to a role already
// on its own path is a cycle: the walk stops there with a warning, never an
// error, so reads stay total.
func (r *Resolver) expandHierarchy(ctx context.Context, seeds []Role) ([]Role, error) {
	visited := make(map[int64]struct{}, len(seeds))
	var roles []Role

	for _, seed := range seeds {
		path := make(map[int64]struct{}, r.maxDepth+1)
		current := seed

		for depth := 0; ; depth++ {
			if _, onPath := path[current.ID]; onPath {
				r.logger.WithFields(map[string]interface{}{
					"role_id":   current.ID,
					"role_code": current.Code,
				}).Warn("cycle detected in role hierarchy; truncating walk")
				if r.metrics != nil {
					r.metrics.HierarchyCycles.Inc()
				}
				break
			}
			path[current.ID] = struct{}{}

			if _, seen := visited[current.ID]; !seen {
				visited[current.ID] = struct{}{}
				roles = append(roles, current)
			}

			if current.ParentRoleID == nil || depth >= r.maxDepth {
				break
			}
			parent, err := r.store.GetActiveRole(ctx, *current.ParentRoleID)
			if err != nil {
				return nil, err
			}
			if parent == nil {
				break
			}
			current = *parent
		}
	}
	return roles, nil
}

func (r *Resolver) observeCheck(d *Decision, started time.Time) {
	if r.metrics == nil {
		return
	}
	result := "denied"
	if d.Allowed {
		result = "allowed"
	}
	r.metrics.ChecksTotal.WithLabelValues(result).Inc()
	r.metrics.CheckDuration.Observe(time.Since(started).Seconds())
}

// resolveTenant defaults a nil tenant to the user's home tenant when a
// TenantResolver is configured. An explicit tenant always wins.
func (r *Resolver) resolveTenant(ctx context.Context, userID int64, tenantID *int64) (*int64, error) {
	if tenantID != nil || r.tenants == nil {
		return tenantID, nil
	}
	home, err := r.tenants.GetUserTenantID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user tenant: %w", err)
	}
	return home, nil
}

func hasSuperAdmin(roles []Role) bool {
	for _, role := range roles {
		if role.Code == RoleCodeSuperAdmin {
			return true
		}
	}
	return false
}

func roleIDs(roles []Role) []int64 {
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	return ids
}
