package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"foodcourt/internal/domain"
)

// bootstrapWorkers bounds concurrent API calls during bootstrap so a
// large catalog does not trip the upstream rate limit in one burst.
const bootstrapWorkers = 4

// Bootstrap mirrors the seeded catalog into the authorization service:
// one resource instance per restaurant, one directory entry per user,
// and the standing role grants derived from each user's household role.
// Parents get the parent role on every restaurant; children get the
// member role only on restaurants flagged as allowed for children.
//
// Conflict responses are treated as already-present, so re-running
// against an environment that already holds the objects is safe. Any
// other failure aborts, since serving queries against a half-synced
// policy would produce wrong denials.
func Bootstrap(ctx context.Context, gw domain.AuthzGateway, store domain.CatalogStore, audit domain.AuditLogger, logger *slog.Logger) error {
	restaurants, err := store.Restaurants(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: load restaurants: %w", err)
	}
	users, err := store.Users(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: load users: %w", err)
	}

	if err := fanOut(ctx, len(restaurants), func(i int) error {
		key := strconv.FormatInt(restaurants[i].ID, 10)
		return ignoreConflict(gw.CreateResourceInstance(ctx, domain.ResourceRestaurants, key))
	}); err != nil {
		return fmt.Errorf("bootstrap: create resource instances: %w", err)
	}

	if err := fanOut(ctx, len(users), func(i int) error {
		return gw.SyncUser(ctx, users[i].Username)
	}); err != nil {
		return fmt.Errorf("bootstrap: sync users: %w", err)
	}

	assignments := buildAssignments(users, restaurants)
	if err := ignoreConflict(gw.BulkAssignRoles(ctx, assignments)); err != nil {
		return fmt.Errorf("bootstrap: assign roles: %w", err)
	}

	logger.Info("authorization bootstrap complete",
		"restaurants", len(restaurants),
		"users", len(users),
		"assignments", len(assignments))

	if audit != nil {
		event := domain.AuditEvent{
			Timestamp: time.Now().UTC(),
			Type:      domain.AuditBootstrapSync,
			Outcome:   "ok",
			Detail: map[string]string{
				"restaurants": strconv.Itoa(len(restaurants)),
				"users":       strconv.Itoa(len(users)),
				"assignments": strconv.Itoa(len(assignments)),
			},
		}
		if err := audit.Log(ctx, event); err != nil {
			logger.Warn("audit write failed", "error", err)
		}
	}
	return nil
}

// buildAssignments derives the standing grants from catalog roles.
func buildAssignments(users []domain.User, restaurants []domain.Restaurant) []domain.RoleAssignment {
	var out []domain.RoleAssignment
	for _, u := range users {
		for _, r := range restaurants {
			instance := domain.InstanceKey(domain.ResourceRestaurants, r.ID)
			switch u.Role {
			case domain.RoleParent:
				out = append(out, domain.RoleAssignment{
					User:             u.Username,
					Role:             domain.AuthzRoleParent,
					ResourceInstance: instance,
				})
			case domain.RoleChild:
				if r.AllowedForChildren {
					out = append(out, domain.RoleAssignment{
						User:             u.Username,
						Role:             domain.AuthzRoleMember,
						ResourceInstance: instance,
					})
				}
			}
		}
	}
	return out
}

// fanOut runs fn for each index with bounded concurrency and returns
// the first error encountered.
func fanOut(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	sem := make(chan struct{}, bootstrapWorkers)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			errs[idx] = fn(idx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ignoreConflict drops 409 responses: the object already exists, which
// is exactly the state bootstrap wants.
func ignoreConflict(err error) error {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusConflict {
		return nil
	}
	return err
}
