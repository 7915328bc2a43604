package billing

import (
	"net/http"

	"github.com/dmitrymomot/billingd/core"
	"github.com/dmitrymomot/billingd/modules/auth"
	billingsvc "github.com/dmitrymomot/billingd/svc/billing"
)

// RequirePlan gates a route behind a minimum plan tier. The caller's role
// comes from their occupying subscription; higher tiers pass lower gates,
// so a premium subscriber clears a pro gate. Runs after auth.Middleware.
func (m *Module) RequirePlan(minPlan string) func(http.Handler) http.Handler {
	minRank := billingsvc.PlanRank(minPlan)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				core.Render(w, r, core.JSONError(core.ErrUnauthorized))
				return
			}

			state, err := m.svc.CurrentSubscription(r.Context(), userID)
			if err != nil {
				core.Render(w, r, core.JSONError(err))
				return
			}
			if billingsvc.PlanRank(state.Role) < minRank {
				core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusForbidden, "insufficient_plan")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
