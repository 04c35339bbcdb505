// Package entitlement decides, per user and per feature, whether an action is
// permitted under the user's subscription plan, and tracks day-granular usage
// counters for the legal-services marketplace.
//
// The package is a consumer of three external stores: a PlanStore holding the
// admin-managed plan catalog and each user's subscription status, a UsageStore
// holding per-user/per-feature/per-day counters, and a RelationshipStore
// exposing existing client-lawyer conversations. It owns the semantics of
// usage increments and plan resolution, not the storage itself.
//
// # Quick start
//
//	plans := entitlement.NewMemoryPlanStore(
//		entitlement.Plan{
//			Name: entitlement.FreePlanName,
//			Features: map[entitlement.FeatureKey]entitlement.Limit{
//				entitlement.FeatureAIQueries:   entitlement.LimitOf(3),
//				entitlement.FeatureLawyerChats: entitlement.LimitOf(1),
//			},
//		},
//		entitlement.Plan{
//			Name:     "Pro",
//			PriceRef: "price_pro_monthly",
//			Features: map[entitlement.FeatureKey]entitlement.Limit{
//				entitlement.FeatureAIQueries:   entitlement.Unlimited,
//				entitlement.FeatureLawyerChats: entitlement.LimitOf(10),
//			},
//		},
//	)
//
//	catalog := entitlement.NewCatalog(plans)
//	svc := entitlement.NewService(catalog, entitlement.NewMemoryUsageStore(), entitlement.NewMemoryRelationshipStore())
//
//	access, err := svc.CheckFeatureAccess(ctx, userID, entitlement.FeatureAIQueries)
//	if err != nil {
//		// store failure; fail the user-facing action
//	}
//	if !access.Allowed {
//		// blocked: show an upgrade prompt
//	}
//
//	// ... perform the metered action, then:
//	usage, err := svc.IncrementFeatureUsage(ctx, userID, entitlement.FeatureAIQueries)
//
// # Plan resolution
//
// A user's subscription status is matched against each plan's PriceRef. An
// empty or unmatched status resolves to the plan named "Free", which must
// always exist. The catalog is cached in-process for five minutes
// (DefaultCatalogTTL) and refreshed lazily; a failed refresh is returned as an
// error rather than served from the stale cache.
//
// # Checks versus increments
//
// CheckFeatureAccess is read-only; IncrementFeatureUsage consumes quota.
// Callers check before acting and increment once the action succeeded, so the
// pair is not atomic by construction. When the configured UsageStore also
// implements ConditionalUsageStore (the Postgres, Redis, Mongo and memory
// stores all do), the increment runs as a single store-side conditional
// operation and concurrent callers cannot overrun the limit. With a plain
// UsageStore the increment falls back to read-then-upsert, which can overshoot
// the limit by the number of concurrent callers.
//
// # Lawyer-chat initiation
//
// CheckLawyerChatInitiation counts distinct client-initiated conversations
// rather than daily events, and it grandfathers existing conversations: a
// conversation that already exists between the two participants may always
// continue, even on a plan whose cap would no longer allow it to be opened.
package entitlement
