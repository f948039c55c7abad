// Package identity reconciles a volatile authentication session with the
// durable account profile behind the Centro de Carreiras matching platform,
// and derives the single account state used to route every user.
//
// Reconciliation:
//   - Orchestrator owns the merge of two independent event sources (session
//     changes from a SessionProvider, document changes from a ProfileStore)
//     and serializes every transition on a single event loop. At most one
//     profile subscription is open at a time, always scoped to the current
//     identity; pushes from a stale subscription are discarded.
//   - Gate classifies a ReconciledAccountState into a routing Decision. It is
//     pure and total, so protected surfaces never flicker between redirects
//     while state is still loading.
//
// Signup:
//   - Handoff carries a PendingSignupIntent (email plus chosen role) across
//     the redirect boundary of the magic-link flow. The intent lives behind
//     the small IntentStore capability so the same logic runs against an
//     in-memory fake or a durable store.
//   - Signup creates profiles idempotently by identity ID, deriving the
//     initial Status from the ApprovalPolicy (auto-approved email domains per
//     role, as the platform's admissions rules define them).
//
// Lifecycle:
//   - Profiles carry a Status that only the StatusMachine may move: admins
//     approve, reject, suspend, and reinstate accounts; self-service email
//     verification activates password signups. The orchestrator never mutates
//     status itself, it only reacts to the resulting store events.
package identity
