package identity_test

import (
	"context"
	"testing"

	"github.com/fundo-patronos/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(t *testing.T, status identity.Status) (*identity.Admin, *fakeProfileStore) {
	t.Helper()

	profiles := newFakeProfileStore()
	profiles.SetProfile(&identity.Profile{
		IdentityID: "uid-1",
		Role:       identity.RoleMentor,
		Status:     status,
		Email:      "rui@patronos.org",
	})

	machine := identity.NewStatusMachine(profiles)
	return identity.NewAdmin(profiles, machine), profiles
}

func TestAdminApprove(t *testing.T) {
	admin, profiles := newAdminFixture(t, identity.StatusPendingApproval)

	profile, err := admin.Approve(context.Background(), adminActor, "uid-1")
	require.NoError(t, err)
	assert.True(t, profile.IsActive())

	stored, err := profiles.Read(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, stored.Status)
}

func TestAdminReject(t *testing.T) {
	admin, _ := newAdminFixture(t, identity.StatusPendingApproval)

	profile, err := admin.Reject(context.Background(), adminActor, "uid-1",
		identity.WithTransitionReason("unrecognized affiliation"))
	require.NoError(t, err)
	assert.True(t, profile.IsSuspended())
	assert.NotNil(t, profile.SuspendedAt)
}

func TestAdminSuspendAndReinstate(t *testing.T) {
	admin, profiles := newAdminFixture(t, identity.StatusActive)

	suspended, err := admin.Suspend(context.Background(), adminActor, "uid-1")
	require.NoError(t, err)
	assert.True(t, suspended.IsSuspended())
	assert.NotNil(t, suspended.SuspendedAt)

	reinstated, err := admin.Reinstate(context.Background(), adminActor, "uid-1")
	require.NoError(t, err)
	assert.True(t, reinstated.IsActive())
	assert.Nil(t, reinstated.SuspendedAt)

	stored, err := profiles.Read(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Nil(t, stored.SuspendedAt)
}

func TestAdminRejectsInvalidTarget(t *testing.T) {
	admin, _ := newAdminFixture(t, identity.StatusPendingVerification)

	_, err := admin.Suspend(context.Background(), adminActor, "uid-1")
	assert.ErrorIs(t, err, identity.ErrInvalidTransition)
}

func TestAdminUnknownIdentity(t *testing.T) {
	admin, _ := newAdminFixture(t, identity.StatusActive)

	_, err := admin.Approve(context.Background(), adminActor, "uid-missing")
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)
}

func TestAdminRequiresAdminActor(t *testing.T) {
	admin, _ := newAdminFixture(t, identity.StatusPendingApproval)
	self := identity.ActorRef{ID: "uid-1", Type: identity.ActorTypeSelf}

	_, err := admin.Approve(context.Background(), self, "uid-1")
	assert.ErrorIs(t, err, identity.ErrAdminOnlyTransition)
}

// An approval performed through the admin surface reaches an orchestrator
// watching the same store, without the client doing anything.
func TestAdminApprovalReachesLiveSubscription(t *testing.T) {
	admin, profiles := newAdminFixture(t, identity.StatusPendingApproval)
	sessions := newFakeSessionProvider()
	o := startOrchestrator(t, sessions, profiles)

	sessions.Emit(&identity.Session{IdentityID: "uid-1", Email: "rui@patronos.org"})
	waitForPhase(t, o, identity.PhaseHasProfile)
	require.Equal(t, identity.StatusPendingApproval, o.State().Status())

	decision := identity.Gate(o.State(), []identity.Role{identity.RoleMentor})
	require.Equal(t, identity.DecisionToStatusPage, decision.Kind)

	_, err := admin.Approve(context.Background(), adminActor, "uid-1")
	require.NoError(t, err)

	waitForStatus(t, o, identity.StatusActive)
	decision = identity.Gate(o.State(), []identity.Role{identity.RoleMentor})
	assert.True(t, decision.Allowed())
}
