package approvals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/internal/testutil"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateListings() { c.calls++ }

type fixture struct {
	client   *db.Client
	svc      Service
	listings *countingInvalidator
	dev      access.Actor
	admin    access.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := testutil.OpenDB(t)
	resolver, err := access.NewResolver(client.DB())
	require.NoError(t, err)
	listings := &countingInvalidator{}
	svc, err := NewService(ServiceParams{
		DB:       client,
		Repo:     NewRepository(),
		Items:    marketplace.NewRepository(),
		Resolver: resolver,
		Listings: listings,
		Audit:    audit.NewService(client.DB(), logger.Nop()),
	})
	require.NoError(t, err)

	dev := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleDeveloper })
	admin := testutil.CreateUser(t, client, func(u *models.User) { u.Role = enums.RoleAdmin })
	return &fixture{
		client:   client,
		svc:      svc,
		listings: listings,
		dev:      access.Actor{UserID: dev.ID, Role: dev.Role},
		admin:    access.Actor{UserID: admin.ID, Role: admin.Role},
	}
}

func (f *fixture) draft(t *testing.T) *models.Template {
	return testutil.CreateTemplate(t, f.client, f.dev.UserID, func(tpl *models.Template) {
		tpl.Status = enums.ContentStatusDraft
	})
}

func (f *fixture) status(t *testing.T, tpl *models.Template) enums.ContentStatus {
	var row models.Template
	require.NoError(t, f.client.DB().First(&row, "id = ?", tpl.ID).Error)
	return row.Status
}

func TestSubmitAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.draft(t)

	approval, err := f.svc.Submit(ctx, f.dev, enums.ItemTypeTemplate, tpl.ID, SubmitInput{Notes: "ready"})
	require.NoError(t, err)
	assert.Equal(t, enums.ContentStatusPendingApproval, approval.Status)
	assert.Equal(t, enums.ContentStatusPendingApproval, f.status(t, tpl))

	reviewed, err := f.svc.Review(ctx, f.admin, approval.ID, ReviewInput{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, enums.ContentStatusApproved, reviewed.Status)
	assert.Equal(t, enums.ContentStatusApproved, f.status(t, tpl))
	assert.Equal(t, 1, f.listings.calls)

	var logs []models.AuditLog
	require.NoError(t, f.client.DB().Where("resource_id = ?", tpl.ID.String()).Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestReviewTwiceIsStateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.draft(t)
	approval, err := f.svc.Submit(ctx, f.dev, enums.ItemTypeTemplate, tpl.ID, SubmitInput{})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.admin, approval.ID, ReviewInput{Decision: DecisionReject, Notes: "missing docs"})
	require.NoError(t, err)
	assert.Equal(t, enums.ContentStatusRejected, f.status(t, tpl))
	assert.Zero(t, f.listings.calls)

	_, err = f.svc.Review(ctx, f.admin, approval.ID, ReviewInput{Decision: DecisionApprove})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// a rejected item can be resubmitted
	_, err = f.svc.Submit(ctx, f.dev, enums.ItemTypeTemplate, tpl.ID, SubmitInput{})
	require.NoError(t, err)
}

func TestSubmitRejectsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	approved := testutil.CreateTemplate(t, f.client, f.dev.UserID, nil)

	_, err := f.svc.Submit(context.Background(), f.dev, enums.ItemTypeTemplate, approved.ID, SubmitInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReviewRequiresStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approval, err := f.svc.Submit(ctx, f.dev, enums.ItemTypeTemplate, f.draft(t).ID, SubmitInput{})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, f.dev, approval.ID, ReviewInput{Decision: DecisionApprove})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approved := testutil.CreateTemplate(t, f.client, f.dev.UserID, nil)
	stranger := testutil.CreateUser(t, f.client, nil)

	err := f.svc.Archive(ctx, access.Actor{UserID: stranger.ID, Role: stranger.Role}, enums.ItemTypeTemplate, approved.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Archive(ctx, f.admin, enums.ItemTypeTemplate, approved.ID))
	assert.Equal(t, enums.ContentStatusArchived, f.status(t, approved))
	assert.Equal(t, 1, f.listings.calls)

	err = f.svc.Archive(ctx, f.dev, enums.ItemTypeTemplate, approved.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Submit(ctx, f.dev, enums.ItemTypeTemplate, f.draft(t).ID, SubmitInput{})
		require.NoError(t, err)
	}

	page, err := f.svc.ListPending(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListPending(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
}
