package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
	"github.com/m3rciful/cargobot/internal/store/storetest"
)

func seedUser(t *testing.T, s *store.Store, tgID int64) shipment.User {
	t.Helper()
	u, err := s.UpsertUser(context.Background(), shipment.User{TelegramID: tgID, Username: "u"})
	require.NoError(t, err)
	return u
}

func seedShipment(t *testing.T, s *store.Store, id string, owner int64, created time.Time) shipment.Shipment {
	t.Helper()
	sh := shipment.New(id, owner, shipment.Draft{Type: shipment.TypeSend, WaybillNumber: "W-" + id, City: "Moscow"}, created)
	require.NoError(t, s.CreateShipment(context.Background(), sh))
	return sh
}

func TestUpsertUserKeepsAdminAndPreferences(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)

	u, err := s.UpsertUser(ctx, shipment.User{TelegramID: 10, Username: "anna", IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.True(t, u.NotificationsEnabled)

	require.NoError(t, s.SetNotifications(ctx, u.ID, false))
	again, err := s.UpsertUser(ctx, shipment.User{TelegramID: 10, Username: "anna_new"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "anna_new", again.Username)
	assert.True(t, again.IsAdmin)
	assert.False(t, again.NotificationsEnabled)

	_, err = s.UserByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, shipment.ErrNotFound)
}

func TestCreateAndGetShipment(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	u := seedUser(t, s, 1)

	w := 12.5
	c := "fragile"
	sh := shipment.New("AB12CD34", u.ID, shipment.Draft{
		Type: shipment.TypeTransfer, WaybillNumber: "INV-001", City: "Moscow", Weight: &w, Comment: &c,
	}, time.Now().UTC())
	require.NoError(t, s.CreateShipment(ctx, sh))

	got, err := s.GetShipment(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, shipment.TypeTransfer, got.Type)
	assert.Equal(t, "INV-001", got.WaybillNumber)
	require.NotNil(t, got.Weight)
	assert.InDelta(t, 12.5, *got.Weight, 1e-9)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "fragile", *got.Comment)
	assert.Nil(t, got.WaybillPhoto)
	assert.Equal(t, shipment.StatusCreated, got.Status)

	err = s.CreateShipment(ctx, sh)
	assert.ErrorIs(t, err, store.ErrDuplicateID)

	_, err = s.GetShipment(ctx, "NOPE")
	assert.ErrorIs(t, err, shipment.ErrNotFound)
}

func TestListShipmentsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	a := seedUser(t, s, 1)
	b := seedUser(t, s, 2)

	now := time.Now().UTC()
	for i, id := range []string{"00000001", "00000002", "00000003", "00000004", "00000005", "00000006"} {
		seedShipment(t, s, id, a.ID, now.Add(-time.Duration(i)*24*time.Hour))
	}
	seedShipment(t, s, "0000000B", b.ID, now)

	page, total, err := s.ListShipments(ctx, store.Filter{OwnerID: a.ID}, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, page, 5)
	assert.Equal(t, "00000001", page[0].ID)

	page, _, err = s.ListShipments(ctx, store.Filter{OwnerID: a.ID}, 5, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "00000006", page[0].ID)

	_, total, err = s.ListShipments(ctx, store.Filter{OwnerID: a.ID, Since: now.Add(-72*time.Hour - time.Minute)}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	list, _, err := s.ListShipments(ctx, store.Filter{OwnerID: a.ID, Waybill: "W-00000003"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "00000003", list[0].ID)

	_, total, err = s.ListShipments(ctx, store.Filter{Search: "w-0000000b"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestUpdateStatusWritesAudit(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	u := seedUser(t, s, 1)
	seedShipment(t, s, "AAAA0001", u.ID, time.Now().UTC())

	updated, from, err := s.UpdateStatus(ctx, "AAAA0001", shipment.StatusProcessing, shipment.ActorFor(u),
		func(cur shipment.Shipment) error { return shipment.ValidateTransition(cur.Status, shipment.StatusProcessing) })
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCreated, from)
	assert.Equal(t, shipment.StatusProcessing, updated.Status)

	entries, err := s.Audit(ctx, "AAAA0001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, shipment.StatusCreated, entries[0].OldStatus)
	assert.Equal(t, shipment.StatusProcessing, entries[0].NewStatus)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, u.ID, *entries[0].ActorID)
}

func TestUpdateStatusRollsBackOnRejectedCheck(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	u := seedUser(t, s, 1)
	seedShipment(t, s, "AAAA0002", u.ID, time.Now().UTC())

	_, _, err := s.UpdateStatus(ctx, "AAAA0002", shipment.StatusDelivered, shipment.SystemActor,
		func(cur shipment.Shipment) error { return shipment.ValidateTransition(cur.Status, shipment.StatusDelivered) })
	assert.ErrorIs(t, err, shipment.ErrInvalidTransition)

	got, err := s.GetShipment(ctx, "AAAA0002")
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCreated, got.Status)
	entries, err := s.Audit(ctx, "AAAA0002")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, _, err = s.UpdateStatus(ctx, "MISSING0", shipment.StatusProcessing, shipment.SystemActor, nil)
	assert.ErrorIs(t, err, shipment.ErrNotFound)
}

func TestCommentFavoritesAndCounts(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	u := seedUser(t, s, 1)
	seedShipment(t, s, "AAAA0003", u.ID, time.Now().UTC())
	seedShipment(t, s, "AAAA0004", u.ID, time.Now().UTC())

	note := "call before delivery"
	require.NoError(t, s.SetComment(ctx, "AAAA0003", &note))
	got, err := s.GetShipment(ctx, "AAAA0003")
	require.NoError(t, err)
	require.NotNil(t, got.Comment)
	assert.Equal(t, note, *got.Comment)
	assert.ErrorIs(t, s.SetComment(ctx, "MISSING0", nil), shipment.ErrNotFound)

	on, err := s.ToggleFavorite(ctx, u.ID, "AAAA0003")
	require.NoError(t, err)
	assert.True(t, on)
	favs, total, err := s.ListShipments(ctx, store.Filter{FavoriteOf: u.ID}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "AAAA0003", favs[0].ID)
	off, err := s.ToggleFavorite(ctx, u.ID, "AAAA0003")
	require.NoError(t, err)
	assert.False(t, off)

	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[shipment.StatusCreated])
	assert.Equal(t, 0, counts[shipment.StatusDelivered])

	var ids []string
	require.NoError(t, s.EachShipment(ctx, func(sh shipment.Shipment) error {
		ids = append(ids, sh.ID)
		return nil
	}))
	assert.Len(t, ids, 2)
}
