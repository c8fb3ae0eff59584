package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cargobot/core/telegram/sender"
	"github.com/m3rciful/cargobot/internal/events"
	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
	"github.com/m3rciful/cargobot/internal/store/storetest"
)

type call struct {
	kind   string
	chatID int64
	id     string
	from   shipment.Status
	to     shipment.Status
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	// full rejects broadcasts to these chats.
	full map[int64]bool
}

func (f *fakeNotifier) ShipmentCreated(_ context.Context, s shipment.Shipment, owner shipment.User) {
	f.record(call{kind: "created", chatID: owner.TelegramID, id: s.ID, to: s.Status})
}

func (f *fakeNotifier) StatusChanged(_ context.Context, s shipment.Shipment, from shipment.Status, owner shipment.User, _ shipment.Actor) {
	f.record(call{kind: "status", chatID: owner.TelegramID, id: s.ID, from: from, to: s.Status})
}

func (f *fakeNotifier) Broadcast(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	rejected := f.full[chatID]
	f.mu.Unlock()
	if rejected {
		return sender.ErrQueueFull
	}
	f.record(call{kind: "broadcast", chatID: chatID})
	return nil
}

func (f *fakeNotifier) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

type fixture struct {
	svc    *Service
	store  *store.Store
	notes  *fakeNotifier
	events *fakePublisher
	owner  shipment.User
	other  shipment.User
	admin  shipment.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.New(t)
	f := &fixture{store: st, notes: &fakeNotifier{}, events: &fakePublisher{}}
	f.svc = New(Options{
		Store:    st,
		Notifier: f.notes,
		Events:   f.events,
		IsAdmin:  func(id int64) bool { return id == 900 },
	})
	ctx := context.Background()
	var err error
	f.owner, err = f.svc.Register(ctx, Profile{TelegramID: 100, Username: "owner"})
	require.NoError(t, err)
	f.other, err = f.svc.Register(ctx, Profile{TelegramID: 200, Username: "other"})
	require.NoError(t, err)
	f.admin, err = f.svc.Register(ctx, Profile{TelegramID: 900, Username: "boss"})
	require.NoError(t, err)
	require.True(t, f.admin.IsAdmin)
	return f
}

func (f *fixture) create(t *testing.T) shipment.Shipment {
	t.Helper()
	sh, err := f.svc.CreateShipment(context.Background(), shipment.ActorFor(f.owner), shipment.Draft{
		Type: shipment.TypeSend, WaybillNumber: "INV-001", City: "Moscow",
	})
	require.NoError(t, err)
	return sh
}

// forceStatus walks the allowed graph to reach target.
func (f *fixture) forceStatus(t *testing.T, id string, target shipment.Status) {
	t.Helper()
	paths := map[shipment.Status][]shipment.Status{
		shipment.StatusCreated:    nil,
		shipment.StatusProcessing: {shipment.StatusProcessing},
		shipment.StatusTransit:    {shipment.StatusProcessing, shipment.StatusTransit},
		shipment.StatusDelivered:  {shipment.StatusProcessing, shipment.StatusTransit, shipment.StatusDelivered},
		shipment.StatusProblem:    {shipment.StatusProblem},
	}
	for _, st := range paths[target] {
		_, err := f.svc.UpdateStatus(context.Background(), id, st, shipment.SystemActor)
		require.NoError(t, err)
	}
}

func TestCreateShipmentNotifiesAndPublishes(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t)

	assert.Len(t, sh.ID, 8)
	assert.Equal(t, shipment.StatusCreated, sh.Status)
	assert.Equal(t, f.owner.ID, sh.OwnerID)
	assert.Equal(t, 1, f.notes.count("created"))
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.ShipmentCreated, f.events.events[0].Name)
}

func TestCreateShipmentRejectsInvalidDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateShipment(context.Background(), shipment.ActorFor(f.owner), shipment.Draft{Type: shipment.TypeSend, City: "Moscow"})
	var ve *shipment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "waybill_number", ve.Field)
	assert.Zero(t, f.notes.count("created"))
}

func TestCreateShipmentRetriesOnIDCollision(t *testing.T) {
	f := newFixture(t)
	ids := []string{"DUPLICAT", "DUPLICAT", "FRESH001"}
	f.svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first := f.create(t)
	second := f.create(t)
	assert.Equal(t, "DUPLICAT", first.ID)
	assert.Equal(t, "FRESH001", second.ID)
}

func TestCreateShipmentGivesUpAfterBoundedCollisions(t *testing.T) {
	f := newFixture(t)
	f.svc.newID = func() string { return "SAMEID00" }
	f.create(t)
	_, err := f.svc.CreateShipment(context.Background(), shipment.ActorFor(f.owner), shipment.Draft{
		Type: shipment.TypeSend, WaybillNumber: "W", City: "C",
	})
	assert.ErrorIs(t, err, shipment.ErrPersistence)
}

func TestInvalidTransitionsLeaveStatusUnchanged(t *testing.T) {
	ctx := context.Background()
	for _, from := range shipment.Statuses {
		for _, to := range shipment.Statuses {
			if shipment.CanTransition(from, to) {
				continue
			}
			f := newFixture(t)
			sh := f.create(t)
			f.forceStatus(t, sh.ID, from)
			before := f.notes.count("status")

			_, err := f.svc.UpdateStatus(ctx, sh.ID, to, shipment.ActorFor(f.admin))
			require.ErrorIsf(t, err, shipment.ErrInvalidTransition, "%s -> %s", from, to)
			var te *shipment.TransitionError
			require.ErrorAs(t, err, &te)

			got, err := f.store.GetShipment(ctx, sh.ID)
			require.NoError(t, err)
			assert.Equal(t, from, got.Status)
			assert.Equal(t, before, f.notes.count("status"))
		}
	}
}

func TestAllowedTransitionsPersistAndNotifyOnce(t *testing.T) {
	ctx := context.Background()
	for _, from := range shipment.Statuses {
		for _, to := range from.Next() {
			f := newFixture(t)
			sh := f.create(t)
			f.forceStatus(t, sh.ID, from)
			f.notes.calls = nil
			f.events.events = nil

			updated, err := f.svc.UpdateStatus(ctx, sh.ID, to, shipment.ActorFor(f.owner))
			require.NoErrorf(t, err, "%s -> %s", from, to)
			assert.Equal(t, to, updated.Status)

			got, err := f.store.GetShipment(ctx, sh.ID)
			require.NoError(t, err)
			assert.Equal(t, to, got.Status)

			require.Len(t, f.notes.calls, 1)
			assert.Equal(t, call{kind: "status", chatID: 100, id: sh.ID, from: from, to: to}, f.notes.calls[0])
			require.Len(t, f.events.events, 1)
			assert.Equal(t, from, f.events.events[0].OldStatus)
		}
	}
}

func TestAdminDeliversTransitShipment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sh := f.create(t)
	f.forceStatus(t, sh.ID, shipment.StatusTransit)
	f.notes.calls = nil

	updated, err := f.svc.UpdateStatus(ctx, sh.ID, shipment.StatusDelivered, shipment.ActorFor(f.admin))
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusDelivered, updated.Status)

	trail, err := f.svc.History(ctx, shipment.ActorFor(f.admin), sh.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, shipment.StatusTransit, last.OldStatus)
	assert.Equal(t, shipment.StatusDelivered, last.NewStatus)
	assert.Equal(t, "@boss", last.Actor)
	assert.Equal(t, 1, f.notes.count("status"))
}

func TestNonOwnerCannotChangeStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sh := f.create(t)
	f.notes.calls = nil
	f.events.events = nil

	_, err := f.svc.UpdateStatus(ctx, sh.ID, shipment.StatusProcessing, shipment.ActorFor(f.other))
	require.ErrorIs(t, err, shipment.ErrPermission)

	got, err := f.store.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCreated, got.Status)
	assert.Empty(t, f.notes.calls)
	assert.Empty(t, f.events.events)
	trail, err := f.store.Audit(ctx, sh.ID)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestUpdateStatusUnknownShipmentAndStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), "NOPE0000", shipment.StatusProcessing, shipment.SystemActor)
	assert.ErrorIs(t, err, shipment.ErrNotFound)

	sh := f.create(t)
	_, err = f.svc.UpdateStatus(context.Background(), sh.ID, shipment.Status("lost"), shipment.SystemActor)
	assert.ErrorIs(t, err, shipment.ErrValidation)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	sh := f.create(t)
	f.events.err = errors.New("broker down")

	_, err := f.svc.UpdateStatus(context.Background(), sh.ID, shipment.StatusProcessing, shipment.SystemActor)
	require.NoError(t, err)
}

func TestCommentAndFavorites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sh := f.create(t)
	owner := shipment.ActorFor(f.owner)

	updated, err := f.svc.SetComment(ctx, owner, sh.ID, "  call first ")
	require.NoError(t, err)
	require.NotNil(t, updated.Comment)
	assert.Equal(t, "call first", *updated.Comment)

	updated, err = f.svc.SetComment(ctx, shipment.ActorFor(f.admin), sh.ID, "-")
	require.NoError(t, err)
	assert.Nil(t, updated.Comment)

	_, err = f.svc.SetComment(ctx, shipment.ActorFor(f.other), sh.ID, "mine now")
	assert.ErrorIs(t, err, shipment.ErrPermission)

	on, err := f.svc.ToggleFavorite(ctx, owner, sh.ID)
	require.NoError(t, err)
	assert.True(t, on)
	page, err := f.svc.List(ctx, owner, ListQuery{Favorites: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = f.svc.ToggleFavorite(ctx, shipment.ActorFor(f.other), sh.ID)
	assert.ErrorIs(t, err, shipment.ErrPermission)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.create(t)
	}
	owner := shipment.ActorFor(f.owner)

	p1, err := f.svc.List(ctx, owner, ListQuery{Days: 7})
	require.NoError(t, err)
	assert.Len(t, p1.Items, BotPageSize)
	assert.Equal(t, 7, p1.Total)
	assert.Equal(t, 2, p1.Pages())
	assert.True(t, p1.HasNext())
	assert.False(t, p1.HasPrev())

	p2, err := f.svc.List(ctx, owner, ListQuery{Days: 7, Page: 2})
	require.NoError(t, err)
	assert.Len(t, p2.Items, 2)
	assert.False(t, p2.HasNext())

	today, err := f.svc.List(ctx, owner, ListQuery{Date: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 7, today.Total)

	none, err := f.svc.List(ctx, shipment.ActorFor(f.other), ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, none.Total)

	_, err = f.svc.List(ctx, shipment.ActorFor(f.other), ListQuery{All: true})
	assert.ErrorIs(t, err, shipment.ErrPermission)

	byWaybill, err := f.svc.List(ctx, owner, ListQuery{Waybill: "INV-001"})
	require.NoError(t, err)
	assert.Equal(t, 7, byWaybill.Total)
}

func TestSearchStatsAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t)
	f.create(t)
	f.forceStatus(t, a.ID, shipment.StatusProblem)

	page, err := f.svc.Search(ctx, SearchQuery{Search: "moscow", Status: shipment.StatusProblem})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, a.ID, page.Items[0].ID)
	assert.Equal(t, APIPageSize, page.PageSize)

	_, err = f.svc.Search(ctx, SearchQuery{Status: "lost"})
	assert.ErrorIs(t, err, shipment.ErrValidation)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByStatus[shipment.StatusProblem])
	assert.Equal(t, 3, st.Users)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportHeader, rows[0])
	_, err = time.Parse(time.RFC3339, rows[1][7])
	assert.NoError(t, err)
}

func TestBroadcastRespectsPreferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	enabled, err := f.svc.ToggleNotifications(ctx, f.other)
	require.NoError(t, err)
	assert.False(t, enabled)

	n, err := f.svc.Broadcast(ctx, shipment.ActorFor(f.admin), "Office closed <today>")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.notes.count("broadcast"))

	_, err = f.svc.Broadcast(ctx, shipment.ActorFor(f.owner), "hi")
	assert.ErrorIs(t, err, shipment.ErrPermission)
	_, err = f.svc.Broadcast(ctx, shipment.ActorFor(f.admin), "  ")
	assert.ErrorIs(t, err, shipment.ErrValidation)
}

func TestBroadcastCountsOnlyQueuedMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notes.full = map[int64]bool{f.owner.TelegramID: true}

	n, err := f.svc.Broadcast(ctx, shipment.ActorFor(f.admin), "Office closed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.notes.count("broadcast"))
	for _, c := range f.notes.calls {
		assert.NotEqual(t, f.owner.TelegramID, c.chatID)
	}
}

func TestAdminSeederPromotes(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	u, err := st.UpsertUser(ctx, shipment.User{TelegramID: 5, Username: "keep"})
	require.NoError(t, err)
	require.False(t, u.IsAdmin)

	require.NoError(t, AdminSeeder([]int64{5, 6}).Seed(ctx, st.DB()))

	u, err = st.UserByTelegramID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "keep", u.Username)
	u, err = st.UserByTelegramID(ctx, 6)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}
