package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cargobot/core/telegram/state"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
	"github.com/m3rciful/cargobot/internal/store/storetest"
)

var testCities = []string{"Moscow", "Saint Petersburg", "Novosibirsk"}

type countingNotifier struct{ created, status, broadcast int }

func (n *countingNotifier) ShipmentCreated(context.Context, shipment.Shipment, shipment.User) {
	n.created++
}

func (n *countingNotifier) StatusChanged(context.Context, shipment.Shipment, shipment.Status, shipment.User, shipment.Actor) {
	n.status++
}

func (n *countingNotifier) Broadcast(context.Context, int64, string) error {
	n.broadcast++
	return nil
}

type fakePhotos struct {
	saved []string
	err   error
}

func (f *fakePhotos) SavePhoto(_ context.Context, kind PhotoKind, p Photo) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := string(kind) + "/" + p.FileID + ".jpg"
	f.saved = append(f.saved, path)
	return path, nil
}

type harness struct {
	t        *testing.T
	engine   *Engine
	sessions *state.MemoryStore[Draft]
	store    *store.Store
	svc      *service.Service
	notes    *countingNotifier
	photos   *fakePhotos
	user     shipment.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := storetest.New(t)
	h := &harness{
		t:        t,
		sessions: state.NewMemoryStore[Draft](time.Minute),
		store:    st,
		notes:    &countingNotifier{},
		photos:   &fakePhotos{},
	}
	h.svc = service.New(service.Options{
		Store:    st,
		Notifier: h.notes,
		IsAdmin:  func(id int64) bool { return id == 900 },
	})
	h.engine = New(Options{Sessions: h.sessions, Backend: h.svc, Photos: h.photos, Cities: testCities})
	h.user = h.register(100, "field")
	return h
}

func (h *harness) register(id int64, name string) shipment.User {
	h.t.Helper()
	u, err := h.svc.Register(context.Background(), service.Profile{TelegramID: id, Username: name})
	require.NoError(h.t, err)
	return u
}

func (h *harness) send(text string) Reply {
	h.t.Helper()
	return h.sendAs(h.user, Input{Text: text})
}

func (h *harness) command(cmd string) Reply {
	h.t.Helper()
	return h.sendAs(h.user, Input{Command: cmd})
}

func (h *harness) photo(fileID string) Reply {
	h.t.Helper()
	return h.sendAs(h.user, Input{Photo: &Photo{FileID: fileID}})
}

func (h *harness) sendAs(u shipment.User, in Input) Reply {
	h.t.Helper()
	in.User = u
	in.ChatID = u.TelegramID
	r, err := h.engine.Handle(context.Background(), in)
	require.NoError(h.t, err)
	return r
}

func (h *harness) session() state.Session[Draft] {
	h.t.Helper()
	s, err := h.sessions.Get(context.Background(), h.user.TelegramID)
	if errors.Is(err, state.ErrNoSession) {
		return state.Session[Draft]{State: StateMainMenu}
	}
	require.NoError(h.t, err)
	return s
}

func (h *harness) only() shipment.Shipment {
	h.t.Helper()
	items, total, err := h.store.ListShipments(context.Background(), store.Filter{OwnerID: h.user.ID}, 10, 0)
	require.NoError(h.t, err)
	require.Equal(h.t, 1, total)
	return items[0]
}

func TestScenarioSkipEverything(t *testing.T) {
	h := newHarness(t)
	h.command(CmdStart)
	h.send(BtnNewShipment)
	h.send(shipment.TypeSend.Label())
	h.send("INV-001")
	h.send("Moscow")
	h.send("12.5")
	h.send("-")
	h.send("-")
	r := h.send(BtnSkip)

	assert.Contains(t, r.Text, "saved")
	assert.Equal(t, StateMainMenu, h.session().State)
	_, err := h.sessions.Get(context.Background(), h.user.TelegramID)
	assert.ErrorIs(t, err, state.ErrNoSession)

	sh := h.only()
	assert.Equal(t, shipment.TypeSend, sh.Type)
	assert.Equal(t, "INV-001", sh.WaybillNumber)
	assert.Equal(t, "Moscow", sh.City)
	require.NotNil(t, sh.Weight)
	assert.Equal(t, 12.5, *sh.Weight)
	assert.Nil(t, sh.Comment)
	assert.Equal(t, shipment.StatusCreated, sh.Status)
	assert.Nil(t, sh.WaybillPhoto)
	assert.Nil(t, sh.ProductPhoto)
	assert.Equal(t, 1, h.notes.created)
}

func TestTraversalWithPhotosOtherCityAndBack(t *testing.T) {
	h := newHarness(t)
	h.send(BtnNewShipment)
	h.send("transfer")
	h.send("  WB-77  ")
	h.send("Moscow")
	require.Equal(t, StateWeightInput, h.session().State)

	h.send(BtnBack)
	require.Equal(t, StateCitySelection, h.session().State)
	assert.Equal(t, "WB-77", h.session().Data.WaybillNumber, "earlier field kept")

	r := h.send(BtnOtherCity)
	assert.Equal(t, "Type the city name:", r.Text)
	assert.Equal(t, StateCitySelection, h.session().State)
	h.send("Kazan")

	h.send("3,5")
	h.send("Fragile")
	h.photo("wb1")
	require.Equal(t, StateProductPhoto, h.session().State)
	h.photo("pr1")

	sh := h.only()
	assert.Equal(t, shipment.TypeTransfer, sh.Type)
	assert.Equal(t, "WB-77", sh.WaybillNumber)
	assert.Equal(t, "Kazan", sh.City)
	require.NotNil(t, sh.Weight)
	assert.Equal(t, 3.5, *sh.Weight)
	require.NotNil(t, sh.Comment)
	assert.Equal(t, "Fragile", *sh.Comment)
	require.NotNil(t, sh.WaybillPhoto)
	assert.Equal(t, "waybills/wb1.jpg", *sh.WaybillPhoto)
	require.NotNil(t, sh.ProductPhoto)
	assert.Equal(t, "products/pr1.jpg", *sh.ProductPhoto)
}

func TestZeroWeightIsUnknown(t *testing.T) {
	h := newHarness(t)
	for _, in := range []string{BtnNewShipment, "send", "W-0", "Moscow", "0", "-", "-", "-"} {
		h.send(in)
	}
	assert.Nil(t, h.only().Weight)
}

func TestWeightRepromptsOnGarbage(t *testing.T) {
	h := newHarness(t)
	for _, in := range []string{BtnNewShipment, "send", "W-1", "Moscow"} {
		h.send(in)
	}
	before := h.session().Data

	for _, bad := range []string{"heavy", "-3", "NaN", "1e999", "0x1p3", "0x1.8p1", "2e1"} {
		r := h.send(bad)
		assert.Contains(t, r.Text, "non-negative number")
		assert.Equal(t, StateWeightInput, h.session().State)
		assert.Equal(t, before, h.session().Data)
	}

	h.send("7")
	assert.Equal(t, StateCommentInput, h.session().State)
	require.NotNil(t, h.session().Data.Weight)
	assert.Equal(t, 7.0, *h.session().Data.Weight)
}

func TestInvalidInputKeepsStepAndDraft(t *testing.T) {
	h := newHarness(t)
	h.send(BtnNewShipment)

	r := h.send("fly")
	assert.Contains(t, r.Text, "choose one of the buttons")
	assert.Equal(t, StateTypeSelection, h.session().State)

	h.send("receive")
	long := make([]byte, shipment.MaxTextLen+1)
	for i := range long {
		long[i] = 'x'
	}
	r = h.send(string(long))
	assert.Contains(t, r.Text, "too long")
	r = h.send("   ")
	assert.Contains(t, r.Text, "must not be empty")
	r = h.photo("stray")
	assert.Equal(t, StateWaybillNumber, h.session().State)
	assert.Empty(t, h.session().Data.WaybillNumber)
	assert.Empty(t, h.photos.saved)

	for _, in := range []string{"W", "Moscow", "1", "-"} {
		h.send(in)
	}
	r = h.send("not a photo")
	assert.Contains(t, r.Text, "Send a photo or press Skip")
	assert.Equal(t, StateWaybillPhoto, h.session().State)
}

func TestCancelFromEveryState(t *testing.T) {
	steps := []string{BtnNewShipment, "send", "INV-9", "Moscow", "1", "-", "-"}
	for depth := 1; depth <= len(steps); depth++ {
		for _, cancel := range []Input{{Command: CmdCancel}, {Text: BtnCancel}} {
			t.Run(fmt.Sprintf("depth%d", depth), func(t *testing.T) {
				h := newHarness(t)
				for _, in := range steps[:depth] {
					h.send(in)
				}
				require.NotEqual(t, StateMainMenu, h.session().State)

				r := h.sendAs(h.user, cancel)
				assert.Contains(t, r.Text, "Cancelled")
				assert.Equal(t, StateMainMenu, h.session().State)
				assert.False(t, h.engine.Active(context.Background(), h.user.TelegramID))

				h.command(CmdStart)
				h.send(BtnNewShipment)
				assert.Equal(t, Draft{}, h.session().Data)
			})
		}
	}

	for _, entry := range []string{BtnSearch, BtnSettings} {
		h := newHarness(t)
		h.send(entry)
		require.True(t, h.engine.Active(context.Background(), h.user.TelegramID))
		h.command(CmdCancel)
		assert.False(t, h.engine.Active(context.Background(), h.user.TelegramID))
	}
}

func TestStartDiscardsStaleSession(t *testing.T) {
	h := newHarness(t)
	for _, in := range []string{BtnNewShipment, "send", "OLD-1"} {
		h.send(in)
	}
	r := h.command(CmdStart)
	assert.Contains(t, r.Text, "Welcome")
	assert.Equal(t, StateMainMenu, h.session().State)
	assert.Empty(t, h.session().Data.WaybillNumber)
}

func TestBackFromTypeSelectionReturnsToMenu(t *testing.T) {
	h := newHarness(t)
	h.send(BtnNewShipment)
	h.send(BtnBack)
	assert.False(t, h.engine.Active(context.Background(), h.user.TelegramID))
}

func TestPhotoStoreFailureReprompts(t *testing.T) {
	h := newHarness(t)
	for _, in := range []string{BtnNewShipment, "send", "W", "Moscow", "1", "-"} {
		h.send(in)
	}
	h.photos.err = errors.New("disk full")
	r := h.photo("wb")
	assert.Contains(t, r.Text, "Could not save the photo")
	assert.Equal(t, StateWaybillPhoto, h.session().State)
}

type mockBackend struct{ mock.Mock }

func (m *mockBackend) CreateShipment(ctx context.Context, actor shipment.Actor, d shipment.Draft) (shipment.Shipment, error) {
	args := m.Called(ctx, actor, d)
	return args.Get(0).(shipment.Shipment), args.Error(1)
}

func (m *mockBackend) Shipment(ctx context.Context, actor shipment.Actor, id string) (shipment.Shipment, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(shipment.Shipment), args.Error(1)
}

func (m *mockBackend) List(ctx context.Context, actor shipment.Actor, q service.ListQuery) (service.Page, error) {
	args := m.Called(ctx, actor, q)
	return args.Get(0).(service.Page), args.Error(1)
}

func (m *mockBackend) SetComment(ctx context.Context, actor shipment.Actor, id, text string) (shipment.Shipment, error) {
	args := m.Called(ctx, actor, id, text)
	return args.Get(0).(shipment.Shipment), args.Error(1)
}

func (m *mockBackend) ToggleNotifications(ctx context.Context, u shipment.User) (bool, error) {
	args := m.Called(ctx, u)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) Broadcast(ctx context.Context, actor shipment.Actor, text string) (int, error) {
	args := m.Called(ctx, actor, text)
	return args.Int(0), args.Error(1)
}

func (m *mockBackend) Stats(ctx context.Context) (service.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.Stats), args.Error(1)
}

func (m *mockBackend) Location() *time.Location { return time.UTC }

func TestCommitFailurePreservesDraftAndRetries(t *testing.T) {
	backend := &mockBackend{}
	sessions := state.NewMemoryStore[Draft](time.Minute)
	e := New(Options{Sessions: sessions, Backend: backend, Cities: testCities})
	user := shipment.User{ID: 1, TelegramID: 100, NotificationsEnabled: true}
	ctx := context.Background()
	send := func(text string) Reply {
		r, err := e.Handle(ctx, Input{User: user, ChatID: 100, Text: text})
		require.NoError(t, err)
		return r
	}

	want := shipment.Draft{Type: shipment.TypeReceive, WaybillNumber: "INV-5", City: "Moscow"}
	backend.On("CreateShipment", mock.Anything, mock.Anything, want).
		Return(shipment.Shipment{}, fmt.Errorf("%w: database is locked", shipment.ErrPersistence)).Once()
	backend.On("CreateShipment", mock.Anything, mock.Anything, want).
		Return(shipment.Shipment{ID: "ABCDEF12", WaybillNumber: "INV-5"}, nil).Once()

	for _, in := range []string{BtnNewShipment, "receive", "INV-5", "Moscow", "-", "-", "-"} {
		send(in)
	}
	r := send(BtnSkip)
	assert.Contains(t, r.Text, "Could not save the shipment")
	assert.Equal(t, [][]string{{BtnRetry}, {BtnCancel}}, r.Keyboard)

	s, err := sessions.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, StateProductPhoto, s.State)
	assert.True(t, s.Data.Committing)
	assert.Equal(t, want, s.Data.Draft)

	r = send("something else")
	assert.Contains(t, r.Text, "Press Retry")

	r = send(BtnRetry)
	assert.Contains(t, r.Text, "ABCDEF12")
	_, err = sessions.Get(ctx, 100)
	assert.ErrorIs(t, err, state.ErrNoSession)
	backend.AssertExpectations(t)
}

func TestSearchAndPaginate(t *testing.T) {
	h := newHarness(t)
	actor := shipment.ActorFor(h.user)
	for i := 0; i < 7; i++ {
		_, err := h.svc.CreateShipment(context.Background(), actor, shipment.Draft{Type: shipment.TypeSend, WaybillNumber: "INV-100", City: "Moscow"})
		require.NoError(t, err)
	}

	h.send(BtnSearch)
	r := h.send("INV-100")
	require.NotNil(t, r.Page)
	assert.Equal(t, 7, r.Page.Total)
	assert.Len(t, r.Page.Items, service.BotPageSize)
	assert.Contains(t, r.Text, "page 1 of 2")
	assert.False(t, h.engine.Active(context.Background(), h.user.TelegramID))

	r, err := h.engine.Paginate(context.Background(), Input{User: h.user}, 2)
	require.NoError(t, err)
	require.NotNil(t, r.Page)
	assert.Len(t, r.Page.Items, 2)

	h.send(BtnSearch)
	r = h.send(time.Now().UTC().Format("02.01.2006"))
	require.NotNil(t, r.Page)
	assert.Equal(t, 7, r.Page.Total)

	r = h.send(BtnWeek)
	require.NotNil(t, r.Page)
	assert.Equal(t, 7, r.Page.Total)

	h.command(CmdCancel)
	r, err = h.engine.Paginate(context.Background(), Input{User: h.user}, 2)
	require.NoError(t, err)
	assert.Nil(t, r.Page)
	assert.Contains(t, r.Text, "expired")
}

func TestSearchDateShapedWaybill(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateShipment(context.Background(), shipment.ActorFor(h.user), shipment.Draft{Type: shipment.TypeSend, WaybillNumber: "2024-05-01", City: "Moscow"})
	require.NoError(t, err)

	for _, query := range []string{"2024-05-01", "#2024-05-01", " # 2024-05-01 "} {
		h.send(BtnSearch)
		r := h.send(query)
		require.NotNil(t, r.Page, query)
		assert.Equal(t, 1, r.Page.Total, query)
		assert.Contains(t, r.Text, "Waybill 2024-05-01", query)
	}

	h.send(BtnSearch)
	r := h.send("01.05.2024")
	require.NotNil(t, r.Page)
	assert.Zero(t, r.Page.Total)
	assert.Contains(t, r.Text, "🗓 01.05.2024")

	h.send(BtnSearch)
	r = h.send("#01.05.2024")
	require.NotNil(t, r.Page)
	assert.Contains(t, r.Text, "Waybill 01.05.2024")

	h.send(BtnSearch)
	r = h.send("#")
	assert.Nil(t, r.Page)
	assert.Equal(t, StateSearchQuery, h.session().State)
}

func TestCommentEdit(t *testing.T) {
	h := newHarness(t)
	sh, err := h.svc.CreateShipment(context.Background(), shipment.ActorFor(h.user), shipment.Draft{Type: shipment.TypeSend, WaybillNumber: "W", City: "C"})
	require.NoError(t, err)

	stranger := h.register(200, "stranger")
	r, err := h.engine.BeginComment(context.Background(), Input{User: stranger}, sh.ID)
	require.NoError(t, err)
	assert.Contains(t, r.Text, "cannot change")

	r, err = h.engine.BeginComment(context.Background(), Input{User: h.user}, sh.ID)
	require.NoError(t, err)
	assert.Contains(t, r.Text, sh.ID)
	assert.Equal(t, StateCommentEdit, h.session().State)

	r = h.send("Leave at the gate")
	assert.Contains(t, r.Text, "saved")
	got, err := h.store.GetShipment(context.Background(), sh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "Leave at the gate", *got.Comment)

	_, err = h.engine.BeginComment(context.Background(), Input{User: h.user}, sh.ID)
	require.NoError(t, err)
	r = h.send("-")
	assert.Contains(t, r.Text, "cleared")
}

func TestCommentButtonKeepsDraftInProgress(t *testing.T) {
	h := newHarness(t)
	sh, err := h.svc.CreateShipment(context.Background(), shipment.ActorFor(h.user), shipment.Draft{Type: shipment.TypeSend, WaybillNumber: "W", City: "C"})
	require.NoError(t, err)

	for _, in := range []string{BtnNewShipment, "send", "W-2"} {
		h.send(in)
	}
	before := h.session()

	r, err := h.engine.BeginComment(context.Background(), Input{User: h.user}, sh.ID)
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Finish or cancel the current shipment first")
	assert.Equal(t, StateCitySelection, h.session().State)
	assert.Equal(t, before.Data, h.session().Data)

	h.command(CmdCancel)
	_, err = h.engine.BeginComment(context.Background(), Input{User: h.user}, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCommentEdit, h.session().State)
}

func TestSettingsToggle(t *testing.T) {
	h := newHarness(t)
	r := h.send(BtnSettings)
	assert.Contains(t, r.Text, "Notifications are on")
	r = h.send(BtnToggle)
	assert.Contains(t, r.Text, "Notifications are off")
	u, err := h.store.UserByTelegramID(context.Background(), h.user.TelegramID)
	require.NoError(t, err)
	assert.False(t, u.NotificationsEnabled)
	h.send(BtnBack)
	assert.False(t, h.engine.Active(context.Background(), h.user.TelegramID))
}

func TestAdminMenuIsGated(t *testing.T) {
	h := newHarness(t)
	r := h.send(BtnBroadcast)
	assert.Equal(t, "Choose an action from the menu.", r.Text)
	assert.NotContains(t, r.Keyboard, []string{BtnBroadcast})

	admin := h.register(900, "boss")
	r = h.sendAs(admin, Input{Text: BtnBroadcast})
	assert.Contains(t, r.Text, "broadcast")
	r = h.sendAs(admin, Input{Text: "Office closed"})
	assert.Contains(t, r.Text, "queued for 2 users")
	assert.Equal(t, 2, h.notes.broadcast)

	r = h.sendAs(admin, Input{Text: BtnStats})
	assert.Contains(t, r.Text, "Users: 2")
}

func TestParseWeight(t *testing.T) {
	for in, want := range map[string]float64{"12.5": 12.5, "12,5": 12.5, " 0 ": 0, "3": 3} {
		got, ok := parseWeight(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "-1", "inf", "NaN", "1.2.3", "0x1p3", "0x1.8p1", "1e3", "+5", ".5", "12.", "1_000"} {
		_, ok := parseWeight(in)
		assert.False(t, ok, in)
	}
}
