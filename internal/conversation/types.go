package conversation

import (
	"context"
	"time"

	"github.com/m3rciful/cargobot/core/telegram/state"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// Dialogue states.
const (
	StateMainMenu       state.State = "main_menu"
	StateTypeSelection  state.State = "type_selection"
	StateWaybillNumber  state.State = "waybill_number"
	StateCitySelection  state.State = "city_selection"
	StateWeightInput    state.State = "weight_input"
	StateCommentInput   state.State = "comment_input"
	StateWaybillPhoto   state.State = "waybill_photo"
	StateProductPhoto   state.State = "product_photo"
	StateSearchQuery    state.State = "search_query"
	StateCommentEdit    state.State = "comment_edit"
	StateSettings       state.State = "settings"
	StateAdminBroadcast state.State = "admin_broadcast"
)

// previous is the back edge of the creation flow.
var previous = map[state.State]state.State{
	StateTypeSelection: StateMainMenu,
	StateWaybillNumber: StateTypeSelection,
	StateCitySelection: StateWaybillNumber,
	StateWeightInput:   StateCitySelection,
	StateCommentInput:  StateWeightInput,
	StateWaybillPhoto:  StateCommentInput,
	StateProductPhoto:  StateWaybillPhoto,
}

// Button labels understood by the engine.
const (
	BtnNewShipment = "📦 New shipment"
	BtnWeek        = "📋 Last 7 days"
	BtnMonth       = "🗓 Last 30 days"
	BtnSearch      = "🔍 Search"
	BtnFavorites   = "⭐ Favorites"
	BtnSettings    = "⚙️ Settings"
	BtnStats       = "📊 Statistics"
	BtnAll         = "🗂 All shipments"
	BtnBroadcast   = "📢 Broadcast"
	BtnToggle      = "🔔 Toggle notifications"
	BtnOtherCity   = "🏙 Other city"
	BtnSkip        = "⏭ Skip"
	BtnRetry       = "🔁 Retry"
	BtnBack        = "⬅️ Back"
	BtnCancel      = "❌ Cancel"
)

// Commands the engine reacts to.
const (
	CmdStart  = "/start"
	CmdCancel = "/cancel"
)

// SkipToken is the typed form of every skip button.
const SkipToken = "-"

// WaybillPrefix forces a search text to be read as a waybill number.
const WaybillPrefix = "#"

// Draft is the session scratch. Fields after the current step may be stale
// after Back and are overwritten before commit.
type Draft struct {
	shipment.Draft
	// OtherCity is set while the free-text city sub-prompt is shown.
	OtherCity bool `json:"other_city,omitempty"`
	// Committing records that the product photo decision was made and the
	// commit is pending a retry.
	Committing bool `json:"committing,omitempty"`
	// Target is the shipment whose comment is being edited.
	Target string `json:"target,omitempty"`
	// Listing is the last query shown, reused for pagination.
	Listing *Listing `json:"listing,omitempty"`
}

// Listing is a stored list query.
type Listing struct {
	Days      int       `json:"days,omitempty"`
	Date      time.Time `json:"date,omitempty"`
	Waybill   string    `json:"waybill,omitempty"`
	Favorites bool      `json:"favorites,omitempty"`
	All       bool      `json:"all,omitempty"`
}

func (l Listing) query(page int) service.ListQuery {
	return service.ListQuery{
		Days:      l.Days,
		Date:      l.Date,
		Waybill:   l.Waybill,
		Favorites: l.Favorites,
		All:       l.All,
		Page:      page,
	}
}

// Photo references an inbound image by its transport file id.
type Photo struct {
	FileID   string
	UniqueID string
}

// PhotoKind selects the directory a photo is stored under.
type PhotoKind string

const (
	PhotoWaybill PhotoKind = "waybills"
	PhotoProduct PhotoKind = "products"
)

// PhotoStore persists an inbound image and returns its relative path.
type PhotoStore interface {
	SavePhoto(ctx context.Context, kind PhotoKind, p Photo) (string, error)
}

// Input is one inbound update reduced to what the dialogue needs.
type Input struct {
	User    shipment.User
	ChatID  int64
	Text    string
	Command string
	Photo   *Photo
}

// Reply is what the transport sends back. Keyboard rows replace the reply
// keyboard; RemoveKeyboard hides it.
type Reply struct {
	Text           string
	Keyboard       [][]string
	RemoveKeyboard bool
	// Page is set when the reply lists shipments.
	Page *service.Page
}

// Backend is the shipment service as seen by the dialogue.
type Backend interface {
	CreateShipment(ctx context.Context, actor shipment.Actor, d shipment.Draft) (shipment.Shipment, error)
	Shipment(ctx context.Context, actor shipment.Actor, id string) (shipment.Shipment, error)
	List(ctx context.Context, actor shipment.Actor, q service.ListQuery) (service.Page, error)
	SetComment(ctx context.Context, actor shipment.Actor, id, text string) (shipment.Shipment, error)
	ToggleNotifications(ctx context.Context, u shipment.User) (bool, error)
	Broadcast(ctx context.Context, actor shipment.Actor, text string) (int, error)
	Stats(ctx context.Context) (service.Stats, error)
	Location() *time.Location
}

var _ Backend = (*service.Service)(nil)
