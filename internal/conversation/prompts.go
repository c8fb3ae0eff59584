package conversation

import (
	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/internal/shipment"
)

var navRow = []string{BtnBack, BtnCancel}

func (e *Engine) mainMenu(t *turn, text string) Reply {
	rows := [][]string{
		{BtnNewShipment},
		{BtnWeek, BtnMonth},
		{BtnSearch, BtnFavorites},
		{BtnSettings},
	}
	if t.actor.Privileged() {
		rows = append(rows, []string{BtnStats, BtnAll}, []string{BtnBroadcast})
	}
	return Reply{Text: text, Keyboard: rows}
}

// prompt renders the question of the current state, prefixed by a
// corrective or confirmation line when given.
func (e *Engine) prompt(t *turn, prefix string) Reply {
	r := e.question(t)
	if prefix != "" {
		r.Text = prefix + "\n\n" + r.Text
	}
	return r
}

func (e *Engine) question(t *turn) Reply {
	d := t.session.Data
	switch t.session.State {
	case StateTypeSelection:
		rows := make([][]string, 0, len(shipment.OperationTypes)+1)
		for _, ot := range shipment.OperationTypes {
			rows = append(rows, []string{ot.Label()})
		}
		return Reply{Text: "Choose the operation type:", Keyboard: append(rows, navRow)}
	case StateWaybillNumber:
		return Reply{Text: "Enter the waybill number:", Keyboard: [][]string{navRow}}
	case StateCitySelection:
		if d.OtherCity {
			return Reply{Text: "Type the city name:", Keyboard: [][]string{navRow}}
		}
		rows := make([][]string, 0, len(e.cities)/2+3)
		for i := 0; i < len(e.cities); i += 2 {
			rows = append(rows, e.cities[i:min(i+2, len(e.cities))])
		}
		rows = append(rows, []string{BtnOtherCity}, navRow)
		return Reply{Text: "Choose the city:", Keyboard: rows}
	case StateWeightInput:
		return Reply{
			Text:     "Enter the weight in kg (for example 12.5), or " + format.Code(SkipToken) + " if unknown:",
			Keyboard: [][]string{{BtnSkip}, navRow},
		}
	case StateCommentInput:
		return Reply{
			Text:     "Add a comment, or " + format.Code(SkipToken) + " to leave it empty:",
			Keyboard: [][]string{{BtnSkip}, navRow},
		}
	case StateWaybillPhoto:
		return Reply{Text: "Send a photo of the waybill, or press Skip:", Keyboard: [][]string{{BtnSkip}, navRow}}
	case StateProductPhoto:
		if d.Committing {
			return Reply{Text: "Saving failed. Press Retry to try again.", Keyboard: [][]string{{BtnRetry}, {BtnCancel}}}
		}
		return Reply{Text: "Send a photo of the goods, or press Skip:", Keyboard: [][]string{{BtnSkip}, navRow}}
	case StateSearchQuery:
		return Reply{
			Text:     "Send a waybill number or a date (DD.MM.YYYY). Start with " + format.Code(WaybillPrefix) + " to search waybill numbers only:",
			Keyboard: [][]string{{BtnCancel}},
		}
	case StateCommentEdit:
		return Reply{
			Text:     "Send the new comment for " + format.Code(d.Target) + ", or " + format.Code(SkipToken) + " to clear it:",
			Keyboard: [][]string{{BtnCancel}},
		}
	case StateAdminBroadcast:
		return Reply{Text: "Send the text to broadcast to every subscribed user:", Keyboard: [][]string{{BtnCancel}}}
	}
	return e.mainMenu(t, "Choose an action.")
}

func (e *Engine) settings(t *turn, enabled bool, prefix string) Reply {
	status := "🔕 Notifications are off."
	if enabled {
		status = "🔔 Notifications are on."
	}
	text := "⚙️ Settings\n\n" + status
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return Reply{Text: text, Keyboard: [][]string{{BtnToggle}, {BtnBack}}}
}
