package conversation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/internal/shipment"
)

func (e *Engine) startCreate(t *turn) Reply {
	t.session.Data = Draft{}
	t.move(StateTypeSelection)
	return e.prompt(t, "")
}

func (e *Engine) onType(t *turn, text string) Reply {
	if text == BtnBack {
		return e.back(t)
	}
	ot, err := shipment.ParseOperationType(text)
	if err != nil {
		return e.prompt(t, "⚠️ Please choose one of the buttons.")
	}
	t.session.Data.Type = ot
	t.move(StateWaybillNumber)
	return e.prompt(t, "")
}

func (e *Engine) onWaybill(t *turn, text string) Reply {
	if text == BtnBack {
		return e.back(t)
	}
	if t.in.Photo != nil {
		return e.prompt(t, "⚠️ The waybill number must be text.")
	}
	number, err := shipment.CleanText("waybill_number", text)
	if err != nil {
		return e.prompt(t, textError(err, "waybill number"))
	}
	t.session.Data.WaybillNumber = number
	t.move(StateCitySelection)
	return e.prompt(t, "")
}

func (e *Engine) onCity(t *turn, text string) Reply {
	d := &t.session.Data
	switch {
	case text == BtnBack && d.OtherCity:
		d.OtherCity = false
		return e.prompt(t, "")
	case text == BtnBack:
		return e.back(t)
	case text == BtnOtherCity:
		d.OtherCity = true
		return e.prompt(t, "")
	case t.in.Photo != nil:
		return e.prompt(t, "⚠️ The city must be text.")
	}
	city, err := shipment.CleanText("city", text)
	if err != nil {
		return e.prompt(t, textError(err, "city"))
	}
	d.City = city
	d.OtherCity = false
	t.move(StateWeightInput)
	return e.prompt(t, "")
}

func (e *Engine) onWeight(t *turn, text string) Reply {
	if text == BtnBack {
		return e.back(t)
	}
	if isSkip(text) {
		t.session.Data.Weight = nil
		t.move(StateCommentInput)
		return e.prompt(t, "")
	}
	kg, ok := parseWeight(text)
	if !ok {
		return e.prompt(t, "⚠️ Weight must be a non-negative number, for example 12.5.")
	}
	t.session.Data.Weight = nil
	if kg > 0 {
		t.session.Data.Weight = &kg
	}
	t.move(StateCommentInput)
	return e.prompt(t, "")
}

// weightRe admits plain decimals only; ParseFloat alone would take hex
// floats and exponents.
var weightRe = regexp.MustCompile(`^[0-9]+([.,][0-9]+)?$`)

// parseWeight accepts "12.5" and "12,5".
func parseWeight(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if !weightRe.MatchString(s) {
		return 0, false
	}
	kg, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsInf(kg, 0) {
		return 0, false
	}
	return kg, true
}

func (e *Engine) onComment(t *turn, text string) Reply {
	if text == BtnBack {
		return e.back(t)
	}
	if t.in.Photo != nil || text == "" {
		return e.prompt(t, "⚠️ Send the comment as text or "+format.Code(SkipToken)+".")
	}
	t.session.Data.Comment = nil
	if !isSkip(text) {
		t.session.Data.Comment = shipment.StringPtr(text)
	}
	t.move(StateWaybillPhoto)
	return e.prompt(t, "")
}

func (e *Engine) onWaybillPhoto(ctx context.Context, t *turn, text string) Reply {
	if text == BtnBack {
		return e.back(t)
	}
	path, ok, retry := e.photoStep(ctx, t, PhotoWaybill, text)
	if !ok {
		return retry
	}
	t.session.Data.WaybillPhoto = path
	t.move(StateProductPhoto)
	return e.prompt(t, "")
}

func (e *Engine) onProductPhoto(ctx context.Context, t *turn, text string) Reply {
	d := &t.session.Data
	if text == BtnBack {
		return e.back(t)
	}
	if d.Committing {
		if text != BtnRetry {
			return e.prompt(t, "")
		}
		return e.commit(ctx, t)
	}
	path, ok, retry := e.photoStep(ctx, t, PhotoProduct, text)
	if !ok {
		return retry
	}
	d.ProductPhoto = path
	d.Committing = true
	return e.commit(ctx, t)
}

// photoStep resolves a photo decision: an attachment is stored, a skip
// token yields nil. ok is false when the step has to be asked again.
func (e *Engine) photoStep(ctx context.Context, t *turn, kind PhotoKind, text string) (*string, bool, Reply) {
	if t.in.Photo == nil {
		if isSkip(text) {
			return nil, true, Reply{}
		}
		return nil, false, e.prompt(t, "⚠️ Send a photo or press Skip.")
	}
	if e.photos == nil {
		return nil, false, e.prompt(t, "⚠️ Photos are not accepted right now, press Skip.")
	}
	path, err := e.photos.SavePhoto(ctx, kind, *t.in.Photo)
	if err != nil {
		logger.Sessions.LogAttrs(ctx, slog.LevelError, "photo save failed",
			slog.String("event", "dialogue.photo"),
			slog.String("status", "fail"),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		return nil, false, e.prompt(t, "⚠️ Could not save the photo, please send it again.")
	}
	return &path, true, Reply{}
}

// commit persists the draft. On failure the draft stays at the product
// photo step so the user can retry.
func (e *Engine) commit(ctx context.Context, t *turn) Reply {
	sh, err := e.backend.CreateShipment(ctx, t.actor, t.session.Data.Draft)
	if err != nil {
		logger.Sessions.LogAttrs(ctx, slog.LevelError, "shipment commit failed",
			slog.String("event", "dialogue.commit"),
			slog.String("status", "fail"),
			slog.String("err_code", shipment.Code(err)),
			slog.String("err", err.Error()),
		)
		var ve *shipment.ValidationError
		if errors.As(err, &ve) {
			return e.prompt(t, "⚠️ The shipment is incomplete ("+format.Escape(ve.Field)+"). Press Cancel and start again.")
		}
		return e.prompt(t, "⚠️ Could not save the shipment.")
	}
	t.reset()
	return e.mainMenu(t, "✅ Shipment "+format.Code(sh.ID)+" saved. Waybill "+format.Escape(sh.WaybillNumber)+".")
}

func isSkip(text string) bool {
	return text == SkipToken || text == BtnSkip
}

func textError(err error, what string) string {
	var ve *shipment.ValidationError
	if errors.As(err, &ve) && ve.Reason == "too long" {
		return "⚠️ The " + what + " is too long, use at most " + strconv.Itoa(shipment.MaxTextLen) + " characters."
	}
	return "⚠️ The " + what + " must not be empty."
}
