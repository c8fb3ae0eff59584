package bot

import (
	"bytes"
	"fmt"
	"time"

	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/internal/conversation"
	"github.com/m3rciful/cargobot/internal/shipment"

	tele "gopkg.in/telebot.v4"
)

const adminHelp = "/stats - statistics\n/export - CSV export\n/broadcast &lt;text&gt; - message every subscribed user"

func (h *Handlers) onAdmin(c tele.Context) error {
	st, err := h.svc.Stats(helpers.BuildContext(c))
	if err != nil {
		return err
	}
	return helpers.SendHTML(c, "🛠 Admin panel\n\n"+conversation.StatsText(st)+"\n\n"+adminHelp)
}

func (h *Handlers) onStats(c tele.Context) error {
	st, err := h.svc.Stats(helpers.BuildContext(c))
	if err != nil {
		return err
	}
	return helpers.SendHTML(c, conversation.StatsText(st))
}

// onExport sends every shipment as a CSV document.
func (h *Handlers) onExport(c tele.Context) error {
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(helpers.BuildContext(c), &buf); err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromReader(&buf),
		FileName: "shipments-" + time.Now().UTC().Format("20060102-1504") + ".csv",
		MIME:     "text/csv",
		Caption:  "📄 Shipments export",
	}
	return helpers.Do(c, "export", func() error { return c.Send(doc) })
}

// onBroadcast sends the command payload at once, or opens the broadcast
// prompt when there is none.
func (h *Handlers) onBroadcast(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	text := ""
	if msg := c.Message(); msg != nil {
		text = msg.Payload
	}
	if text == "" {
		return h.dialogueButton(conversation.BtnBroadcast)(c)
	}
	n, err := h.svc.Broadcast(helpers.BuildContext(c), shipment.ActorFor(u), text)
	if err != nil {
		return helpers.SendHTML(c, errorText(err))
	}
	return helpers.SendHTML(c, fmt.Sprintf("📢 Broadcast queued for %s users.", format.Bold(fmt.Sprint(n))))
}
