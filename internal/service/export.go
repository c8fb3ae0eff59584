package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/m3rciful/cargobot/internal/shipment"
)

// ExportHeader is the first CSV row.
var ExportHeader = []string{"id", "owner_id", "type", "waybill_number", "city", "status", "comment", "timestamp"}

// ExportCSV writes every shipment, newest first, as UTF-8 comma separated rows.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	err := s.store.EachShipment(ctx, func(sh shipment.Shipment) error {
		comment := ""
		if sh.Comment != nil {
			comment = *sh.Comment
		}
		return cw.Write([]string{
			sh.ID,
			strconv.FormatInt(sh.OwnerID, 10),
			string(sh.Type),
			sh.WaybillNumber,
			sh.City,
			string(sh.Status),
			comment,
			sh.CreatedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return persistence(err)
	}
	cw.Flush()
	return cw.Error()
}
