package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cargobot/internal/shipment"
)

const shipmentColumns = `id, owner_id, operation_type, waybill_number, city, weight, comment, status, waybill_photo, product_photo, created_at`

// Filter narrows a shipment listing. Zero fields are ignored.
type Filter struct {
	OwnerID int64
	// Since keeps shipments created at or after the instant.
	Since time.Time
	// From and To bound created_at as [From, To).
	From    time.Time
	To      time.Time
	Waybill string
	// Search matches waybill, city or id case-insensitively.
	Search string
	Status shipment.Status
	Type   shipment.OperationType
	// FavoriteOf keeps shipments favorited by the user.
	FavoriteOf int64
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	if f.OwnerID != 0 {
		add("s.owner_id = ?", f.OwnerID)
	}
	if !f.Since.IsZero() {
		add("s.created_at >= ?", f.Since.UTC())
	}
	if !f.From.IsZero() {
		add("s.created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("s.created_at < ?", f.To.UTC())
	}
	if w := strings.TrimSpace(f.Waybill); w != "" {
		add("s.waybill_number = ?", w)
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		like := "%" + q + "%"
		add("(LOWER(s.waybill_number) LIKE ? OR LOWER(s.city) LIKE ? OR LOWER(s.id) LIKE ?)", like, like, like)
	}
	if f.Status != "" {
		add("s.status = ?", f.Status)
	}
	if f.Type != "" {
		add("s.operation_type = ?", f.Type)
	}
	if f.FavoriteOf != 0 {
		add("EXISTS (SELECT 1 FROM favorites f WHERE f.shipment_id = s.id AND f.user_id = ?)", f.FavoriteOf)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CreateShipment inserts s. A colliding id yields ErrDuplicateID.
func (s *Store) CreateShipment(ctx context.Context, sh shipment.Shipment) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES (:id, :owner_id, :operation_type, :waybill_number, :city, :weight, :comment, :status, :waybill_photo, :product_photo, :created_at)`,
		sh)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("shipment %s: %w", sh.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// GetShipment loads one shipment.
func (s *Store) GetShipment(ctx context.Context, id string) (shipment.Shipment, error) {
	var sh shipment.Shipment
	err := s.db.GetContext(ctx, &sh, s.q(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`), id)
	if err != nil {
		return shipment.Shipment{}, notFound(err, "shipment "+id)
	}
	return sh, nil
}

// ListShipments returns one page of matches, newest first, and the total count.
func (s *Store) ListShipments(ctx context.Context, f Filter, limit, offset int) ([]shipment.Shipment, int, error) {
	where, args := f.where()

	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM shipments s`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count shipments: %w", err)
	}

	query := `SELECT ` + prefixed("s", shipmentColumns) + ` FROM shipments s` + where +
		` ORDER BY s.created_at DESC, s.id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	var out []shipment.Shipment
	if err := s.db.SelectContext(ctx, &out, s.q(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list shipments: %w", err)
	}
	return out, total, nil
}

// EachShipment streams every shipment, newest first.
func (s *Store) EachShipment(ctx context.Context, fn func(shipment.Shipment) error) error {
	rows, err := s.db.QueryxContext(ctx, `SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sh shipment.Shipment
		if err := rows.StructScan(&sh); err != nil {
			return fmt.Errorf("scan shipment: %w", err)
		}
		if err := fn(sh); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AuditEntry is one row of the status audit trail.
type AuditEntry struct {
	ID         int64           `db:"id" json:"id"`
	ShipmentID string          `db:"shipment_id" json:"shipment_id"`
	ActorID    *int64          `db:"actor_id" json:"actor_id,omitempty"`
	Actor      string          `db:"actor" json:"actor"`
	OldStatus  shipment.Status `db:"old_status" json:"old_status"`
	NewStatus  shipment.Status `db:"new_status" json:"new_status"`
	ChangedAt  time.Time       `db:"changed_at" json:"changed_at"`
}

// TransitionCheck validates the change against the locked current row.
type TransitionCheck func(current shipment.Shipment) error

// UpdateStatus re-reads the shipment inside a transaction, runs check, then
// writes the new status and one audit row. It returns the updated shipment
// and the previous status.
func (s *Store) UpdateStatus(ctx context.Context, id string, to shipment.Status, actor shipment.Actor, check TransitionCheck) (shipment.Shipment, shipment.Status, error) {
	var (
		updated shipment.Shipment
		from    shipment.Status
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var cur shipment.Shipment
		err := tx.GetContext(ctx, &cur, tx.Rebind(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`+s.forUpdate()), id)
		if err != nil {
			return notFound(err, "shipment "+id)
		}
		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE shipments SET status = ? WHERE id = ?`), to, id); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		var actorID *int64
		if actor.UserID != 0 {
			v := actor.UserID
			actorID = &v
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO status_audit (shipment_id, actor_id, actor, old_status, new_status, changed_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			id, actorID, actor.Label(), cur.Status, to, s.now())
		if err != nil {
			return fmt.Errorf("insert audit: %w", err)
		}
		from = cur.Status
		updated = cur
		updated.Status = to
		return nil
	})
	if err != nil {
		return shipment.Shipment{}, "", err
	}
	return updated, from, nil
}

// Audit lists the status history of a shipment, oldest first.
func (s *Store) Audit(ctx context.Context, shipmentID string) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT id, shipment_id, actor_id, actor, old_status, new_status, changed_at
		FROM status_audit WHERE shipment_id = ? ORDER BY changed_at, id`), shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return out, nil
}

// SetComment replaces the comment; nil clears it.
func (s *Store) SetComment(ctx context.Context, id string, comment *string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE shipments SET comment = ? WHERE id = ?`), comment, id)
	if err != nil {
		return fmt.Errorf("set comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shipment %s: %w", id, shipment.ErrNotFound)
	}
	return nil
}

// ToggleFavorite flips the (user, shipment) pair and reports the new state.
func (s *Store) ToggleFavorite(ctx context.Context, userID int64, shipmentID string) (bool, error) {
	var favorite bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM favorites WHERE user_id = ? AND shipment_id = ?`), userID, shipmentID)
		if err != nil {
			return fmt.Errorf("delete favorite: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO favorites (user_id, shipment_id, created_at) VALUES (?, ?, ?)`),
			userID, shipmentID, s.now())
		if err != nil {
			return fmt.Errorf("insert favorite: %w", err)
		}
		favorite = true
		return nil
	})
	return favorite, err
}

// IsFavorite reports whether the user favorited the shipment.
func (s *Store) IsFavorite(ctx context.Context, userID int64, shipmentID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM favorites WHERE user_id = ? AND shipment_id = ?`), userID, shipmentID)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return n > 0, nil
}

// StatusCounts returns the number of shipments per status.
func (s *Store) StatusCounts(ctx context.Context) (map[shipment.Status]int, error) {
	var rows []struct {
		Status shipment.Status `db:"status"`
		N      int             `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM shipments GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	out := make(map[shipment.Status]int, len(shipment.Statuses))
	for _, st := range shipment.Statuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
