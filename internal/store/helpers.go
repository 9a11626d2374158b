package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/util"
)

// Queries shared by the SQL backends. They take no parameters, so the
// placeholder style of each driver does not matter.
const (
	selectFarmersSQL          = `SELECT id, phone, name, location, farm_size, crops, livestock FROM farmers ORDER BY id`
	selectCropReportsSQL      = `SELECT id, phone, crop, quantity, date FROM crop_reports ORDER BY id`
	selectLivestockReportsSQL = `SELECT id, phone, animal, count, date FROM livestock_reports ORDER BY id`
	selectFarmerPhonesSQL     = `SELECT DISTINCT phone FROM farmers WHERE phone IS NOT NULL AND phone <> '' ORDER BY phone`
	selectOutboxSQL           = `SELECT id, recipient, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at FROM outbox_messages ORDER BY created_at ASC`
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanFarmers(rows *sql.Rows) ([]models.FarmerRecord, error) {
	var farmers []models.FarmerRecord
	for rows.Next() {
		var f models.FarmerRecord
		var phone, name, location, farmSize, crops, livestock sql.NullString
		if err := rows.Scan(&f.ID, &phone, &name, &location, &farmSize, &crops, &livestock); err != nil {
			return nil, fmt.Errorf("failed to scan farmer row: %w", err)
		}
		f.Phone, f.Name, f.Location = phone.String, name.String, location.String
		f.FarmSize, f.Crops, f.Livestock = farmSize.String, crops.String, livestock.String
		farmers = append(farmers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate farmer rows: %w", err)
	}
	return farmers, nil
}

func scanCropReports(rows *sql.Rows) ([]models.CropReport, error) {
	var reports []models.CropReport
	for rows.Next() {
		var r models.CropReport
		var phone, crop, quantity sql.NullString
		var date sql.NullTime
		if err := rows.Scan(&r.ID, &phone, &crop, &quantity, &date); err != nil {
			return nil, fmt.Errorf("failed to scan crop report row: %w", err)
		}
		r.Phone, r.Crop, r.Quantity = phone.String, crop.String, quantity.String
		if date.Valid {
			r.Date = date.Time
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate crop report rows: %w", err)
	}
	return reports, nil
}

func scanLivestockReports(rows *sql.Rows) ([]models.LivestockReport, error) {
	var reports []models.LivestockReport
	for rows.Next() {
		var r models.LivestockReport
		var phone, animal, count sql.NullString
		var date sql.NullTime
		if err := rows.Scan(&r.ID, &phone, &animal, &count, &date); err != nil {
			return nil, fmt.Errorf("failed to scan livestock report row: %w", err)
		}
		r.Phone, r.Animal, r.Count = phone.String, animal.String, count.String
		if date.Valid {
			r.Date = date.Time
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate livestock report rows: %w", err)
	}
	return reports, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

func scanOutboxMessages(rows *sql.Rows) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox iteration failed: %w", err)
	}
	return msgs, nil
}

// outboxEnqueueSQL holds the dialect-specific statements used by enqueueOutboxTx.
// insert must do nothing when an active message already holds the dedupe key;
// lookup finds that message.
type outboxEnqueueSQL struct {
	insert string
	lookup string
}

// enqueueOutboxTx queues every item inside one transaction and returns their IDs.
func enqueueOutboxTx(db *sql.DB, q outboxEnqueueSQL, items []OutboxEnqueue) ([]string, error) {
	if err := validateOutboxBatch(items); err != nil {
		return nil, err
	}
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin outbox batch failed: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		id := util.GenerateOutboxID()
		res, err := tx.Exec(q.insert, id, it.Recipient, it.Kind, it.PayloadJSON, nilIfEmpty(it.DedupeKey), now, now)
		if err != nil {
			return nil, fmt.Errorf("enqueue outbox message for %s failed: %w", it.Recipient, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			if err := tx.QueryRow(q.lookup, it.DedupeKey).Scan(&id); err != nil {
				return nil, fmt.Errorf("outbox dedupe lookup for %s failed: %w", it.DedupeKey, err)
			}
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox batch failed: %w", err)
	}
	return ids, nil
}
