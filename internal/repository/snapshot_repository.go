// internal/repository/snapshot_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"makino-adapter/internal/database"
	"makino-adapter/internal/model"
)

// compensationPlaces matches the NUMERIC scale of the compensation columns
const compensationPlaces = 5

// snapshotRepository implements SnapshotRepository on PostgreSQL
type snapshotRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB, logger *zap.Logger) SnapshotRepository {
	return &snapshotRepository{
		db:     db,
		logger: logger,
	}
}

// recordRow is a tool record in its column representation
type recordRow struct {
	Magazine             int64
	Pot                  int64
	Cutter               int64
	ToolNumber           string
	ToolID               string
	State                string
	GeometryUnit         string
	LengthCompensation   decimal.NullDecimal
	DiameterCompensation decimal.NullDecimal
	AtcSpeed             sql.NullString
	Life                 model.LifeColumn
}

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v).Round(compensationPlaces))
}

func floatPointer(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func toRow(r *model.ToolRecord) recordRow {
	row := recordRow{
		Magazine:             int64(r.Magazine),
		Pot:                  int64(r.Pot),
		Cutter:               int64(r.Cutter),
		ToolNumber:           r.ToolNumber,
		ToolID:               r.ToolID,
		State:                string(r.State),
		GeometryUnit:         string(r.GeometryUnit),
		LengthCompensation:   nullDecimal(r.LengthCompensation),
		DiameterCompensation: nullDecimal(r.DiameterCompensation),
		Life:                 model.LifeColumn(r.Life),
	}
	if r.AtcSpeed != nil {
		row.AtcSpeed = sql.NullString{String: string(*r.AtcSpeed), Valid: true}
	}
	return row
}

func (row *recordRow) toRecord() model.ToolRecord {
	r := model.ToolRecord{
		Magazine:             uint32(row.Magazine),
		Pot:                  int32(row.Pot),
		Cutter:               uint32(row.Cutter),
		ToolNumber:           row.ToolNumber,
		ToolID:               row.ToolID,
		State:                model.ToolState(row.State),
		GeometryUnit:         model.GeometryUnit(row.GeometryUnit),
		LengthCompensation:   floatPointer(row.LengthCompensation),
		DiameterCompensation: floatPointer(row.DiameterCompensation),
		Life:                 []model.LifeDescriptor(row.Life),
	}
	if r.Life == nil {
		r.Life = []model.LifeDescriptor{}
	}
	if row.AtcSpeed.Valid {
		speed := model.AtcSpeed(row.AtcSpeed.String)
		r.AtcSpeed = &speed
	}
	return r
}

// Save stores a snapshot and its records in one transaction
func (r *snapshotRepository) Save(ctx context.Context, machineID string, data *model.ToolLifeData) (uuid.UUID, error) {
	id := uuid.New()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tool_snapshots (
				id, machine_id, protocol_version, tool_count, missing_fields, acquired_at
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, id, machineID, data.ProtocolVersion, data.ToolCount(), pq.Array(missingOrEmpty(data.Missing)), data.AcquiredAt)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tool_records (
				snapshot_id, ordinal, magazine, pot, cutter, tool_number, tool_id, state,
				geometry_unit, length_compensation, diameter_compensation, atc_speed, life
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare record insert: %w", err)
		}
		defer stmt.Close()

		for i := range data.Tools {
			row := toRow(&data.Tools[i])
			if _, err := stmt.ExecContext(ctx,
				id, i, row.Magazine, row.Pot, row.Cutter, row.ToolNumber, row.ToolID, row.State,
				row.GeometryUnit, row.LengthCompensation, row.DiameterCompensation, row.AtcSpeed, row.Life,
			); err != nil {
				return fmt.Errorf("failed to insert tool record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save snapshot", zap.String("machine_id", machineID), zap.Error(err))
		return uuid.Nil, err
	}

	return id, nil
}

// Latest loads the newest snapshot of a machine
func (r *snapshotRepository) Latest(ctx context.Context, machineID string) (*model.ToolLifeData, error) {
	var (
		id      uuid.UUID
		missing pq.StringArray
	)
	data := &model.ToolLifeData{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, protocol_version, missing_fields, acquired_at
		FROM tool_snapshots
		WHERE machine_id = $1
		ORDER BY acquired_at DESC
		LIMIT 1
	`, machineID).Scan(&id, &data.ProtocolVersion, &missing, &data.AcquiredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if len(missing) > 0 {
		data.Missing = []string(missing)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT magazine, pot, cutter, tool_number, tool_id, state, geometry_unit,
			   length_compensation, diameter_compensation, atc_speed, life
		FROM tool_records
		WHERE snapshot_id = $1
		ORDER BY ordinal
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool records: %w", err)
	}
	defer rows.Close()

	data.Tools = []model.ToolRecord{}
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(
			&row.Magazine, &row.Pot, &row.Cutter, &row.ToolNumber, &row.ToolID, &row.State,
			&row.GeometryUnit, &row.LengthCompensation, &row.DiameterCompensation, &row.AtcSpeed, &row.Life,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tool record: %w", err)
		}
		data.Tools = append(data.Tools, row.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tool records: %w", err)
	}

	return data, nil
}

// List returns snapshot summaries, newest first, with the total count
func (r *snapshotRepository) List(ctx context.Context, machineID string, limit, offset int) ([]*SnapshotSummary, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tool_snapshots WHERE machine_id = $1`, machineID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count snapshots: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, protocol_version, tool_count, missing_fields, acquired_at
		FROM tool_snapshots
		WHERE machine_id = $1
		ORDER BY acquired_at DESC
		LIMIT $2 OFFSET $3
	`, machineID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	summaries := []*SnapshotSummary{}
	for rows.Next() {
		var (
			s       SnapshotSummary
			missing pq.StringArray
		)
		if err := rows.Scan(&s.ID, &s.ProtocolVersion, &s.ToolCount, &missing, &s.AcquiredAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Missing = missingOrEmpty(missing)
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshots: %w", err)
	}

	return summaries, total, nil
}

// Prune deletes all but the newest keep snapshots of a machine
func (r *snapshotRepository) Prune(ctx context.Context, machineID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM tool_snapshots
		WHERE machine_id = $1 AND id NOT IN (
			SELECT id FROM tool_snapshots
			WHERE machine_id = $1
			ORDER BY acquired_at DESC
			LIMIT $2
		)
	`, machineID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func missingOrEmpty(missing []string) []string {
	if missing == nil {
		return []string{}
	}
	return missing
}
