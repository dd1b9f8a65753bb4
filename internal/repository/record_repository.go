package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"notekeeper/internal/model"
)

var (
	// ErrAlreadyExists is the normal negative outcome of Save when the
	// (owner, body, tag) triple is already stored.
	ErrAlreadyExists = errors.New("record already exists")
	ErrNotFound      = errors.New("record not found")
	ErrUnknownField  = errors.New("unknown record field")
)

// Field selects the single column UpdateField may touch. Anything outside
// the three variants fails closed.
type Field int

const (
	FieldName Field = iota + 1
	FieldBody
	FieldTag
)

func parseField(name string) (Field, error) {
	switch name {
	case "name":
		return FieldName, nil
	case "body":
		return FieldBody, nil
	case "tag":
		return FieldTag, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

func (f Field) column() (string, bool) {
	switch f {
	case FieldName:
		return "name", true
	case FieldBody:
		return "body", true
	case FieldTag:
		return "tag", true
	default:
		return "", false
	}
}

type ExportedRecord struct {
	Body      string    `json:"body"`
	Tag       string    `json:"tag"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Save persists a record and returns its id. A zero createdAt takes the
// current time; import passes the original timestamps through.
func (r *RecordRepository) Save(ctx context.Context, ownerID int64, body, tag, name string, createdAt time.Time) (uint64, error) {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	record := model.Record{
		OwnerID:   ownerID,
		Body:      body,
		BodySHA:   model.HashBody(body),
		Name:      name,
		Tag:       tag,
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrAlreadyExists
		}
		return 0, fmt.Errorf("create record failed: %w", err)
	}
	return record.ID, nil
}

func (r *RecordRepository) List(ctx context.Context, ownerID int64) ([]model.Record, error) {
	var records []model.Record
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list records failed: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) GetByID(ctx context.Context, ownerID int64, id uint64) (*model.Record, error) {
	var record model.Record
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query record by id failed: %w", err)
	}
	return &record, nil
}

// ListByTag matches the tag exactly; the no_tag sentinel therefore selects
// untagged records and nothing else.
func (r *RecordRepository) ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error) {
	var records []model.Record
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND tag = ?", ownerID, tag).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list records by tag failed: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) TagCounts(ctx context.Context, ownerID int64) (map[string]int64, error) {
	type tagCount struct {
		Tag   string
		Count int64
	}
	var rows []tagCount
	err := r.db.WithContext(ctx).
		Model(&model.Record{}).
		Select("tag, COUNT(*) AS count").
		Where("owner_id = ?", ownerID).
		Group("tag").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate tags failed: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Tag] = row.Count
	}
	return counts, nil
}

func (r *RecordRepository) UpdateField(ctx context.Context, ownerID int64, id uint64, field Field, value string) error {
	column, ok := field.column()
	if !ok {
		return ErrUnknownField
	}

	updates := map[string]interface{}{column: value}
	if field == FieldBody {
		updates["body_sha"] = model.HashBody(value)
	}

	res := r.db.WithContext(ctx).
		Model(&model.Record{}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("update record field failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RecordRepository) DeleteByID(ctx context.Context, ownerID int64, id uint64) error {
	res := r.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&model.Record{})
	if res.Error != nil {
		return fmt.Errorf("delete record failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll wipes the owner's records. When the table ends up empty the
// auto-increment counter is reset so ids after a wipe start from 1 again.
func (r *RecordRepository) DeleteAll(ctx context.Context, ownerID int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(&model.Record{}).Error; err != nil {
			return fmt.Errorf("delete records failed: %w", err)
		}

		var remaining int64
		if err := tx.Model(&model.Record{}).Count(&remaining).Error; err != nil {
			return fmt.Errorf("count remaining records failed: %w", err)
		}
		if remaining == 0 {
			if err := tx.Exec("ALTER TABLE records AUTO_INCREMENT = 1").Error; err != nil {
				return fmt.Errorf("reset auto increment failed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (r *RecordRepository) ExportAll(ctx context.Context, ownerID int64) ([]ExportedRecord, error) {
	var records []model.Record
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("export records failed: %w", err)
	}

	exported := make([]ExportedRecord, 0, len(records))
	for _, record := range records {
		exported = append(exported, ExportedRecord{
			Body:      record.Body,
			Tag:       record.Tag,
			Name:      record.Name,
			CreatedAt: record.CreatedAt,
		})
	}
	return exported, nil
}

// ImportAll replays exported tuples through Save, keeping the original
// timestamps. Duplicates already in the store are skipped, not errors.
func (r *RecordRepository) ImportAll(ctx context.Context, ownerID int64, tuples []ExportedRecord) (int, error) {
	imported := 0
	for _, tuple := range tuples {
		_, err := r.Save(ctx, ownerID, tuple.Body, tuple.Tag, tuple.Name, tuple.CreatedAt)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
