package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"notekeeper/internal/model"
	"notekeeper/internal/repository"
)

const (
	MaxBodyLength = 4096
	MaxNameLength = 1000
	MaxTagLength  = 100
)

var (
	ErrAlreadyExists = errors.New("record already exists")
	ErrNotFound      = errors.New("record not found")
	// ErrStorage hides storage details from the user-facing layer; the
	// underlying cause is logged where it happens.
	ErrStorage = errors.New("storage is temporarily unavailable")
)

// ValidationError carries the corrective message shown to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// RecordStore is the persistence contract the service speaks.
type RecordStore interface {
	Save(ctx context.Context, ownerID int64, body, tag, name string, createdAt time.Time) (uint64, error)
	List(ctx context.Context, ownerID int64) ([]model.Record, error)
	GetByID(ctx context.Context, ownerID int64, id uint64) (*model.Record, error)
	ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error)
	TagCounts(ctx context.Context, ownerID int64) (map[string]int64, error)
	UpdateField(ctx context.Context, ownerID int64, id uint64, field repository.Field, value string) error
	DeleteByID(ctx context.Context, ownerID int64, id uint64) error
	DeleteAll(ctx context.Context, ownerID int64) error
	ExportAll(ctx context.Context, ownerID int64) ([]repository.ExportedRecord, error)
	ImportAll(ctx context.Context, ownerID int64, tuples []repository.ExportedRecord) (int, error)
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

type Stats struct {
	Total        int64     `json:"total"`
	DistinctTags int64     `json:"distinct_tags"`
	MostPopular  *TagCount `json:"most_popular,omitempty"`
}

type RecordService struct {
	store RecordStore
}

func NewRecordService(store RecordStore) *RecordService {
	return &RecordService{store: store}
}

// ValidateBody trims and checks note text, returning the value to store.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", validationErrorf("text is empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", validationErrorf("text is too long (maximum %d characters)", MaxBodyLength)
	}
	return body, nil
}

func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", validationErrorf("name is too long (maximum %d characters)", MaxNameLength)
	}
	return name, nil
}

func ValidateTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", validationErrorf("tag is empty")
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", validationErrorf("tag is too long (maximum %d characters)", MaxTagLength)
	}
	return tag, nil
}

func (s *RecordService) Save(ctx context.Context, ownerID int64, body, tag, name string) (uint64, error) {
	body, err := ValidateBody(body)
	if err != nil {
		return 0, err
	}
	if tag == "" {
		tag = model.NoTag
	}
	tag, err = ValidateTag(tag)
	if err != nil {
		return 0, err
	}
	name, err = ValidateName(name)
	if err != nil {
		return 0, err
	}

	id, err := s.store.Save(ctx, ownerID, body, tag, name, time.Time{})
	if errors.Is(err, repository.ErrAlreadyExists) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		log.Printf("save record failed (owner=%d): %v", ownerID, err)
		return 0, ErrStorage
	}
	return id, nil
}

func (s *RecordService) List(ctx context.Context, ownerID int64) ([]model.Record, error) {
	records, err := s.store.List(ctx, ownerID)
	if err != nil {
		log.Printf("list records failed (owner=%d): %v", ownerID, err)
		return nil, ErrStorage
	}
	return records, nil
}

func (s *RecordService) Get(ctx context.Context, ownerID int64, id uint64) (*model.Record, error) {
	record, err := s.store.GetByID(ctx, ownerID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Printf("get record failed (owner=%d id=%d): %v", ownerID, id, err)
		return nil, ErrStorage
	}
	return record, nil
}

func (s *RecordService) ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error) {
	records, err := s.store.ListByTag(ctx, ownerID, tag)
	if err != nil {
		log.Printf("list records by tag failed (owner=%d tag=%q): %v", ownerID, tag, err)
		return nil, ErrStorage
	}
	return records, nil
}

func (s *RecordService) TagCounts(ctx context.Context, ownerID int64) (map[string]int64, error) {
	counts, err := s.store.TagCounts(ctx, ownerID)
	if err != nil {
		log.Printf("tag counts failed (owner=%d): %v", ownerID, err)
		return nil, ErrStorage
	}
	return counts, nil
}

func (s *RecordService) UpdateField(ctx context.Context, ownerID int64, id uint64, field repository.Field, value string) error {
	var err error
	switch field {
	case repository.FieldName:
		value, err = ValidateName(value)
	case repository.FieldBody:
		value, err = ValidateBody(value)
	case repository.FieldTag:
		value, err = ValidateTag(value)
	default:
		return repository.ErrUnknownField
	}
	if err != nil {
		return err
	}

	err = s.store.UpdateField(ctx, ownerID, id, field, value)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrAlreadyExists):
		return ErrAlreadyExists
	case errors.Is(err, repository.ErrUnknownField):
		return err
	case err != nil:
		log.Printf("update record field failed (owner=%d id=%d): %v", ownerID, id, err)
		return ErrStorage
	}
	return nil
}

func (s *RecordService) Delete(ctx context.Context, ownerID int64, id uint64) error {
	err := s.store.DeleteByID(ctx, ownerID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		log.Printf("delete record failed (owner=%d id=%d): %v", ownerID, id, err)
		return ErrStorage
	}
	return nil
}

func (s *RecordService) DeleteAll(ctx context.Context, ownerID int64) error {
	if err := s.store.DeleteAll(ctx, ownerID); err != nil {
		log.Printf("delete all records failed (owner=%d): %v", ownerID, err)
		return ErrStorage
	}
	return nil
}

func (s *RecordService) Export(ctx context.Context, ownerID int64) ([]repository.ExportedRecord, error) {
	exported, err := s.store.ExportAll(ctx, ownerID)
	if err != nil {
		log.Printf("export records failed (owner=%d): %v", ownerID, err)
		return nil, ErrStorage
	}
	return exported, nil
}

func (s *RecordService) Import(ctx context.Context, ownerID int64, tuples []repository.ExportedRecord) (int, error) {
	imported, err := s.store.ImportAll(ctx, ownerID, tuples)
	if err != nil {
		log.Printf("import records failed (owner=%d): %v", ownerID, err)
		return imported, ErrStorage
	}
	return imported, nil
}

// Stats derives the aggregate numbers from tag counts. The most popular tag
// excludes the no_tag sentinel; ties break toward the lexically smaller tag
// so the result is deterministic.
func (s *RecordService) Stats(ctx context.Context, ownerID int64) (Stats, error) {
	counts, err := s.TagCounts(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(counts), nil
}

func computeStats(counts map[string]int64) Stats {
	var stats Stats

	tags := make([]string, 0, len(counts))
	for tag, count := range counts {
		stats.Total += count
		if tag != model.NoTag {
			stats.DistinctTags++
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if stats.MostPopular == nil || counts[tag] > stats.MostPopular.Count {
			stats.MostPopular = &TagCount{Tag: tag, Count: counts[tag]}
		}
	}
	return stats
}
