package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vyrodovalexey/point-admin/internal/model"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// pointRecord is the persistence model of a point.
type pointRecord struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Title       string  `gorm:"size:255;not null"`
	Description *string `gorm:"size:1000"`
}

// TableName pins the table name.
func (pointRecord) TableName() string {
	return "points"
}

func (r pointRecord) toModel() model.Point {
	p := model.Point{ID: model.Int64Ptr(r.ID), Title: r.Title}
	if r.Description != nil {
		p.Description = model.StringPtr(*r.Description)
	}
	return p
}

// GormStore implements Store on top of a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection. The points table is migrated.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&pointRecord{}); err != nil {
		return nil, fmt.Errorf("migrate points table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenGorm opens a gorm connection for the sqlite or postgres driver.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer; ":memory:" databases are per connection.
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// List returns one page of points and the total number of points.
func (s *GormStore) List(ctx context.Context, page model.PageRequest) ([]model.Point, int64, error) {
	if err := validateSort(page); err != nil {
		return nil, 0, err
	}
	page = normalizePage(page)

	var total int64
	if err := s.db.WithContext(ctx).Model(&pointRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count points: %w", err)
	}

	query := s.db.WithContext(ctx).Model(&pointRecord{})
	for _, o := range page.Orders() {
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		query = query.Order(sortable[o.Property] + " " + dir)
	}
	query = query.Order("id ASC")

	var records []pointRecord
	err := query.Offset(page.Page * page.Size).Limit(page.Size).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list points: %w", err)
	}

	points := make([]model.Point, 0, len(records))
	for _, r := range records {
		points = append(points, r.toModel())
	}

	return points, total, nil
}

// Get retrieves a point by its ID.
func (s *GormStore) Get(ctx context.Context, id int64) (*model.Point, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	record, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	p := record.toModel()
	return &p, nil
}

// Exists reports whether a point with the given ID is stored.
func (s *GormStore) Exists(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&pointRecord{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("point exists: %w", err)
	}
	return count > 0, nil
}

// Create adds a new point and returns it with its generated ID.
func (s *GormStore) Create(ctx context.Context, point *model.Point) (*model.Point, error) {
	if point == nil {
		return nil, fmt.Errorf("create point: %w", ErrNilPoint)
	}

	cleaned := model.Clean(*point)
	record := pointRecord{Title: cleaned.Title, Description: cleaned.Description}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create point: %w", err)
	}

	p := record.toModel()
	return &p, nil
}

// Update replaces an existing point.
func (s *GormStore) Update(ctx context.Context, id int64, point *model.Point) (*model.Point, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	if point == nil {
		return nil, fmt.Errorf("update point: %w", ErrNilPoint)
	}

	var out model.Point
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.find(ctx, tx, id); err != nil {
			return err
		}

		cleaned := model.Clean(*point)
		record := pointRecord{ID: id, Title: cleaned.Title, Description: cleaned.Description}
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("update point: %w", err)
		}

		out = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// PartialUpdate copies the non-empty fields of point onto the stored one.
func (s *GormStore) PartialUpdate(ctx context.Context, id int64, point *model.Point) (*model.Point, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	if point == nil {
		return nil, fmt.Errorf("partial update point: %w", ErrNilPoint)
	}

	var out model.Point
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}

		merged := mergePoint(existing.toModel(), *point)
		record := pointRecord{ID: id, Title: merged.Title, Description: merged.Description}
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("partial update point: %w", err)
		}

		out = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

// Delete removes a point by its ID.
func (s *GormStore) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}

	result := s.db.WithContext(ctx).Delete(&pointRecord{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete point: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *GormStore) find(ctx context.Context, db *gorm.DB, id int64) (pointRecord, error) {
	var record pointRecord
	err := db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pointRecord{}, ErrNotFound
	}
	if err != nil {
		return pointRecord{}, fmt.Errorf("get point: %w", err)
	}
	return record, nil
}

// Open creates the Store selected by driver. Closing the returned function
// releases database resources.
func Open(driver, dsn string) (Store, func() error, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), func() error { return nil }, nil
	case DriverSQLite, DriverPostgres:
		db, err := OpenGorm(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return openGormStore(db)
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// openGormStore migrates db and wraps it in a GormStore. The connection is
// closed when migration fails.
func openGormStore(db *gorm.DB) (Store, func() error, error) {
	s, err := NewGormStore(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, nil, err
	}
	return s, s.Close, nil
}
