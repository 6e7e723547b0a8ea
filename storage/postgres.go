package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

// todoRow is the relational shape of a todo.
type todoRow struct {
	RawID   int64  `gorm:"column:rawid;type:integer"`
	Title   string `gorm:"column:title"`
	Content string `gorm:"column:content"`
	DueDate int64  `gorm:"column:duedate"`
	State   string `gorm:"column:state"`
}

func (todoRow) TableName() string { return "todos" }

func (r todoRow) todo() domain.Todo {
	return domain.Todo{
		ID:      r.RawID,
		Title:   r.Title,
		Content: r.Content,
		Status:  domain.Status(r.State),
		DueDate: r.DueDate,
	}
}

// PostgresStore persists todos in the relational todos table.
type PostgresStore struct {
	db *gorm.DB
}

// PostgresConfig holds the connection parameters of the relational store.
type PostgresConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an open gorm handle.
func NewPostgresStoreFromDB(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the todos table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&todoRow{})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) filtered(ctx context.Context, filter domain.StatusFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&todoRow{})
	if st, ok := filter.Status(); ok {
		q = q.Where("state = ?", string(st))
	}
	return q
}

func (s *PostgresStore) Count(ctx context.Context, filter domain.StatusFilter) (int, error) {
	var n int64
	if err := s.filtered(ctx, filter).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// List orders by the column mapped from key; the column name never comes
// from client input.
func (s *PostgresStore) List(ctx context.Context, filter domain.StatusFilter, key domain.SortKey) ([]domain.Todo, error) {
	var rows []todoRow
	if err := s.filtered(ctx, filter).Order(key.Field()).Find(&rows).Error; err != nil {
		return nil, err
	}
	todos := make([]domain.Todo, 0, len(rows))
	for _, r := range rows {
		todos = append(todos, r.todo())
	}
	return todos, nil
}

func (s *PostgresStore) TitleExists(ctx context.Context, title string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&todoRow{}).Where("title = ?", title).Count(&n).Error
	return n > 0, err
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (domain.Todo, error) {
	var row todoRow
	err := s.db.WithContext(ctx).Where("rawid = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Todo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Todo{}, err
	}
	return row.todo(), nil
}

func (s *PostgresStore) Status(ctx context.Context, id int64) (domain.Status, error) {
	var row todoRow
	err := s.db.WithContext(ctx).Select("state").Where("rawid = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.Status(row.State), nil
}

func (s *PostgresStore) Insert(ctx context.Context, t domain.Todo) error {
	row := todoRow{
		RawID:   t.ID,
		Title:   t.Title,
		Content: t.Content,
		DueDate: t.DueDate,
		State:   string(t.Status),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	return s.db.WithContext(ctx).Model(&todoRow{}).Where("rawid = ?", id).Update("state", string(status)).Error
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Where("rawid = ?", id).Delete(&todoRow{}).Error
}
