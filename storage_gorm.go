package agentruntime

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ Storage = &GormStorage{}

// GormStorage implements the Storage interface on any gorm dialect. SQLite is used for local
// runs and Postgres for hosted deployments.
type GormStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage opens (or creates) a SQLite journal at dbPath.
func NewSQLiteStorage(dbPath string) (*GormStorage, error) {
	return newGormStorage(sqlite.Open(dbPath))
}

// NewPostgresStorage connects to the Postgres database at dsn.
func NewPostgresStorage(dsn string) (*GormStorage, error) {
	return newGormStorage(postgres.Open(dsn))
}

// NewStorage picks the dialect by driver name ("sqlite" or "postgres").
func NewStorage(driver, dsn string) (*GormStorage, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return NewSQLiteStorage(dsn)
	case "postgres", "postgresql":
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func newGormStorage(dialector gorm.Dialector) (*GormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &GormStorage{db: db}
	if err := storage.initDB(); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage, nil
}

// initDB creates the conversations table if it doesn't exist.
func (s *GormStorage) initDB() error {
	if err := s.db.AutoMigrate(&Conversation{}); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateConversation stores a new turn record keyed by its turn ID.
func (s *GormStorage) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation has no turn id")
	}
	if conv.Status == "" {
		conv.Status = TurnRunning
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// FinishConversation records the outcome of the turn with the given ID.
func (s *GormStorage) FinishConversation(ctx context.Context, turnID string, update ConversationUpdate) error {
	res := s.db.WithContext(ctx).Model(&Conversation{}).Where("id = ?", turnID).Updates(map[string]any{
		"assistant_message": update.AssistantMessage,
		"status":            update.Status,
		"error":             update.Error,
		"error_type":        update.ErrorType,
		"rounds":            update.Rounds,
		"input_tokens":      update.Usage.InputTokens,
		"output_tokens":     update.Usage.OutputTokens,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no conversation found with id: %s", turnID)
	}
	return nil
}

// GetConversations returns the journaled turns of a session, oldest first.
func (s *GormStorage) GetConversations(ctx context.Context, sessionID string, limit int, offset int) ([]Conversation, error) {
	var convs []Conversation
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Order("id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return convs, nil
}
