package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Dev-Aaron27/premium/internal/discord"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("session_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("session_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("session_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("session_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("session_store.unsupported_no_scheme")
)

// DatabaseStore persists session records using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type sessionRow struct {
	SessionID    string `gorm:"column:session_id;primaryKey"`
	ProfileJSON  string `gorm:"column:profile_json;not null"`
	IssuedAtUnix int64  `gorm:"column:issued_at_unix;not null"`
	ExpiresUnix  int64  `gorm:"column:expires_unix;not null;index"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

// NewDatabaseStore constructs a GORM-backed store for sqlite:// or
// postgres:// database URLs.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("session_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, resolveErr := resolveDialector(databaseURL)
	if resolveErr != nil {
		return nil, resolveErr
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("session_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&sessionRow{}); migrateErr != nil {
		return nil, fmt.Errorf("session_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Put upserts a session record as serialized profile JSON.
func (store *DatabaseStore) Put(ctx context.Context, record Record) error {
	if record.SessionID == "" {
		return fmt.Errorf("session_store.put.%s: %w", store.driverLabel, ErrEmptySessionID)
	}
	encoded, encodeErr := json.Marshal(record.Profile)
	if encodeErr != nil {
		return fmt.Errorf("session_store.put.%s: %w", store.driverLabel, encodeErr)
	}
	row := sessionRow{
		SessionID:    record.SessionID,
		ProfileJSON:  string(encoded),
		IssuedAtUnix: record.IssuedAtUnix,
		ExpiresUnix:  record.ExpiresUnix,
	}
	if saveErr := store.db.WithContext(ctx).Save(&row).Error; saveErr != nil {
		return fmt.Errorf("session_store.put.%s: %w", store.driverLabel, saveErr)
	}
	return nil
}

// Get loads a session record, enforcing expiry.
func (store *DatabaseStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Record{}, fmt.Errorf("session_store.get.%s: %w", store.driverLabel, ErrEmptySessionID)
	}
	var row sessionRow
	findErr := store.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if findErr != nil {
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return Record{}, fmt.Errorf("session_store.get.%s: %w", store.driverLabel, ErrSessionNotFound)
		}
		return Record{}, fmt.Errorf("session_store.get.%s: %w", store.driverLabel, findErr)
	}
	if row.ExpiresUnix != 0 && time.Unix(row.ExpiresUnix, 0).Before(time.Now().UTC()) {
		return Record{}, fmt.Errorf("session_store.get.%s: %w", store.driverLabel, ErrSessionExpired)
	}
	var profile discord.UserProfile
	if decodeErr := json.Unmarshal([]byte(row.ProfileJSON), &profile); decodeErr != nil {
		return Record{}, fmt.Errorf("session_store.get.%s: %w", store.driverLabel, decodeErr)
	}
	return Record{
		SessionID:    row.SessionID,
		Profile:      profile,
		IssuedAtUnix: row.IssuedAtUnix,
		ExpiresUnix:  row.ExpiresUnix,
	}, nil
}

// Delete removes a session record; deleting an absent record is not an error.
func (store *DatabaseStore) Delete(ctx context.Context, sessionID string) error {
	result := store.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&sessionRow{})
	if result.Error != nil {
		return fmt.Errorf("session_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, parseErr := url.Parse(databaseURL)
	if parseErr != nil {
		return nil, "", fmt.Errorf("session_store.parse_url: %w", parseErr)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("session_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("session_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("session_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
