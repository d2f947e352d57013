package sqlengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrEmptyQuery is returned when the submitted query has no statements.
var ErrEmptyQuery = errors.New("query is empty")

// Engine evaluates SQL submissions against a throwaway in-memory database.
type Engine struct {
	logger zerolog.Logger
}

// New constructs an Engine.
func New(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "sql_engine").Logger()}
}

// Run creates a fresh database, applies the setup script, executes the query and
// returns the rows of its last statement encoded by EncodeRows.
func (e *Engine) Run(ctx context.Context, setup, query string) (string, error) {
	statements := SplitStatements(query)
	if len(statements) == 0 {
		return "", ErrEmptyQuery
	}

	db, closeDB, err := openMemory()
	if err != nil {
		return "", err
	}
	defer closeDB()

	db = db.WithContext(ctx)

	for _, stmt := range SplitStatements(setup) {
		if table := CreatedTable(stmt); table != "" {
			if err := db.Exec("DROP TABLE IF EXISTS " + quoteIdentifier(table)).Error; err != nil {
				return "", fmt.Errorf("setup: %w", err)
			}
		}
		if err := db.Exec(NormalizeSchema(stmt)).Error; err != nil {
			e.logger.Debug().Err(err).Str("statement", stmt).Msg("setup statement failed")
			return "", fmt.Errorf("setup: %w", err)
		}
	}

	last := len(statements) - 1
	for _, stmt := range statements[:last] {
		if err := db.Exec(stmt).Error; err != nil {
			return "", err
		}
	}

	rows, err := db.Raw(statements[last]).Rows()
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var collected [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return "", err
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return EncodeRows(columns, collected)
}

func openMemory() (*gorm.DB, func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=private", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// Every connection to a private in-memory database sees its own schema.
	sqlDB.SetMaxOpenConns(1)

	return db, func() { _ = sqlDB.Close() }, nil
}
