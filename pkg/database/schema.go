package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"lobby_events":      "Lobby activity log",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	columns := map[string]string{
		"id":        "TEXT",
		"kind":      "TEXT",
		"room_id":   "TEXT",
		"room_name": "TEXT",
		"user_id":   "TEXT",
		"username":  "TEXT",
		"players":   "INTEGER",
		"timestamp": "DATETIME",
	}
	if err := v.validateColumns("lobby_events", columns); err != nil {
		return fmt.Errorf("lobby_events table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that the query indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_lobby_events_room_time": "Per-room activity queries",
		"idx_lobby_events_time":      "Recent activity queries",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints verifies that the kind check constraint is enforced
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO lobby_events (id, kind, room_id, room_name, players)
		VALUES ('constraint-probe', 'room_exploded', 'r', 'r', 0)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM lobby_events WHERE id = 'constraint-probe'")
		return fmt.Errorf("check constraint not enforced: lobby_events.kind")
	}
	return nil
}

func (v *SchemaValidator) objectExists(objectType, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		objectType, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expectedColumns {
		foundType, exists := found[column]
		if !exists {
			return fmt.Errorf("column %s not found", column)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundType, expectedType)
		}
	}
	return nil
}
