package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/coderecon/internal/domain/vocabulary"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// conceptTableSQL builds the full-scan query for an OMOP concept table.
// name may be schema qualified ("vocab.concept").
func conceptTableSQL(name string) (string, error) {
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid concept table name %q", name)
	}
	ident := pgx.Identifier(strings.Split(name, "."))
	return fmt.Sprintf(
		`SELECT concept_id::text, COALESCE(concept_code,''), COALESCE(vocabulary_id,''), COALESCE(concept_name,'')
		 FROM %s`, ident.Sanitize()), nil
}

// LoadConceptTable reads a whole OMOP concept table into memory. The
// catalog never queries the database mid-pass, so a load failure surfaces
// before any observation is processed.
func LoadConceptTable(ctx context.Context, q queryable, name string) (*vocabulary.MemTable, error) {
	sql, err := conceptTableSQL(name)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("load concept table %s: %w", name, err)
	}
	defer rows.Close()

	var concepts []vocabulary.Concept
	for rows.Next() {
		var c vocabulary.Concept
		if err := rows.Scan(&c.ID, &c.Code, &c.Vocabulary, &c.Name); err != nil {
			return nil, fmt.Errorf("scan concept row from %s: %w", name, err)
		}
		concepts = append(concepts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concept table %s: %w", name, err)
	}
	return vocabulary.NewMemTable(name, concepts), nil
}
