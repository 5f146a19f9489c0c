package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Tags is the Tag entity's Table. name is Tag's natural unique key.
var Tags = Table[types.Tag]{
	Name:    "tags",
	Columns: []string{"name", "description", "pattern", `"from"`, "severity"},
	Bind: func(v types.Tag) []any {
		return []any{v.Name, v.Description, v.Pattern, string(v.From), string(v.Severity)}
	},
	Scan: func(scan func(dest ...any) error) (types.Tag, error) {
		var v types.Tag
		var from, severity string
		if err := scan(&v.Name, &v.Description, &v.Pattern, &from, &severity); err != nil {
			return v, err
		}
		v.From, v.Severity = types.From(from), types.Severity(severity)
		return v, nil
	},
}

// UpsertTag collapses on Tag.Name, refreshing description/pattern/from/
// severity in place so a catalog reload reuses existing tag ids (and thus
// the findings already attached to them) instead of duplicating rows.
func UpsertTag(ctx context.Context, conn *sql.Conn, v types.Tag) (Row[types.Tag], error) {
	row := conn.QueryRowContext(ctx, `
		INSERT INTO tags (name, description, pattern, "from", severity) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description=excluded.description, pattern=excluded.pattern,
			"from"=excluded."from", severity=excluded.severity
		RETURNING id`,
		v.Name, v.Description, v.Pattern, string(v.From), string(v.Severity),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return Row[types.Tag]{}, fmt.Errorf("storage: upsert tag %q: %w", v.Name, err)
	}
	return Row[types.Tag]{ID: id, Value: v}, nil
}

// FindTagByName resolves a tag's id by its unique name, for attaching a
// freshly classified Finding to the tag row the catalog's name refers to.
func FindTagByName(ctx context.Context, conn *sql.Conn, name string) (Row[types.Tag], bool, error) {
	row := conn.QueryRowContext(ctx, `SELECT id, name, description, pattern, "from", severity FROM tags WHERE name=?`, name)
	var out Row[types.Tag]
	var from, severity string
	err := row.Scan(&out.ID, &out.Value.Name, &out.Value.Description, &out.Value.Pattern, &from, &severity)
	if err == sql.ErrNoRows {
		return Row[types.Tag]{}, false, nil
	}
	if err != nil {
		return Row[types.Tag]{}, false, fmt.Errorf("storage: find tag %q: %w", name, err)
	}
	out.Value.From, out.Value.Severity = types.From(from), types.Severity(severity)
	return out, true, nil
}
