package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/prescodata/internal/config"
	"github.com/markdave123-py/prescodata/internal/core"
)

const uniqueViolation = "23505"

var _ core.DbClient = (*DatabaseClient)(nil)

// DatabaseClient keeps every collection in one JSONB table on Postgres.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close(context.Context) error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureIndexes builds partial expression indexes scoped to the collection.
// Text indexes become one trigram GIN index over all their fields.
func (c *DatabaseClient) EnsureIndexes(ctx context.Context, collection string, indexes []core.IndexSpec) error {
	for _, spec := range indexes {
		stmt, err := indexDDL(collection, spec)
		if err != nil {
			return err
		}
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s on %s: %w", spec.Name, collection, err)
		}
	}
	return nil
}

func indexDDL(collection string, spec core.IndexSpec) (string, error) {
	if len(spec.Fields) == 0 {
		return "", fmt.Errorf("index %q has no fields", spec.Name)
	}
	exprs := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		switch {
		case spec.Text:
			exprs[i] = fmt.Sprintf("(doc->>%s) gin_trgm_ops", quoteLiteral(f))
		case spec.Unique:
			exprs[i] = fmt.Sprintf("(doc->>%s)", quoteLiteral(f))
		default:
			exprs[i] = fmt.Sprintf("(doc->%s)", quoteLiteral(f))
		}
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if spec.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX IF NOT EXISTS %s ON documents ", indexName(collection, spec.Name))
	if spec.Text {
		b.WriteString("USING gin ")
	}
	fmt.Fprintf(&b, "(%s) WHERE collection = %s", strings.Join(exprs, ", "), quoteLiteral(collection))
	return b.String(), nil
}

// indexName keeps names under the 63 byte identifier limit and unique per collection.
func indexName(collection, name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(collection + "/" + name))
	base := sanitizeIdent(collection + "_" + name)
	if len(base) > 48 {
		base = base[:48]
	}
	return fmt.Sprintf("ix_%s_%08x", base, h.Sum32())
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *DatabaseClient) InsertMany(ctx context.Context, collection string, docs []core.Document) (core.InsertResult, error) {
	var res core.InsertResult
	if len(docs) == 0 {
		return res, nil
	}

	stmt, err := c.db.PrepareContext(ctx, `INSERT INTO documents (collection, doc) VALUES ($1, $2::jsonb)`)
	if err != nil {
		return res, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		body, err := encodeDocument(d)
		if err != nil {
			res.Failed = append(res.Failed, core.DocumentError{Index: i, Err: err})
			continue
		}
		if _, err := stmt.ExecContext(ctx, collection, body); err != nil {
			if isUniqueViolation(err) {
				res.Failed = append(res.Failed, core.DocumentError{Index: i, Err: fmt.Errorf("%v: %w", err, core.ErrDuplicateKey)})
				continue
			}
			return res, fmt.Errorf("insert into %s: %w", collection, err)
		}
		res.Inserted++
	}
	return res, nil
}

func (c *DatabaseClient) InsertOne(ctx context.Context, collection string, doc core.Document) error {
	body, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO documents (collection, doc) VALUES ($1, $2::jsonb)`, collection, body)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert into %s: %w", collection, core.ErrDuplicateKey)
		}
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// Upsert merges doc into the matching row, inserting when none exists. A
// concurrent insert of the same key loses on the unique index and retries the update.
func (c *DatabaseClient) Upsert(ctx context.Context, collection, keyField string, doc core.Document) error {
	key, ok := doc[keyField]
	if !ok {
		return fmt.Errorf("upsert: document has no %q", keyField)
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode upsert key: %w", err)
	}
	body, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	const update = `
		UPDATE documents
		SET doc = doc || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND doc->($2::text) = $4::jsonb
	`
	for attempt := 0; attempt < 2; attempt++ {
		res, err := c.db.ExecContext(ctx, update, collection, keyField, body, string(keyJSON))
		if err != nil {
			return fmt.Errorf("upsert into %s: %w", collection, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		err = c.InsertOne(ctx, collection, doc)
		if err == nil || !errors.Is(err, core.ErrDuplicateKey) {
			return err
		}
	}
	return fmt.Errorf("upsert into %s: %w", collection, core.ErrDuplicateKey)
}

func (c *DatabaseClient) DeleteAll(ctx context.Context, collection string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) Find(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	where, args, err := buildWhere(filter, 2)
	if err != nil {
		return nil, err
	}
	args = append([]any{collection}, args...)

	var q strings.Builder
	q.WriteString(`SELECT id, doc, created_at, updated_at FROM documents WHERE collection = $1`)
	if where != "" {
		q.WriteString(" AND " + where)
	}
	if opts.NewestFirst {
		q.WriteString(" ORDER BY updated_at DESC, id DESC")
	} else {
		q.WriteString(" ORDER BY id ASC")
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		fmt.Fprintf(&q, " OFFSET $%d", len(args))
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	out := []core.Document{}
	for rows.Next() {
		var (
			id                   int64
			body                 []byte
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &body, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		doc[core.FieldID] = strconv.FormatInt(id, 10)
		doc[core.FieldCreatedAt] = createdAt.UTC()
		doc[core.FieldUpdatedAt] = updatedAt.UTC()
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) FindOne(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) (core.Document, error) {
	opts.Limit = 1
	docs, err := c.Find(ctx, collection, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, core.ErrNotFound
	}
	return docs[0], nil
}

func (c *DatabaseClient) Count(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	where, args, err := buildWhere(filter, 2)
	if err != nil {
		return 0, err
	}
	q := `SELECT count(*) FROM documents WHERE collection = $1`
	if where != "" {
		q += " AND " + where
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, q, append([]any{collection}, args...)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// buildWhere renders the filter as an OR of JSONB predicates. Placeholders start at $first.
func buildWhere(filter core.Filter, first int) (string, []any, error) {
	if filter.IsEmpty() {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filter.Any))
	args := make([]any, 0, len(filter.Any))
	for _, cond := range filter.Any {
		n := first + len(args)
		switch cond.Op {
		case core.MatchContains:
			s, _ := cond.Value.(string)
			parts = append(parts, fmt.Sprintf(`doc->>%s ILIKE $%d ESCAPE '\'`, quoteLiteral(cond.Field), n))
			args = append(args, "%"+escapeLike(s)+"%")
		case core.MatchEquals:
			v, err := json.Marshal(cond.Value)
			if err != nil {
				return "", nil, fmt.Errorf("encode %s: %w", cond.Field, err)
			}
			parts = append(parts, fmt.Sprintf(`doc->%s = $%d::jsonb`, quoteLiteral(cond.Field), n))
			args = append(args, string(v))
		default:
			return "", nil, fmt.Errorf("unsupported match op %s", cond.Op)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func encodeDocument(doc core.Document) (string, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case core.FieldID, core.FieldCreatedAt, core.FieldUpdatedAt:
			continue
		}
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

func decodeDocument(body []byte) (core.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc core.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = core.Document{}
	}
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
