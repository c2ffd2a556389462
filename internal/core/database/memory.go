package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/prescodata/internal/core"
)

// maxIndexes mirrors the per-collection index limit of MongoDB.
const maxIndexes = 64

var _ core.DbClient = (*MemoryClient)(nil)

// MemoryClient is an in-memory DbClient. It backs `memory://` deployments and
// the unit tests of every layer above the store.
type MemoryClient struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	seq         int64
	now         func() time.Time

	err      error
	pingErr  error
	failures map[string]nthFailure
	calls    map[string]int
}

type nthFailure struct {
	n   int
	err error
}

type memCollection struct {
	docs    []*memDoc
	indexes []core.IndexSpec
}

type memDoc struct {
	doc     core.Document
	touched int64
}

// NewMemoryClient returns an empty store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		collections: make(map[string]*memCollection),
		now:         func() time.Time { return time.Now().UTC() },
		failures:    make(map[string]nthFailure),
		calls:       make(map[string]int),
	}
}

// WithError configures the client to return err for every subsequent call.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithPingError forces Ping to return err.
func (m *MemoryClient) WithPingError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// FailNth makes the n-th call (1-based) of op return err. op is a DbClient method name.
func (m *MemoryClient) FailNth(op string, n int, err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = nthFailure{n: n, err: err}
	return m
}

// Calls returns how many times op was invoked.
func (m *MemoryClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of store calls made so far.
func (m *MemoryClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Indexes returns a snapshot of the indexes registered on collection.
func (m *MemoryClient) Indexes(collection string) []core.IndexSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	return append([]core.IndexSpec(nil), c.indexes...)
}

// enter records the call and returns any injected failure. Caller holds mu.
func (m *MemoryClient) enter(op string) error {
	m.calls[op]++
	if m.err != nil {
		return m.err
	}
	if f, ok := m.failures[op]; ok && f.n == m.calls[op] {
		return f.err
	}
	return nil
}

func (m *MemoryClient) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{}
		m.collections[name] = c
	}
	return c
}

func (m *MemoryClient) EnsureIndexes(_ context.Context, collection string, indexes []core.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EnsureIndexes"); err != nil {
		return err
	}

	c := m.collection(collection)
	for _, spec := range indexes {
		if len(spec.Fields) == 0 {
			return fmt.Errorf("index %q has no fields", spec.Name)
		}
		exists := false
		for _, have := range c.indexes {
			if have.Name == spec.Name {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if len(c.indexes) >= maxIndexes {
			return fmt.Errorf("collection %q: too many indexes (max %d)", collection, maxIndexes)
		}
		c.indexes = append(c.indexes, spec)
	}
	return nil
}

func (m *MemoryClient) InsertMany(_ context.Context, collection string, docs []core.Document) (core.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertMany"); err != nil {
		return core.InsertResult{}, err
	}

	var res core.InsertResult
	c := m.collection(collection)
	for i, doc := range docs {
		if err := m.insertLocked(c, doc); err != nil {
			res.Failed = append(res.Failed, core.DocumentError{Index: i, Err: err})
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (m *MemoryClient) InsertOne(_ context.Context, collection string, doc core.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertOne"); err != nil {
		return err
	}
	return m.insertLocked(m.collection(collection), doc)
}

func (m *MemoryClient) insertLocked(c *memCollection, doc core.Document) error {
	stored := cloneDocument(doc)
	if err := checkUnique(c, stored, nil); err != nil {
		return err
	}
	now := m.now()
	if id, _ := stored[core.FieldID].(string); id == "" {
		stored[core.FieldID] = uuid.NewString()
	}
	stored[core.FieldCreatedAt] = now
	stored[core.FieldUpdatedAt] = now
	m.seq++
	c.docs = append(c.docs, &memDoc{doc: stored, touched: m.seq})
	return nil
}

func (m *MemoryClient) Upsert(_ context.Context, collection, keyField string, doc core.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Upsert"); err != nil {
		return err
	}

	c := m.collection(collection)
	key, ok := doc[keyField]
	if !ok {
		return fmt.Errorf("upsert: document has no %q", keyField)
	}
	for _, d := range c.docs {
		if !valuesEqual(d.doc[keyField], key) {
			continue
		}
		merged := cloneDocument(d.doc)
		for k, v := range doc {
			if k == core.FieldID || k == core.FieldCreatedAt {
				continue
			}
			merged[k] = v
		}
		if err := checkUnique(c, merged, d); err != nil {
			return err
		}
		merged[core.FieldUpdatedAt] = m.now()
		m.seq++
		d.doc = merged
		d.touched = m.seq
		return nil
	}
	return m.insertLocked(c, doc)
}

func (m *MemoryClient) DeleteAll(_ context.Context, collection string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteAll"); err != nil {
		return 0, err
	}
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	n := int64(len(c.docs))
	c.docs = nil
	return n, nil
}

func (m *MemoryClient) Find(_ context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Find"); err != nil {
		return nil, err
	}
	return m.findLocked(collection, filter, opts), nil
}

func (m *MemoryClient) FindOne(_ context.Context, collection string, filter core.Filter, opts core.FindOptions) (core.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindOne"); err != nil {
		return nil, err
	}
	opts.Limit = 1
	docs := m.findLocked(collection, filter, opts)
	if len(docs) == 0 {
		return nil, core.ErrNotFound
	}
	return docs[0], nil
}

func (m *MemoryClient) findLocked(collection string, filter core.Filter, opts core.FindOptions) []core.Document {
	c, ok := m.collections[collection]
	if !ok {
		return []core.Document{}
	}
	matched := make([]*memDoc, 0, len(c.docs))
	for _, d := range c.docs {
		if matches(d.doc, filter) {
			matched = append(matched, d)
		}
	}
	if opts.NewestFirst {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].touched > matched[j].touched })
	}

	start := max(opts.Skip, 0)
	if start > int64(len(matched)) {
		start = int64(len(matched))
	}
	matched = matched[start:]
	if opts.Limit > 0 && int(opts.Limit) < len(matched) {
		matched = matched[:opts.Limit]
	}

	out := make([]core.Document, len(matched))
	for i, d := range matched {
		out[i] = cloneDocument(d.doc)
	}
	return out
}

func (m *MemoryClient) Count(_ context.Context, collection string, filter core.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Count"); err != nil {
		return 0, err
	}
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, d := range c.docs {
		if matches(d.doc, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryClient) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Ping"); err != nil {
		return err
	}
	return m.pingErr
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

func checkUnique(c *memCollection, doc core.Document, self *memDoc) error {
	for _, spec := range c.indexes {
		if !spec.Unique {
			continue
		}
		for _, other := range c.docs {
			if other == self {
				continue
			}
			same := true
			for _, f := range spec.Fields {
				if !valuesEqual(other.doc[f], doc[f]) {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("index %s: %w", spec.Name, core.ErrDuplicateKey)
			}
		}
	}
	return nil
}

func matches(doc core.Document, filter core.Filter) bool {
	if filter.IsEmpty() {
		return true
	}
	for _, cond := range filter.Any {
		if conditionMatches(doc[cond.Field], cond) {
			return true
		}
	}
	return false
}

func conditionMatches(have any, cond core.Condition) bool {
	switch cond.Op {
	case core.MatchContains:
		s, ok := have.(string)
		needle, _ := cond.Value.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case core.MatchEquals:
		return valuesEqual(have, cond.Value)
	}
	return false
}

// valuesEqual compares numbers numerically and everything else by value.
func valuesEqual(a, b any) bool {
	if _, isStr := a.(string); !isStr {
		if fa, ok := core.AsFloat(a); ok {
			fb, ok := core.AsFloat(b)
			return ok && fa == fb
		}
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return false
}

func cloneDocument(src core.Document) core.Document {
	dst := make(core.Document, len(src))
	for k, v := range src {
		switch x := v.(type) {
		case []any:
			dst[k] = append([]any(nil), x...)
		case []string:
			dst[k] = append([]string(nil), x...)
		default:
			dst[k] = v
		}
	}
	return dst
}
