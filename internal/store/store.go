package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akarels/giftregistry/internal/model"
)

// ErrNoSuchItem is returned when an operation targets an item that does
// not exist (or was deleted while the operation was in flight).
var ErrNoSuchItem = errors.New("no such item")

// ErrContention is returned when a mutation keeps losing version races
// beyond the retry budget.  Under normal operation conflicts are retried
// transparently and this error never surfaces.
var ErrContention = errors.New("too much write contention")

// maxMutateAttempts bounds the optimistic retry loop in Mutate.
const maxMutateAttempts = 16

// MutateFunc is the decide step of an optimistic read-modify-write.  It
// receives a copy of the current item and returns the desired next state,
// or an error to abort the transaction.  It may run several times when
// concurrent writers conflict, so it must be a pure function of its input.
type MutateFunc func(cur *model.WishlistItem) (*model.WishlistItem, error)

// ItemStore persists wishlist items in the wishlist_items table.  Each row
// carries a version counter; writers update conditionally on the version
// they read, and re-run the whole read-decide-write sequence when another
// writer got there first.  Every successful mutation broadcasts a change
// signal through the notifier.
type ItemStore struct {
	db       *sql.DB
	notifier *Notifier
}

// NewItemStore returns an ItemStore bound to the given database.  notifier
// may be nil when change fan-out is not needed (tests, one-shot tools).
func NewItemStore(db *sql.DB, notifier *Notifier) *ItemStore {
	return &ItemStore{db: db, notifier: notifier}
}

// EnsureSchema creates the wishlist_items table when missing.  Timestamps
// are server-assigned with microsecond precision so that updated_at is
// monotonic non-decreasing per row.  The store writes them explicitly
// with UTC_TIMESTAMP(6) on every insert and mutation; CURRENT_TIMESTAMP
// defaults are avoided because they follow the MySQL session time zone
// and would disagree with the UTC values written later.
func (s *ItemStore) EnsureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS wishlist_items (
		id               CHAR(36)     NOT NULL PRIMARY KEY,
		title            VARCHAR(255) NOT NULL,
		description      TEXT         NULL,
		link             VARCHAR(2048) NULL,
		image_url        VARCHAR(2048) NULL,
		price_range      VARCHAR(255) NULL,
		category         VARCHAR(255) NULL,
		is_claimed       TINYINT(1)   NOT NULL DEFAULT 0,
		claim_token      VARCHAR(255) NULL,
		claim_expires_at DATETIME(6)  NULL,
		last_claimed_at  DATETIME(6)  NULL,
		version          BIGINT       NOT NULL DEFAULT 1,
		created_at       DATETIME(6)  NOT NULL,
		updated_at       DATETIME(6)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Sanitize trims an optional field and maps blank values to absent.  The
// table never holds empty strings for optional columns, only NULL or
// non-empty text.
func Sanitize(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

const itemColumns = `id, title, description, link, image_url, price_range, category,
	is_claimed, claim_token, claim_expires_at, last_claimed_at, version, created_at, updated_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanItem maps a wishlist_items row onto the in-memory value, converting
// NULLs to absent fields.  This is the store adapter boundary: above it
// only model.WishlistItem circulates.
func scanItem(sc rowScanner) (model.WishlistItem, int64, error) {
	var (
		it            model.WishlistItem
		description   sql.NullString
		link          sql.NullString
		imageURL      sql.NullString
		priceRange    sql.NullString
		category      sql.NullString
		claimToken    sql.NullString
		expiresAt     sql.NullTime
		lastClaimedAt sql.NullTime
		version       int64
	)
	err := sc.Scan(
		&it.ID, &it.Title, &description, &link, &imageURL, &priceRange, &category,
		&it.IsClaimed, &claimToken, &expiresAt, &lastClaimedAt, &version, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return model.WishlistItem{}, 0, err
	}
	it.Description = nullableString(description)
	it.Link = nullableString(link)
	it.ImageURL = nullableString(imageURL)
	it.PriceRange = nullableString(priceRange)
	it.Category = nullableString(category)
	it.ClaimToken = nullableString(claimToken)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		it.ClaimExpiresAt = &t
	}
	if lastClaimedAt.Valid {
		t := lastClaimedAt.Time.UTC()
		it.LastClaimedAt = &t
	}
	return it, version, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC()
}

// Insert persists a new item.  The store assigns the identifier and the
// creation/update timestamps; claim fields are stored as provided (empty
// for freshly created items).  Timestamps are written with
// UTC_TIMESTAMP(6), the same clock Mutate uses, so updated_at never moves
// relative to created_at by a session zone offset.  The stored row is
// read back and returned so callers observe the server-assigned fields.
func (s *ItemStore) Insert(ctx context.Context, item *model.WishlistItem) (*model.WishlistItem, error) {
	id := uuid.NewString()
	const q = `INSERT INTO wishlist_items
		(id, title, description, link, image_url, price_range, category,
		 is_claimed, claim_token, claim_expires_at, last_claimed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(6), UTC_TIMESTAMP(6))`
	_, err := s.db.ExecContext(ctx, q,
		id, item.Title,
		nullString(item.Description), nullString(item.Link), nullString(item.ImageURL),
		nullString(item.PriceRange), nullString(item.Category),
		item.IsClaimed, nullString(item.ClaimToken), nullTime(item.ClaimExpiresAt),
		nullTime(item.LastClaimedAt),
	)
	if err != nil {
		return nil, err
	}
	stored, _, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx)
	return &stored, nil
}

// Get returns a single item by ID, or ErrNoSuchItem.
func (s *ItemStore) Get(ctx context.Context, id string) (*model.WishlistItem, error) {
	it, _, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *ItemStore) get(ctx context.Context, id string) (model.WishlistItem, int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM wishlist_items WHERE id = ?`, id)
	it, version, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WishlistItem{}, 0, ErrNoSuchItem
	}
	return it, version, err
}

// List returns the full collection in stable creation order.
func (s *ItemStore) List(ctx context.Context) ([]model.WishlistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM wishlist_items ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.WishlistItem, 0)
	for rows.Next() {
		it, _, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Mutate runs fn as a single atomic read-modify-write against one item.
// It reads the current row with its version, lets fn decide the next
// state, and writes conditionally on the version being unchanged.  When a
// concurrent writer wins the race the whole sequence is retried, so fn
// always decides against fresh state and lost updates are impossible.
// Returns ErrNoSuchItem when the item is missing at read time, including
// when it is deleted between retries.
func (s *ItemStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.WishlistItem, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		cur, version, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := fn(&cur)
		if err != nil {
			return nil, err
		}
		const q = `UPDATE wishlist_items
			SET title = ?, description = ?, link = ?, image_url = ?, price_range = ?, category = ?,
			    is_claimed = ?, claim_token = ?, claim_expires_at = ?, last_claimed_at = ?,
			    version = version + 1, updated_at = UTC_TIMESTAMP(6)
			WHERE id = ? AND version = ?`
		res, err := s.db.ExecContext(ctx, q,
			next.Title,
			nullString(next.Description), nullString(next.Link), nullString(next.ImageURL),
			nullString(next.PriceRange), nullString(next.Category),
			next.IsClaimed, nullString(next.ClaimToken), nullTime(next.ClaimExpiresAt),
			nullTime(next.LastClaimedAt),
			id, version,
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue // version conflict: re-read and decide again
		}
		stored, _, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		s.broadcast(ctx)
		return &stored, nil
	}
	return nil, ErrContention
}

// Delete removes an item permanently.  Deleting a missing item is a
// silent success; a claim transaction racing the delete observes
// ErrNoSuchItem from its own read.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wishlist_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.broadcast(ctx)
	}
	return nil
}

func (s *ItemStore) broadcast(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.Broadcast(ctx)
	}
}
