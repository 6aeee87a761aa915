package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidvault/metrics"
	"bidvault/store"
	"bidvault/store/pgstore/migrations"

	sdkmath "cosmossdk.io/math"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/tern/migrate"
	"github.com/prometheus/client_golang/prometheus"
)

type Store struct {
	db     connOrTx
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

type connOrTx interface {
	Query(ctx context.Context, q string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, q string, args ...any) pgx.Row
	Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error)
}

func NewStore(ctx context.Context, connStr string, logger log.Logger) (_ *Store, err error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if config.MaxConnIdleTime == 0 {
		config.MaxConnIdleTime = 5 * time.Minute
	}

	if config.MaxConns == 0 {
		config.MaxConns = 4
	}

	if config.MinConns == 0 {
		config.MinConns = 1
	}

	if config.ConnConfig.ConnectTimeout == 0 {
		config.ConnConfig.ConnectTimeout = 5 * time.Second
	}

	config.ConnConfig.Logger = &pgDebugLogAdapter{
		Logger: log.With(logger, "submodule", "postgres"),
	}

	config.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		level.Debug(logger).Log("event", "new db connection")

		for _, q := range []string{
			`set timezone='UTC'`,
			`set lock_timeout='5s'`,
			`set statement_timeout='5s'`,
		} {
			if _, err := c.Exec(ctx, q); err != nil {
				return fmt.Errorf("db connection setup query %q: %w", q, err)
			}
		}

		return nil
	}

	level.Debug(logger).Log("msg", "connecting")

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	defer func() {
		if err != nil {
			pool.Close()
		}
	}()

	{
		var (
			user = config.ConnConfig.User
			host = config.ConnConfig.Host
			name = config.ConnConfig.Database
			pc   = newPoolCollector(user, host, name, func() stat { return pool.Stat() })
		)
		if err := prometheus.Register(pc); err != nil {
			return nil, fmt.Errorf("metrics registration failed: %w", err)
		}
	}

	if err = pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		return migrateDB(ctx, c.Conn(), logger)
	}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	switch x := s.db.(type) {
	case *pgx.Conn:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return x.Close(ctx)
	case *pgxpool.Pool:
		x.Close()
		return nil
	case pgx.Tx:
		return nil
	default:
		return fmt.Errorf("close with unknown DB type %T", s.db)
	}
}

func migrateDB(ctx context.Context, conn *pgx.Conn, logger log.Logger) error {
	m, err := migrate.NewMigratorEx(ctx, conn, "public.schema_version", &migrate.MigratorOptions{
		MigratorFS: migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}

	if err = m.LoadMigrations("."); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m.OnStart = func(sequence int32, name, direction, sql string) {
		level.Info(logger).Log("msg", "migrating", "sequence", sequence, "name", name, "direction", direction)
	}

	if err = m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	level.Debug(logger).Log("msg", "migrations done", "count", len(m.Migrations))

	return nil
}

// Transact runs f in a serializable transaction, retrying a few times when
// Postgres reports a serialization failure. f must be safe to re-run.
func (s *Store) Transact(ctx context.Context, f func(store.Store) error) error {
	defer func(begin time.Time) {
		level.Debug(s.logger).Log("op", "Transact", "took", time.Since(begin))
	}(time.Now())

	retryable := func(err error) bool {
		if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) {
			if pgerr.Code == "40001" { // concurrent updates
				return true
			}
		}
		return false
	}

	var err error
	for try, max := 1, 3; try <= max; try++ {
		err = s.transactDirect(ctx, f)
		switch {
		case err == nil:
			return nil
		case retryable(err):
			level.Debug(s.logger).Log("op", "Transact", "err", err, "attempt", try, "max", max)
		default:
			return err
		}
	}

	return err
}

func (s *Store) transactDirect(ctx context.Context, f func(store.Store) error) error {
	var entered time.Time
	defer func(begin time.Time) {
		if !entered.IsZero() {
			metrics.OpWait("pgstore_transactdirect", entered.Sub(begin))
		}
	}(time.Now())

	run := func(tx pgx.Tx) error {
		entered = time.Now()
		return f(&Store{
			db:     tx,
			logger: s.logger,
		})
	}

	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}

	switch x := s.db.(type) {
	case *pgx.Conn:
		return x.BeginTxFunc(ctx, opts, run)
	case *pgxpool.Pool:
		return x.BeginTxFunc(ctx, opts, run)
	case pgx.Tx:
		return x.BeginFunc(ctx, run)
	default:
		return fmt.Errorf("unknown DB type %T", s.db)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRow(ctx, `select 1`).Scan(&n)
}

const cleanupSettlementsQuery = `
delete from settlements
where
  created_at <= now() - ($1 * interval '1 microsecond')
`

func (s *Store) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	status, err := s.db.Exec(ctx, cleanupSettlementsQuery, retention.Microseconds())
	if err != nil {
		return fmt.Errorf("cleanup settlements: %w", err)
	}

	level.Debug(s.logger).Log("op", "Cleanup", "deleted_settlements", status.RowsAffected())

	return nil
}

//
// admin set
//

const insertAdminSetQuery = `
insert into admin_set
(
	admins,
	contract_name,
	contract_version
)
values ($1, $2, $3)
returning
	created_at
`

func (s *Store) InsertAdminSet(ctx context.Context, a *store.AdminSet) error {
	admins := a.Admins
	if admins == nil {
		admins = []string{}
	}

	return convertError(s.db.QueryRow(ctx, insertAdminSetQuery,
		admins,
		a.ContractName,
		a.ContractVersion,
	).Scan(&a.CreatedAt))
}

const selectAdminSetQuery = `
select
	admins,
	contract_name,
	contract_version,
	created_at
from
	admin_set
`

func (s *Store) SelectAdminSet(ctx context.Context) (*store.AdminSet, error) {
	var a store.AdminSet
	if err := s.db.QueryRow(ctx, selectAdminSetQuery).Scan(
		&a.Admins,
		&a.ContractName,
		&a.ContractVersion,
		&a.CreatedAt,
	); err != nil {
		return nil, convertError(err)
	}
	return &a, nil
}

//
// bidding period
//

const insertBiddingPeriodQuery = `
insert into bidding_period
(
	name,
	description,
	expires_at_ns,
	minimum_bid,
	accepted_bidders,
	denom
)
values ($1, $2, $3, $4::numeric, $5, $6)
returning
	created_at
`

func (s *Store) InsertBiddingPeriod(ctx context.Context, p *store.BiddingPeriod) error {
	if p.AcceptedBidders > uint64(1<<63-1) {
		return fmt.Errorf("accepted bidders %d out of range", p.AcceptedBidders)
	}

	return convertError(s.db.QueryRow(ctx, insertBiddingPeriodQuery,
		p.Name,
		p.Description,
		p.ExpiresAt.UnixNano(),
		p.MinimumBid.String(),
		int64(p.AcceptedBidders),
		p.Denom,
	).Scan(&p.CreatedAt))
}

const selectBiddingPeriodQuery = `
select
	name,
	description,
	expires_at_ns,
	minimum_bid::text,
	accepted_bidders,
	denom,
	created_at
from
	bidding_period
`

func (s *Store) SelectBiddingPeriod(ctx context.Context) (*store.BiddingPeriod, error) {
	var (
		p               store.BiddingPeriod
		description     pgtype.Text
		expiresAtNanos  int64
		acceptedBidders int64
	)
	if err := s.db.QueryRow(ctx, selectBiddingPeriodQuery).Scan(
		&p.Name,
		&description,
		&expiresAtNanos,
		&amount{&p.MinimumBid},
		&acceptedBidders,
		&p.Denom,
		&p.CreatedAt,
	); err != nil {
		return nil, convertError(err)
	}

	if description.Status == pgtype.Present {
		d := description.String
		p.Description = &d
	}
	p.ExpiresAt = time.Unix(0, expiresAtNanos).UTC()
	p.AcceptedBidders = uint64(acceptedBidders)

	return &p, nil
}

const deleteBiddingPeriodQuery = `delete from bidding_period`

func (s *Store) DeleteBiddingPeriod(ctx context.Context) error {
	result, err := s.db.Exec(ctx, deleteBiddingPeriodQuery)
	if err != nil {
		return fmt.Errorf("execute delete: %w", err)
	}

	if result.RowsAffected() != 1 {
		return store.ErrNotFound
	}

	return nil
}

//
// bids
//

const addBidQuery = `
insert into bids
(
	bidder,
	amount
)
values ($1, $2::numeric)
on conflict (bidder) do update
set
	amount     = bids.amount + excluded.amount,
	updated_at = now()
returning
	bidder,
	amount::text,
	created_at,
	updated_at
`

func (s *Store) AddBid(ctx context.Context, bidder string, amt sdkmath.Int) (*store.Bid, error) {
	if amt.IsNil() || amt.IsNegative() {
		return nil, fmt.Errorf("bid amount must be non-negative")
	}

	var b store.Bid
	if err := s.db.QueryRow(ctx, addBidQuery, bidder, amt.String()).Scan(
		&b.Bidder,
		&amount{&b.Amount},
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert bid: %w", err)
	}
	return &b, nil
}

const selectBidQuery = `
select
	bidder,
	amount::text,
	created_at,
	updated_at
from
	bids
where
	bidder = $1
`

func (s *Store) SelectBid(ctx context.Context, bidder string) (*store.Bid, error) {
	var b store.Bid
	if err := s.db.QueryRow(ctx, selectBidQuery, bidder).Scan(
		&b.Bidder,
		&amount{&b.Amount},
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, convertError(err)
	}
	return &b, nil
}

// Bidders are compared bytewise, to match Go string ordering.
const listBidsQuery = `
select
	bidder,
	amount::text,
	created_at,
	updated_at
from
	bids
order by
	bidder collate "C" %s
`

func (s *Store) ListBids(ctx context.Context, order store.Order) ([]*store.Bid, error) {
	direction := "asc"
	if order == store.Descending {
		direction = "desc"
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(listBidsQuery, direction))
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var bids []*store.Bid
	for rows.Next() {
		var b store.Bid
		if err = rows.Scan(
			&b.Bidder,
			&amount{&b.Amount},
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		bids = append(bids, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return bids, nil
}

const deleteBidQuery = `delete from bids where bidder = $1`

func (s *Store) DeleteBid(ctx context.Context, bidder string) error {
	if _, err := s.db.Exec(ctx, deleteBidQuery, bidder); err != nil {
		return fmt.Errorf("execute delete: %w", err)
	}
	return nil
}

const clearBidsQuery = `delete from bids`

func (s *Store) ClearBids(ctx context.Context) error {
	status, err := s.db.Exec(ctx, clearBidsQuery)
	if err != nil {
		return fmt.Errorf("clear bids: %w", err)
	}

	level.Debug(s.logger).Log("op", "ClearBids", "deleted", status.RowsAffected())

	return nil
}

//
// settlements
//

const insertSettlementQuery = `
insert into settlements
(
	id,
	period_name,
	denom,
	caller,
	accepted,
	transfers,
	withdrawn
)
values ($1, $2, $3, $4, $5, $6, $7::numeric)
returning
	created_at
`

func (s *Store) InsertSettlement(ctx context.Context, st *store.Settlement) error {
	if st.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("generate UUID: %w", err)
		}
		st.ID = id
	}

	accepted := st.Accepted
	if accepted == nil {
		accepted = []string{}
	}

	transfers := st.Transfers
	if transfers == nil {
		transfers = []store.Transfer{}
	}

	return s.db.QueryRow(ctx, insertSettlementQuery,
		st.ID,
		st.PeriodName,
		st.Denom,
		st.Caller,
		accepted,
		transfers,
		st.Withdrawn.String(),
	).Scan(&st.CreatedAt)
}

const listSettlementsQuery = `
select
	id,
	period_name,
	denom,
	caller,
	accepted,
	transfers,
	withdrawn::text,
	created_at
from
	settlements
order by
	seq desc
`

func (s *Store) ListSettlements(ctx context.Context) ([]*store.Settlement, error) {
	rows, err := s.db.Query(ctx, listSettlementsQuery)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var settlements []*store.Settlement
	for rows.Next() {
		var st store.Settlement
		if err = rows.Scan(
			&st.ID,
			&st.PeriodName,
			&st.Denom,
			&st.Caller,
			&st.Accepted,
			&st.Transfers,
			&amount{&st.Withdrawn},
			&st.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		settlements = append(settlements, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return settlements, nil
}

//
//
//

// amount scans a numeric column selected as text.
type amount struct{ V *sdkmath.Int }

// Scan implements the Scanner interface.
func (a *amount) Scan(value any) error {
	var s string
	switch t := value.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return fmt.Errorf("can't scan %T into amount", t)
	}

	i, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return fmt.Errorf("parse amount %q", s)
	}

	*a.V = i
	return nil
}

func convertError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) && pgerr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, pgerr.ConstraintName)
	}
	return err
}

//
//
//

type pgDebugLogAdapter struct{ log.Logger }

func (a *pgDebugLogAdapter) Log(ctx context.Context, pgxlevel pgx.LogLevel, msg string, data map[string]interface{}) {
	keyvals := []interface{}{
		"pgxlevel", pgxlevel.String(),
		"msg", msg,
	}
	for k, v := range data {
		keyvals = append(keyvals, k, fmt.Sprintf("%v", v))
	}
	level.Debug(a.Logger).Log(keyvals...)
}
