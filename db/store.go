// Package db implements the persistence component (C5, spec.md §4.5):
// a single SQLite-backed table, rfc003_swaps, holding every swap's
// immutable-after-decision record.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/comit-network/cnd/swap"
	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the exclusive handle to one cnd.sqlite file. Only one
// process may hold it at a time: Open takes a file lock on the
// datadir, and every statement inside the process runs under mu in
// addition to SetMaxOpenConns(1) — the spec's "database connection
// held under an exclusive mutex" (§5).
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	lock *flock.Flock
}

// Open creates or opens the sqlite database at path, taking an
// exclusive lock on path+".lock" so a second cnd process pointed at
// the same datadir fails fast instead of corrupting the file.
func Open(path string) (*Store, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("db: locking %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("db: %s is already locked by another process", path)
	}

	handle, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("db: opening %s: %w", path, err)
	}
	handle.SetMaxOpenConns(1)

	if err := migrate(handle); err != nil {
		handle.Close()
		lock.Unlock()
		return nil, fmt.Errorf("db: migrating %s: %w", path, err)
	}

	return &Store{db: handle, lock: lock}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// InsertProposed persists rec at SwapCommunicationState Proposed, the
// first write in a swap's life (spec.md §4.5 "insert-at-Proposed
// inside a transaction").
func (s *Store) InsertProposed(ctx context.Context, rec swap.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := toRow(rec)
	alphaLedger, err := json.Marshal(r.AlphaLedger)
	if err != nil {
		return err
	}
	betaLedger, err := json.Marshal(r.BetaLedger)
	if err != nil {
		return err
	}
	alphaAsset, err := json.Marshal(r.AlphaAsset)
	if err != nil {
		return err
	}
	betaAsset, err := json.Marshal(r.BetaAsset)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rfc003_swaps (
			swap_id, role, counterparty_peer_id,
			alpha_ledger, beta_ledger, alpha_asset, beta_asset,
			alpha_expiry, beta_expiry, secret_hash,
			alpha_refund_identity, beta_redeem_identity,
			decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SwapID, int64(r.Role), r.CounterpartyPeer[:],
		alphaLedger, betaLedger, alphaAsset, betaAsset,
		r.AlphaExpiry, r.BetaExpiry, r.SecretHash.String(),
		r.AlphaRefundIdentity, r.BetaRedeemIdentity,
		int64(r.Decision), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db: inserting swap %s: %w", r.SwapID, err)
	}
	return tx.Commit()
}

// RecordAccept updates the decision column to Accepted and fills in
// the two identities Accept carries. Per spec.md §4.5 the record is
// immutable after this point.
func (s *Store) RecordAccept(ctx context.Context, id swap.ID, accept swap.Accept) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE rfc003_swaps
		SET decision = ?, alpha_redeem_identity = ?, beta_refund_identity = ?
		WHERE swap_id = ?`,
		int64(swap.Accepted), accept.AlphaLedgerRedeemIdentity.String(), accept.BetaLedgerRefundIdentity.String(), id,
	)
	if err != nil {
		return fmt.Errorf("db: recording accept for swap %s: %w", id, err)
	}
	return nil
}

// RecordDecline updates the decision column to Declined and records
// the reason.
func (s *Store) RecordDecline(ctx context.Context, id swap.ID, decline swap.Decline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE rfc003_swaps
		SET decision = ?, decline_reason = ?
		WHERE swap_id = ?`,
		int64(swap.Declined), string(decline.Reason), id,
	)
	if err != nil {
		return fmt.Errorf("db: recording decline for swap %s: %w", id, err)
	}
	return nil
}

// MarkCompleted records that both of a swap's ledger states have
// reached a terminal phase, so a future restart's LoadNonTerminalAccepted
// does not resume watchers for it. This column is not named in spec.md
// §4.5's column list — see DESIGN.md for why it's required regardless:
// the table otherwise has no way to know which accepted swaps are done.
func (s *Store) MarkCompleted(ctx context.Context, id swap.ID, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE rfc003_swaps SET completed_at = ? WHERE swap_id = ?`, completedAt, id)
	if err != nil {
		return fmt.Errorf("db: marking swap %s completed: %w", id, err)
	}
	return nil
}

// Get loads one swap record by id.
func (s *Store) Get(ctx context.Context, id swap.ID) (swap.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.scanRow(s.db.QueryRowContext(ctx, selectColumns+` WHERE swap_id = ?`, id))
	if err != nil {
		return swap.Record{}, err
	}
	return fromRow(r)
}

// LoadNonTerminalAccepted returns every swap with decision=accepted
// that has not been marked completed — the set the node reinstalls
// state machines for and resumes watchers against on startup, with
// cutoff_timestamp = created_at (spec.md §4.5).
func (s *Store) LoadNonTerminalAccepted(ctx context.Context) ([]swap.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE decision = ? AND completed_at IS NULL`, int64(swap.Accepted))
	if err != nil {
		return nil, fmt.Errorf("db: loading non-terminal accepted swaps: %w", err)
	}
	defer rows.Close()

	var out []swap.Record
	for rows.Next() {
		r, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		rec, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT swap_id, role, counterparty_peer_id,
	       alpha_ledger, beta_ledger, alpha_asset, beta_asset,
	       alpha_expiry, beta_expiry, secret_hash,
	       alpha_refund_identity, beta_redeem_identity,
	       alpha_redeem_identity, beta_refund_identity,
	       decision, decline_reason, completed_at, created_at
	FROM rfc003_swaps`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanRow(sc scanner) (row, error) {
	var (
		r                                       row
		roleInt, decisionInt                    int64
		counterpartyPeer                        []byte
		alphaLedger, betaLedger                 []byte
		alphaAsset, betaAsset                   []byte
		secretHashHex                           string
		alphaRedeemIdentity, betaRefundIdentity sql.NullString
		declineReason                           sql.NullString
		completedAt                             sql.NullTime
	)

	err := sc.Scan(
		&r.SwapID, &roleInt, &counterpartyPeer,
		&alphaLedger, &betaLedger, &alphaAsset, &betaAsset,
		&r.AlphaExpiry, &r.BetaExpiry, &secretHashHex,
		&r.AlphaRefundIdentity, &r.BetaRedeemIdentity,
		&alphaRedeemIdentity, &betaRefundIdentity,
		&decisionInt, &declineReason, &completedAt, &r.CreatedAt,
	)
	if err != nil {
		return row{}, err
	}

	r.Role = swap.Role(roleInt)
	r.Decision = swap.CommunicationPhase(decisionInt)
	copy(r.CounterpartyPeer[:], counterpartyPeer)

	if err := json.Unmarshal(alphaLedger, &r.AlphaLedger); err != nil {
		return row{}, fmt.Errorf("db: alpha_ledger: %w", err)
	}
	if err := json.Unmarshal(betaLedger, &r.BetaLedger); err != nil {
		return row{}, fmt.Errorf("db: beta_ledger: %w", err)
	}
	if err := json.Unmarshal(alphaAsset, &r.AlphaAsset); err != nil {
		return row{}, fmt.Errorf("db: alpha_asset: %w", err)
	}
	if err := json.Unmarshal(betaAsset, &r.BetaAsset); err != nil {
		return row{}, fmt.Errorf("db: beta_asset: %w", err)
	}

	secretHashBytes, err := hex.DecodeString(secretHashHex)
	if err != nil || len(secretHashBytes) != 32 {
		return row{}, fmt.Errorf("db: invalid secret_hash %q", secretHashHex)
	}
	copy(r.SecretHash[:], secretHashBytes)

	if alphaRedeemIdentity.Valid {
		r.AlphaRedeemIdentity = &alphaRedeemIdentity.String
	}
	if betaRefundIdentity.Valid {
		r.BetaRefundIdentity = &betaRefundIdentity.String
	}
	if declineReason.Valid {
		reason := swap.DeclineReason(declineReason.String)
		r.DeclineReason = &reason
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}

	return r, nil
}
