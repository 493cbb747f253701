/*
Package indexer keeps a queryable copy of committed escrow transitions in
an sqlite database.

The ledger state is the source of truth. The index is written after each
commit. Rebuild recreates it from the escrow history stored in the ledger,
which also covers escrows loaded from genesis.
*/
package indexer

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/x/escrow"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transition is a single indexed escrow transition.
type Transition struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	EscrowID  string    `gorm:"index;size:16" json:"escrow_id"`
	Height    int64     `gorm:"index" json:"height"`
	TxHash    string    `gorm:"size:64" json:"tx_hash"`
	FromState string    `json:"from"`
	ToState   string    `gorm:"index" json:"to"`
	Action    string    `json:"action"`
	Actor     string    `gorm:"index;size:40" json:"actor"`
	Amount    string    `json:"amount,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Time      time.Time `json:"time"`
}

// Store is the transition index.
type Store struct {
	db *gorm.DB
}

var _ app.CommitListener = (*Store)(nil)

// Open returns an index stored in given file. The directory is created if
// needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "index directory: %s", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open index: %s", err)
	}
	if err := db.AutoMigrate(&Transition{}); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "migrate index: %s", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return sqlDB.Close()
}

// OnCommit indexes all escrow transitions of a block in a single database
// transaction. Other events are ignored.
func (s *Store) OnCommit(ctx weave.Context, block app.Block) error {
	var rows []Transition
	for _, ev := range block.Events {
		if t, ok := ev.(*escrow.TransitionEvent); ok {
			rows = append(rows, row(block, t))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return errors.Wrapf(errors.ErrDatabase, "index block %d: %s", block.Height, err)
	}
	return nil
}

// Rebuild replaces the content of the index with the history of every
// escrow found in given state. Transaction hashes are not part of the
// history and stay empty.
func (s *Store) Rebuild(db weave.ReadOnlyKVStore, registry *escrow.Registry) (int, error) {
	escrows, err := registry.All(db)
	if err != nil {
		return 0, errors.Wrap(err, "load escrows")
	}
	var rows []Transition
	for _, e := range escrows {
		history, err := registry.Events(db, e.ID)
		if err != nil {
			return 0, errors.Wrapf(err, "history of %x", e.ID)
		}
		for _, ev := range history {
			rows = append(rows, row(app.Block{Height: ev.Height}, ev))
		}
	}
	// id order must follow the order of commits
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Height < rows[j].Height })

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Transition{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		return 0, errors.Wrapf(errors.ErrDatabase, "rebuild index: %s", err)
	}
	return len(rows), nil
}

// Count returns the number of indexed transitions.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&Transition{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return n, nil
}

func row(block app.Block, t *escrow.TransitionEvent) Transition {
	r := Transition{
		EscrowID:  hex.EncodeToString(t.EscrowID),
		Height:    block.Height,
		FromState: t.From.String(),
		ToState:   t.To.String(),
		Action:    t.Action.String(),
		Actor:     t.Actor.String(),
		Time:      t.Time.Time(),
	}
	if len(block.TxHash) != 0 {
		r.TxHash = hex.EncodeToString(block.TxHash)
	}
	if t.Amount != nil && !t.Amount.IsZero() {
		r.Amount = t.Amount.String()
	}
	if len(t.Recipient) != 0 {
		r.Recipient = t.Recipient.String()
	}
	return r
}

// Transitions returns all indexed transitions of an escrow, oldest first.
func (s *Store) Transitions(escrowID []byte) ([]Transition, error) {
	var res []Transition
	err := s.db.Where("escrow_id = ?", hex.EncodeToString(escrowID)).
		Order("id asc").
		Find(&res).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return res, nil
}

// ByActor returns up to limit most recent transitions executed by given
// address.
func (s *Store) ByActor(actor weave.Address, limit int) ([]Transition, error) {
	var res []Transition
	err := s.db.Where("actor = ?", actor.String()).
		Order("id desc").
		Limit(limit).
		Find(&res).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return res, nil
}

// Height returns the height of the most recent indexed transition, or zero
// if the index is empty.
func (s *Store) Height() (int64, error) {
	var h int64
	err := s.db.Model(&Transition{}).Select("COALESCE(MAX(height), 0)").Scan(&h).Error
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return h, nil
}
