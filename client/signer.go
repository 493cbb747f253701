package client

import (
	"context"
	"sync"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/crypto"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/httpapi"
	"github.com/iov-one/escrowfactory/x/sigs"
)

// Signer signs and submits transactions of a single key. The sequence is
// fetched from the gateway on first use and tracked locally afterwards.
type Signer struct {
	cli     *Client
	key     *crypto.PrivateKey
	chainID string

	mu     sync.Mutex
	seq    int64
	synced bool
}

// NewSigner returns a signer using given key for the chain with given id.
func NewSigner(cli *Client, key *crypto.PrivateKey, chainID string) *Signer {
	return &Signer{cli: cli, key: key, chainID: chainID}
}

// Address returns the address of the signing key.
func (s *Signer) Address() weave.Address {
	return s.key.PublicKey().Address()
}

// Sign returns a transaction of given message signed with the next
// sequence value. The sequence is not consumed until the transaction is
// accepted.
func (s *Signer) Sign(ctx context.Context, msg weave.Msg, memo string) (*app.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sign(ctx, msg, memo)
}

func (s *Signer) sign(ctx context.Context, msg weave.Msg, memo string) (*app.Tx, error) {
	if !s.synced {
		seq, err := s.cli.Sequence(ctx, s.Address())
		if err != nil {
			return nil, errors.Wrap(err, "load sequence")
		}
		s.seq = seq
		s.synced = true
	}
	tx, err := app.NewTx(msg, memo)
	if err != nil {
		return nil, err
	}
	sig, err := sigs.SignTx(s.key, tx, s.chainID, s.seq)
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	tx.Signatures = append(tx.Signatures, sig)
	return tx, nil
}

// Submit signs and delivers given message. On success the local sequence
// is incremented. A rejection caused by a wrong sequence resets it, so that
// the next call fetches the value again.
func (s *Signer) Submit(ctx context.Context, msg weave.Msg, memo string) (*httpapi.TxResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sign(ctx, msg, memo)
	if err != nil {
		return nil, err
	}
	res, err := s.cli.SubmitTx(ctx, tx)
	switch {
	case err == nil:
		s.seq++
	case sigs.ErrInvalidSequence.Is(err):
		s.synced = false
	}
	return res, err
}
