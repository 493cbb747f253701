package cash

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
)

// CoinMover is an interface for moving coins between accounts.
type CoinMover interface {
	// MoveCoins removes funds from the source account and adds them to
	// the destination account. This operation is atomic.
	MoveCoins(db weave.KVStore, src weave.Address, dest weave.Address, amount coin.Coin) error
}

// CoinMinter is an interface to create new coins.
type CoinMinter interface {
	CoinMint(db weave.KVStore, dest weave.Address, amount coin.Coin) error
}

// Controller is the functionality needed by cash.Handler and cash.Initializer.
// The escrow extension only needs the CoinMover part.
type Controller interface {
	CoinMover
	CoinMinter
	Balance(db weave.ReadOnlyKVStore, addr weave.Address) (coin.Coins, error)
}

// BaseController is a simple implementation of controller. Wallets are
// stored in a bucket.
type BaseController struct {
	bucket Bucket
}

var _ Controller = BaseController{}

// NewController returns a controller using given bucket to store wallets.
func NewController(bucket Bucket) BaseController {
	return BaseController{bucket: bucket}
}

// Balance returns the amount of all coins held by given address.
func (c BaseController) Balance(db weave.ReadOnlyKVStore, addr weave.Address) (coin.Coins, error) {
	return c.bucket.Balance(db, addr)
}

// MoveCoins moves the given amount from src to dest.
// If src doesn't exist, or doesn't have sufficient
// coins, it fails.
func (c BaseController) MoveCoins(db weave.KVStore, src weave.Address, dest weave.Address, amount coin.Coin) error {
	if !amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "non-positive amount: %s", amount)
	}
	if err := amount.Validate(); err != nil {
		return errors.Wrap(err, "amount")
	}

	sender, err := c.bucket.Balance(db, src)
	if err != nil {
		return errors.Wrap(err, "sender")
	}
	if sender.IsEmpty() {
		return errors.Wrapf(errors.ErrEmpty, "empty account %s", src)
	}
	if !sender.Contains(amount) {
		return errors.Wrapf(errors.ErrInsufficientAmount, "%s holds less than %s", src, amount)
	}
	if src.Equals(dest) {
		return nil
	}

	sender, err = sender.Subtract(amount)
	if err != nil {
		return err
	}
	if err := c.bucket.Save(db, src, sender); err != nil {
		return errors.Wrap(err, "save sender")
	}

	recipient, err := c.bucket.Balance(db, dest)
	if err != nil {
		return errors.Wrap(err, "recipient")
	}
	recipient, err = recipient.Add(amount)
	if err != nil {
		return err
	}
	return errors.Wrap(c.bucket.Save(db, dest, recipient), "save recipient")
}

// CoinMint attempts to add the given amount of coins to
// the destination address. Fails if it overflows the wallet.
func (c BaseController) CoinMint(db weave.KVStore, dest weave.Address, amount coin.Coin) error {
	if !amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "non-positive amount: %s", amount)
	}
	if err := amount.Validate(); err != nil {
		return errors.Wrap(err, "amount")
	}
	wallet, err := c.bucket.Balance(db, dest)
	if err != nil {
		return err
	}
	wallet, err = wallet.Add(amount)
	if err != nil {
		return err
	}
	return c.bucket.Save(db, dest, wallet)
}
