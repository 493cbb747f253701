/*
Package cash keeps the coin balances of ledger accounts and moves value
between them.

There is no logic in the coins, except that the balance of any coin may
not go below zero. Escrow custody accounts are plain wallets owned by a
condition address, so the escrow extension moves value through the same
CoinMover as a regular transfer does.
*/
package cash
