/*
Package escrow implements the escrow factory.

> An escrow is a financial arrangement where a third party holds and regulates
> payment of the funds required for two parties involved in a given transaction.

Every escrow binds a buyer and a seller, and optionally an arbiter. The
buyer deposits the agreed amount into a custody account owned by the escrow
condition. The buyer can later release it to the seller, or the seller can
refund it to the buyer. Either of them can raise a dispute, which the
arbiter resolves by a release or a refund.

	Created --fund--> Funded --release--> Released
	                    |    --refund---> Refunded
	                    |
	                 dispute
	                    v
	                 Disputed --release|refund--> Resolved

Escrows are never deleted. Terminal escrows stay in the registry together
with the history of their transitions.
*/
package escrow
