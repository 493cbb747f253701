/*
Package x contains the shared pieces of the ledger extensions.

Extensions implement a Handler or a Decorator and are combined together by
the app package. The sub-packages are cash (wallets and value transfer),
sigs (signature verification and replay protection) and escrow (the escrow
factory).
*/
package x
