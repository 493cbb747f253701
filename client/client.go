/*
Package client provides access to an escrowd gateway over HTTP.

Client is the transport. Signer keeps track of the sequence of a single
key and turns messages into signed transactions.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/httpapi"
	"github.com/iov-one/escrowfactory/x/escrow"
)

// Client talks to a single gateway.
type Client struct {
	apiURL string
	cli    *http.Client
}

// NewClient returns a client of the gateway served at given URL. A nil
// http client is replaced with one using a 10 seconds timeout.
func NewClient(apiURL string, cli *http.Client) *Client {
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		cli:    cli,
	}
}

// Status is the state of the ledger as reported by the gateway.
type Status struct {
	ChainID string `json:"chain_id"`
	Height  int64  `json:"height"`
}

// Status returns the chain id and the current height.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/healthz", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FactoryAddress returns the address of the escrow factory.
func (c *Client) FactoryAddress(ctx context.Context) (weave.Address, error) {
	var resp struct {
		Address weave.Address `json:"address"`
	}
	if err := c.get(ctx, "/factory", &resp); err != nil {
		return nil, err
	}
	return resp.Address, nil
}

// Escrow returns the escrow with given sequence number.
func (c *Client) Escrow(ctx context.Context, id int64) (*httpapi.EscrowView, error) {
	var e httpapi.EscrowView
	if err := c.get(ctx, fmt.Sprintf("/escrows/%d", id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EscrowsOf returns all escrows in which given address has given role.
func (c *Client) EscrowsOf(ctx context.Context, role escrow.Role, addr weave.Address) ([]httpapi.EscrowView, error) {
	q := url.Values{}
	q.Set(role.String(), addr.String())
	var resp struct {
		Objects []httpapi.EscrowView `json:"objects"`
	}
	if err := c.get(ctx, "/escrows?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

// History is the list of transitions of an escrow and the state they lead
// to.
type History struct {
	State       escrow.State              `json:"state"`
	Transitions []*escrow.TransitionEvent `json:"transitions"`
}

// History returns all transitions of an escrow, oldest first.
func (c *Client) History(ctx context.Context, id int64) (*History, error) {
	var h History
	if err := c.get(ctx, fmt.Sprintf("/escrows/%d/history", id), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Balance returns all coins held by given address.
func (c *Client) Balance(ctx context.Context, addr weave.Address) (coin.Coins, error) {
	var resp struct {
		Coins coin.Coins `json:"coins"`
	}
	if err := c.get(ctx, "/wallets/"+addr.String(), &resp); err != nil {
		return nil, err
	}
	return resp.Coins, nil
}

// Sequence returns the sequence value the next signature of given address
// must carry.
func (c *Client) Sequence(ctx context.Context, addr weave.Address) (int64, error) {
	var resp httpapi.SignerView
	if err := c.get(ctx, "/signers/"+addr.String(), &resp); err != nil {
		return 0, err
	}
	return resp.Sequence, nil
}

// SubmitTx delivers a transaction. A transaction rejected by the ledger
// gives an error wrapping the registered error of the rejection code. The
// response is returned in both cases.
func (c *Client) SubmitTx(ctx context.Context, tx *app.Tx) (*httpapi.TxResponse, error) {
	return c.postTx(ctx, "/tx", tx)
}

// CheckTx runs a transaction against the current state without persisting
// it.
func (c *Client) CheckTx(ctx context.Context, tx *app.Tx) (*httpapi.TxResponse, error) {
	return c.postTx(ctx, "/tx?check=true", tx)
}

func (c *Client) postTx(ctx context.Context, path string, tx *app.Tx) (*httpapi.TxResponse, error) {
	raw, err := weave.Marshal(tx)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tx")
	}
	req, err := http.NewRequest("POST", c.apiURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var res httpapi.TxResponse
	status, err := c.do(ctx, req, &res)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity || res.Code != 0 {
		return &res, errors.Wrap(errors.FromCode(res.Code), res.Log)
	}
	return &res, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequest("GET", c.apiURL+path, nil)
	if err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	_, err = c.do(ctx, req, dest)
	return err
}

// do sends the request and decodes a JSON response. Error responses are
// turned into errors, using ErrNotFound and ErrInput where the status code
// allows.
func (c *Client) do(ctx context.Context, req *http.Request, dest interface{}) (int, error) {
	req = req.WithContext(ctx)
	resp, err := c.cli.Do(req)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNetwork, "%s %s: %s", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, 1e6)
	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusUnprocessableEntity:
		if err := json.NewDecoder(body).Decode(dest); err != nil {
			return resp.StatusCode, errors.Wrapf(errors.ErrInput, "decode response: %s", err)
		}
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, errors.Wrap(errors.ErrNotFound, req.URL.Path)
	case resp.StatusCode < 500:
		return resp.StatusCode, errors.Wrapf(errors.ErrInput, "bad response: %d %s", resp.StatusCode, readErrors(body))
	default:
		return resp.StatusCode, errors.Wrapf(errors.ErrNetwork, "bad response: %d %s", resp.StatusCode, readErrors(body))
	}
}

func readErrors(r io.Reader) string {
	var payload struct {
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return ""
	}
	return strings.Join(payload.Errors, ", ")
}
