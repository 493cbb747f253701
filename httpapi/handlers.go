package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/app"
	"github.com/iov-one/escrowfactory/coin"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/indexer"
	"github.com/iov-one/escrowfactory/orm"
	"github.com/iov-one/escrowfactory/x/escrow"
	"github.com/iov-one/escrowfactory/x/sigs"
)

// EscrowView is the JSON representation of an escrow, with its sequence
// number as the id.
type EscrowView struct {
	ID int64 `json:"id"`
	*escrow.Escrow
}

func viewOf(e *escrow.Escrow) EscrowView {
	return EscrowView{ID: orm.DecodeSequence(e.ID), Escrow: e}
}

// TxResponse is the JSON representation of a transaction result.
type TxResponse struct {
	Code   uint32 `json:"code"`
	Log    string `json:"log,omitempty"`
	Data   string `json:"data,omitempty"`
	Height int64  `json:"height,omitempty"`
	Hash   string `json:"hash"`
	// EscrowID is set for escrow messages.
	EscrowID int64 `json:"escrow_id,omitempty"`
}

func txResponse(res *app.TxResult) TxResponse {
	resp := TxResponse{
		Code:   res.Code,
		Log:    res.Log,
		Data:   hex.EncodeToString(res.Data),
		Height: res.Height,
		Hash:   hex.EncodeToString(res.Hash),
	}
	if orm.ValidateSequence(res.Data) == nil {
		resp.EscrowID = orm.DecodeSequence(res.Data)
	}
	return resp
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, http.StatusOK, struct {
		ChainID string `json:"chain_id"`
		Height  int64  `json:"height"`
	}{
		ChainID: s.Ledger.ChainID(),
		Height:  s.Ledger.Height(),
	})
}

func (s *server) factory(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, http.StatusOK, struct {
		Address weave.Address `json:"address"`
		ChainID string        `json:"chain_id"`
		Height  int64         `json:"height"`
	}{
		Address: escrow.FactoryAddress(),
		ChainID: s.Ledger.ChainID(),
		Height:  s.Ledger.Height(),
	})
}

// submitTx delivers a transaction. With the check=true query parameter the
// transaction is only checked against the current state.
func (s *server) submitTx(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize+1))
	if err != nil {
		JSONErr(w, http.StatusBadRequest, "Cannot read request body.")
		return
	}
	if len(raw) == 0 {
		JSONErr(w, http.StatusBadRequest, "Empty transaction.")
		return
	}
	if len(raw) > maxTxSize {
		JSONErr(w, http.StatusRequestEntityTooLarge, "Transaction too big.")
		return
	}

	var res *app.TxResult
	if r.URL.Query().Get("check") == "true" {
		res, err = s.Ledger.Check(r.Context(), raw)
	} else {
		res, err = s.Ledger.Submit(r.Context(), raw)
	}
	if err != nil {
		s.Logger.Error("cannot process transaction", "err", err)
		JSONErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	code := http.StatusOK
	if !res.IsOK() {
		code = http.StatusUnprocessableEntity
	}
	JSONResp(w, code, txResponse(res))
}

func (s *server) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := escrowID(w, r)
	if !ok {
		return
	}
	var e *escrow.Escrow
	err := s.Ledger.View(func(db weave.ReadOnlyKVStore) (err error) {
		e, err = s.Factory.Get(db, id)
		return err
	})
	if err != nil {
		s.queryErr(w, err)
		return
	}
	JSONResp(w, http.StatusOK, viewOf(e))
}

// listEscrows requires exactly one of the buyer, seller or arbiter query
// parameters.
func (s *server) listEscrows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		role  escrow.Role
		value string
		n     int
	)
	for _, name := range []string{"buyer", "seller", "arbiter"} {
		if v := q.Get(name); v != "" {
			n++
			role, _ = escrow.ParseRole(name)
			value = v
		}
	}
	if n != 1 {
		JSONErr(w, http.StatusBadRequest, "Exactly one of buyer, seller or arbiter filters must be used.")
		return
	}
	addr, err := weave.ParseAddress(value)
	if err != nil || addr == nil {
		JSONErr(w, http.StatusBadRequest, "Filter must be a valid address value.")
		return
	}

	var found []*escrow.Escrow
	err = s.Ledger.View(func(db weave.ReadOnlyKVStore) (err error) {
		found, err = s.Factory.ByParty(db, role, addr)
		return err
	})
	if err != nil {
		s.queryErr(w, err)
		return
	}
	objects := make([]EscrowView, len(found))
	for i, e := range found {
		objects[i] = viewOf(e)
	}
	JSONResp(w, http.StatusOK, struct {
		Objects []EscrowView `json:"objects"`
	}{
		Objects: objects,
	})
}

func (s *server) escrowHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := escrowID(w, r)
	if !ok {
		return
	}
	var (
		history []*escrow.TransitionEvent
		state   escrow.State
	)
	err := s.Ledger.View(func(db weave.ReadOnlyKVStore) (err error) {
		history, err = s.Factory.History(db, id)
		if err != nil {
			return err
		}
		state, err = escrow.Replay(history)
		return err
	})
	if err != nil {
		s.queryErr(w, err)
		return
	}
	JSONResp(w, http.StatusOK, struct {
		State       escrow.State              `json:"state"`
		Transitions []*escrow.TransitionEvent `json:"transitions"`
	}{
		State:       state,
		Transitions: history,
	})
}

func (s *server) escrowEvents(w http.ResponseWriter, r *http.Request) {
	if s.Index == nil {
		unavailable(w, r)
		return
	}
	id, ok := escrowID(w, r)
	if !ok {
		return
	}
	found, err := s.Index.Transitions(id)
	if err != nil {
		s.queryErr(w, err)
		return
	}
	if found == nil {
		found = []indexer.Transition{}
	}
	JSONResp(w, http.StatusOK, struct {
		Objects []indexer.Transition `json:"objects"`
	}{
		Objects: found,
	})
}

func (s *server) wallet(w http.ResponseWriter, r *http.Request) {
	addr, err := weave.ParseAddress(chi.URLParam(r, "address"))
	if err != nil || addr == nil {
		JSONErr(w, http.StatusBadRequest, "Address must be a valid address value.")
		return
	}
	var coins coin.Coins
	err = s.Ledger.View(func(db weave.ReadOnlyKVStore) (err error) {
		coins, err = s.Bank.Balance(db, addr)
		return err
	})
	if err != nil {
		s.queryErr(w, err)
		return
	}
	if coins == nil {
		coins = coin.Coins{}
	}
	JSONResp(w, http.StatusOK, struct {
		Address weave.Address `json:"address"`
		Coins   coin.Coins    `json:"coins"`
	}{
		Address: addr,
		Coins:   coins,
	})
}

// signer returns the sequence value the next signature of given address
// must carry. An address that never signed anything has sequence zero.
func (s *server) signer(w http.ResponseWriter, r *http.Request) {
	addr, err := weave.ParseAddress(chi.URLParam(r, "address"))
	if err != nil || addr == nil {
		JSONErr(w, http.StatusBadRequest, "Address must be a valid address value.")
		return
	}
	var user sigs.UserData
	err = s.Ledger.View(func(db weave.ReadOnlyKVStore) error {
		return sigs.NewBucket().One(db, addr, &user)
	})
	if err != nil && !errors.ErrNotFound.Is(err) {
		s.queryErr(w, err)
		return
	}
	JSONResp(w, http.StatusOK, SignerView{
		Address:  addr,
		Sequence: user.Sequence,
	})
}

// SignerView is the JSON representation of a signer state.
type SignerView struct {
	Address  weave.Address `json:"address"`
	Sequence int64         `json:"sequence"`
}

// escrowID reads the escrow sequence number from the URL. It writes an
// error response and returns false if the value is not valid.
func escrowID(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n < 1 {
		JSONErr(w, http.StatusBadRequest, "Escrow id must be a positive integer.")
		return nil, false
	}
	return orm.EncodeSequence(n), true
}

func (s *server) queryErr(w http.ResponseWriter, err error) {
	switch {
	case errors.ErrNotFound.Is(err):
		JSONErr(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	case errors.ErrInput.Is(err), errors.ErrEmpty.Is(err):
		JSONErr(w, http.StatusBadRequest, err.Error())
	default:
		s.Logger.Error("query failed", "err", err)
		JSONErr(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// JSONResp write content as JSON encoded response.
func JSONResp(w http.ResponseWriter, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "\t")
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"errors":["Internal Server Error"]}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// JSONErr write single error as JSON encoded response.
func JSONErr(w http.ResponseWriter, code int, errText string) {
	JSONErrs(w, code, []string{errText})
}

// JSONErrs write multiple errors as JSON encoded response.
func JSONErrs(w http.ResponseWriter, code int, errs []string) {
	resp := struct {
		Errors []string `json:"errors"`
	}{
		Errors: errs,
	}
	JSONResp(w, code, resp)
}
