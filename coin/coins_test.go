package coin

import (
	"testing"

	"github.com/iov-one/escrowfactory/errors"
	"github.com/iov-one/escrowfactory/weavetest/assert"
)

func TestCombineCoins(t *testing.T) {
	cases := map[string]struct {
		inputs   []Coin
		isEmpty  bool
		has      []Coin
		dontHave []Coin
		wantErr  *errors.Error
	}{
		"nothing": {
			inputs:   nil,
			isEmpty:  true,
			has:      []Coin{NewCoin(0, 0, "IOV")},
			dontHave: []Coin{NewCoin(1, 0, "IOV")},
		},
		"single coin": {
			inputs:   []Coin{NewCoin(12, 0, "IOV")},
			has:      []Coin{NewCoin(12, 0, "IOV"), NewCoin(11, 999, "IOV")},
			dontHave: []Coin{NewCoin(12, 1, "IOV"), NewCoin(1, 0, "ETH")},
		},
		"duplicates are merged": {
			inputs:   []Coin{NewCoin(5, 500000000, "IOV"), NewCoin(0, 700, "ETH"), NewCoin(1, 500000000, "IOV")},
			has:      []Coin{NewCoin(7, 0, "IOV"), NewCoin(0, 700, "ETH")},
			dontHave: []Coin{NewCoin(7, 1, "IOV"), NewCoin(0, 701, "ETH")},
		},
		"zero sum drops the ticker": {
			inputs:  []Coin{NewCoin(3, 0, "IOV"), NewCoin(-3, 0, "IOV")},
			isEmpty: true,
		},
		"overflow": {
			inputs:  []Coin{NewCoin(MaxInt, 0, "IOV"), NewCoin(MaxInt, 0, "IOV")},
			wantErr: errors.ErrOverflow,
		},
		"negative total": {
			inputs:  []Coin{NewCoin(-1, 0, "IOV")},
			has:     []Coin{NewCoin(-2, 0, "IOV")},
			wantErr: nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			cs, err := CombineCoins(tc.inputs...)
			if tc.wantErr != nil {
				assert.IsErr(t, tc.wantErr, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, tc.isEmpty, cs.IsEmpty())
			for _, c := range tc.has {
				if !cs.Contains(c) {
					t.Fatalf("want %v to contain %v", cs, c)
				}
			}
			for _, c := range tc.dontHave {
				if cs.Contains(c) {
					t.Fatalf("want %v not to contain %v", cs, c)
				}
			}
		})
	}
}

func TestCoinsAddDoesNotMutate(t *testing.T) {
	orig, err := CombineCoins(NewCoin(5, 0, "IOV"))
	assert.Nil(t, err)

	sum, err := orig.Add(NewCoin(2, 0, "IOV"))
	assert.Nil(t, err)

	assert.Equal(t, NewCoin(5, 0, "IOV"), orig.Balance("IOV"))
	assert.Equal(t, NewCoin(7, 0, "IOV"), sum.Balance("IOV"))

	diff, err := sum.Subtract(NewCoin(7, 0, "IOV"))
	assert.Nil(t, err)
	if !diff.IsEmpty() {
		t.Fatalf("want empty set, got %v", diff)
	}
	assert.Equal(t, NewCoin(7, 0, "IOV"), sum.Balance("IOV"))
}

func TestCoinsCombine(t *testing.T) {
	a, err := CombineCoins(NewCoin(1, 0, "ABC"), NewCoin(2, 0, "IOV"))
	assert.Nil(t, err)
	b, err := CombineCoins(NewCoin(3, 0, "IOV"), NewCoin(0, 5, "XYZ"))
	assert.Nil(t, err)

	got, err := a.Combine(b)
	assert.Nil(t, err)
	want, err := CombineCoins(NewCoin(1, 0, "ABC"), NewCoin(5, 0, "IOV"), NewCoin(0, 5, "XYZ"))
	assert.Nil(t, err)

	if !got.Equals(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	assert.Nil(t, got.Validate())
	assert.Equal(t, "1 ABC, 5 IOV, 0.000000005 XYZ", got.String())
	assert.Equal(t, Coin{Ticker: "ETH"}, got.Balance("ETH"))
}

func TestCoinsValidate(t *testing.T) {
	cases := map[string]struct {
		coins   Coins
		wantErr *errors.Error
	}{
		"empty": {
			coins: nil,
		},
		"sorted": {
			coins: Coins{NewCoinp(1, 0, "ABC"), NewCoinp(1, 0, "IOV")},
		},
		"unsorted": {
			coins:   Coins{NewCoinp(1, 0, "IOV"), NewCoinp(1, 0, "ABC")},
			wantErr: errors.ErrState,
		},
		"duplicated ticker": {
			coins:   Coins{NewCoinp(1, 0, "IOV"), NewCoinp(1, 0, "IOV")},
			wantErr: errors.ErrState,
		},
		"zero value": {
			coins:   Coins{NewCoinp(0, 0, "IOV")},
			wantErr: errors.ErrState,
		},
		"nil coin": {
			coins:   Coins{nil},
			wantErr: errors.ErrEmpty,
		},
		"bad ticker": {
			coins:   Coins{NewCoinp(1, 0, "x")},
			wantErr: errors.ErrCurrency,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.coins.Validate()
			if tc.wantErr == nil {
				assert.Nil(t, err)
				return
			}
			assert.IsErr(t, tc.wantErr, err)
		})
	}
}

func TestCoinsIsNonNegative(t *testing.T) {
	cs := Coins{NewCoinp(1, 0, "ABC"), NewCoinp(-1, 0, "IOV")}
	if cs.IsNonNegative() {
		t.Fatal("negative coin not detected")
	}
	if !(Coins{}).IsNonNegative() {
		t.Fatal("empty set must be non negative")
	}
}
