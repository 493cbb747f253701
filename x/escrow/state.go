package escrow

import (
	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
)

// State is the lifecycle stage of an escrow.
type State int32

const (
	StateInvalid State = iota
	StateCreated
	StateFunded
	StateReleased
	StateRefunded
	StateDisputed
	StateResolved
)

var stateNames = map[State]string{
	StateInvalid:  "Invalid",
	StateCreated:  "Created",
	StateFunded:   "Funded",
	StateReleased: "Released",
	StateRefunded: "Refunded",
	StateDisputed: "Disputed",
	StateResolved: "Resolved",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Invalid"
}

// IsTerminal returns true for states that have no outgoing transition.
func (s State) IsTerminal() bool {
	return s == StateReleased || s == StateRefunded || s == StateResolved
}

// HoldsValue returns true for states in which the custody account holds the
// escrow amount.
func (s State) HoldsValue() bool {
	return s == StateFunded || s == StateDisputed
}

// Validate returns an error for a value outside of the defined states.
func (s State) Validate() error {
	if s <= StateInvalid || s > StateResolved {
		return errors.Wrapf(errors.ErrState, "unknown state %d", int32(s))
	}
	return nil
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(raw []byte) error {
	for v, n := range stateNames {
		if n == string(raw) {
			*s = v
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInput, "unknown state %q", raw)
}

// Action is an operation requested on an escrow.
type Action int32

const (
	ActionCreate Action = iota
	ActionFund
	ActionRelease
	ActionRefund
	ActionDispute
)

var actionNames = map[Action]string{
	ActionCreate:  "create",
	ActionFund:    "fund",
	ActionRelease: "release",
	ActionRefund:  "refund",
	ActionDispute: "dispute",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "unknown"
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(raw []byte) error {
	for v, n := range actionNames {
		if n == string(raw) {
			*a = v
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInput, "unknown action %q", raw)
}

// Role is the relation of an actor to an escrow.
type Role int32

const (
	RoleNone Role = iota
	RoleBuyer
	RoleSeller
	RoleArbiter
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleArbiter:
		return "arbiter"
	default:
		return "none"
	}
}

// ParseRole returns the role of given name.
func ParseRole(name string) (Role, error) {
	for _, r := range []Role{RoleBuyer, RoleSeller, RoleArbiter} {
		if r.String() == name {
			return r, nil
		}
	}
	return RoleNone, errors.Wrapf(errors.ErrInput, "unknown role %q", name)
}

// Transition is the outcome of applying an action to a state.
type Transition struct {
	From State
	To   State
	// Deposit is set when the actor pays the escrow amount into custody.
	Deposit bool
	// Payout is the party receiving the custody amount. RoleNone when no
	// value leaves the custody account.
	Payout Role
	// NeedsArbiter is set when the transition is only allowed for an
	// escrow with an arbiter.
	NeedsArbiter bool
}

type rule struct {
	from   State
	action Action
	roles  []Role
	result Transition
}

var rules = []rule{
	{
		from: StateCreated, action: ActionFund, roles: []Role{RoleBuyer},
		result: Transition{From: StateCreated, To: StateFunded, Deposit: true},
	},
	{
		from: StateFunded, action: ActionRelease, roles: []Role{RoleBuyer},
		result: Transition{From: StateFunded, To: StateReleased, Payout: RoleSeller},
	},
	{
		from: StateFunded, action: ActionRefund, roles: []Role{RoleSeller},
		result: Transition{From: StateFunded, To: StateRefunded, Payout: RoleBuyer},
	},
	{
		from: StateFunded, action: ActionDispute, roles: []Role{RoleBuyer, RoleSeller},
		result: Transition{From: StateFunded, To: StateDisputed, NeedsArbiter: true},
	},
	{
		from: StateDisputed, action: ActionRelease, roles: []Role{RoleArbiter},
		result: Transition{From: StateDisputed, To: StateResolved, Payout: RoleSeller},
	},
	{
		from: StateDisputed, action: ActionRefund, roles: []Role{RoleArbiter},
		result: Transition{From: StateDisputed, To: StateResolved, Payout: RoleBuyer},
	},
}

func findRule(from State, action Action) (rule, bool) {
	for _, r := range rules {
		if r.from == from && r.action == action {
			return r, true
		}
	}
	return rule{}, false
}

func (r rule) allows(role Role) bool {
	for _, want := range r.roles {
		if want == role {
			return true
		}
	}
	return false
}

// Apply returns the transition an actor with given role causes by applying
// the action to an escrow in the from state. It does not depend on anything
// but its arguments.
//
// ErrState is returned when the action is not defined for the state.
// ErrUnauthorized is returned when it is defined, but not for that role.
func Apply(from State, action Action, role Role) (Transition, error) {
	r, ok := findRule(from, action)
	if !ok {
		return Transition{}, errors.Wrapf(errors.ErrState, "cannot %s an escrow in %s state", action, from)
	}
	if !r.allows(role) {
		return Transition{}, errors.Wrapf(errors.ErrUnauthorized, "%s cannot %s an escrow in %s state", role, action, from)
	}
	return r.result, nil
}

// RoleOf returns the role of the actor in the escrow. Parties of an escrow
// are distinct, so an actor has at most one role.
func RoleOf(e *Escrow, actor weave.Address) Role {
	switch {
	case len(actor) == 0:
		return RoleNone
	case e.Buyer.Equals(actor):
		return RoleBuyer
	case e.Seller.Equals(actor):
		return RoleSeller
	case len(e.Arbiter) != 0 && e.Arbiter.Equals(actor):
		return RoleArbiter
	default:
		return RoleNone
	}
}

// Authorize returns true if the actor may request the action on the escrow
// in its current state.
func Authorize(action Action, e *Escrow, actor weave.Address) bool {
	r, ok := findRule(e.State, action)
	return ok && r.allows(RoleOf(e, actor))
}
