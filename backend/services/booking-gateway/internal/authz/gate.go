// Package authz decides which session may invoke which reservation or slot operation.
package authz

import (
	"fmt"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/policy"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// Action names a guarded operation.
type Action string

const (
	ActionCreate              Action = "reservation.create"
	ActionModify              Action = "reservation.modify"
	ActionCancel              Action = "reservation.cancel"
	ActionRead                Action = "reservation.read"
	ActionReadQR              Action = "reservation.read_qr"
	ActionListOwn             Action = "reservation.list_own"
	ActionApprove             Action = "reservation.approve"
	ActionConfirmArrival      Action = "reservation.confirm_arrival"
	ActionListPending         Action = "reservation.list_pending"
	ActionListStations        Action = "station.list"
	ActionSetSlotAvailability Action = "station.set_slot_availability"
	ActionReadFeed            Action = "station.read_feed"
)

// scope says what a rule has to match on the resource.
type scope int

const (
	scopeNone    scope = iota // role alone is enough
	scopeOwner                // resource.OwnerID must be the caller
	scopeStation              // resource.StationID must be operated by the caller
)

type rule struct {
	Role  session.Role
	Scope scope
}

// Listed rules are alternatives; any match grants.
var rules = map[Action][]rule{
	ActionCreate:              {{Role: session.RoleOwner, Scope: scopeOwner}},
	ActionModify:              {{Role: session.RoleOwner, Scope: scopeOwner}},
	ActionCancel:              {{Role: session.RoleOwner, Scope: scopeOwner}},
	ActionListOwn:             {{Role: session.RoleOwner, Scope: scopeOwner}},
	ActionReadQR:              {{Role: session.RoleOwner, Scope: scopeOwner}},
	ActionRead:                {{Role: session.RoleOwner, Scope: scopeOwner}, {Role: session.RoleOperator, Scope: scopeStation}},
	ActionApprove:             {{Role: session.RoleOperator, Scope: scopeStation}},
	ActionConfirmArrival:      {{Role: session.RoleOperator, Scope: scopeStation}},
	ActionSetSlotAvailability: {{Role: session.RoleOperator, Scope: scopeStation}},
	ActionReadFeed:            {{Role: session.RoleOperator, Scope: scopeStation}},
	ActionListPending:         {{Role: session.RoleOperator, Scope: scopeNone}},
	ActionListStations:        {{Role: session.RoleOperator, Scope: scopeNone}},
}

// Resource is the target of an action. Unused fields stay empty.
type Resource struct {
	OwnerID   string
	StationID string
}

// StationDirectory resolves station ownership.
type StationDirectory interface {
	OperatorOf(stationID string) (string, error)
}

// Gate evaluates rules against a session snapshot.
type Gate struct {
	stations StationDirectory
	clock    policy.Clock
}

// NewGate builds a Gate.
func NewGate(stations StationDirectory, clock policy.Clock) *Gate {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &Gate{stations: stations, clock: clock}
}

// Authorize reports whether sess may perform action on res.
func (g *Gate) Authorize(sess *session.Session, action Action, res Resource) bool {
	return g.Require(sess, action, res) == nil
}

// Require is Authorize with a typed error: Unauthenticated for a missing or
// expired session, Forbidden otherwise.
func (g *Gate) Require(sess *session.Session, action Action, res Resource) error {
	op := "authz." + string(action)
	if sess == nil || sess.Token == "" || sess.IsExpired(g.clock.Now()) {
		return apperr.New(apperr.Unauthenticated, op, "please sign in again")
	}
	if !sess.Role.Known() {
		return apperr.New(apperr.Forbidden, op, fmt.Sprintf("role %q is not allowed to do this", sess.RawRole))
	}

	candidates, ok := rules[action]
	if !ok {
		return apperr.New(apperr.Forbidden, op, "unknown action")
	}
	for _, r := range candidates {
		if r.Role != sess.Role {
			continue
		}
		if g.matches(r.Scope, sess, res) {
			return nil
		}
	}
	return apperr.New(apperr.Forbidden, op, "you are not allowed to do this")
}

// RequireRole checks the session and its role without a resource.
func (g *Gate) RequireRole(sess *session.Session, role session.Role) error {
	const op = "authz.role"
	if sess == nil || sess.Token == "" || sess.IsExpired(g.clock.Now()) {
		return apperr.New(apperr.Unauthenticated, op, "please sign in again")
	}
	if sess.Role != role {
		return apperr.New(apperr.Forbidden, op, "you are not allowed to do this")
	}
	return nil
}

func (g *Gate) matches(sc scope, sess *session.Session, res Resource) bool {
	switch sc {
	case scopeNone:
		return true
	case scopeOwner:
		return res.OwnerID != "" && res.OwnerID == sess.SubjectID
	case scopeStation:
		if res.StationID == "" || g.stations == nil {
			return false
		}
		operator, err := g.stations.OperatorOf(res.StationID)
		return err == nil && operator != "" && operator == sess.SubjectID
	}
	return false
}
