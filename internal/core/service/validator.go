package service

import (
	"github.com/rl1809/store-transfer/internal/core/domain"
)

var transitionGraph = map[domain.TransferStatus][]domain.TransferStatus{
	domain.TransferStatusRequested: {domain.TransferStatusAccepted, domain.TransferStatusRejected, domain.TransferStatusCancelled},
	domain.TransferStatusAccepted:  {domain.TransferStatusShipped, domain.TransferStatusCancelled},
	domain.TransferStatusShipped:   {domain.TransferStatusReceived},
	domain.TransferStatusRejected:  {},
	domain.TransferStatusReceived:  {},
	domain.TransferStatusCancelled: {},
}

// Party names which side of a transfer may enact a transition.
type Party int

const (
	PartySendingStore Party = iota + 1
	PartyReceivingStore
	PartyEitherStore
	PartyInitiator
)

// PartyRule binds a transition to the party allowed to perform it. An empty
// From matches any current status.
type PartyRule struct {
	From  domain.TransferStatus
	To    domain.TransferStatus
	Party Party
}

// TransitionPolicy is the single role-to-transition table.
type TransitionPolicy struct {
	// EnactingRoles may change transfer status at all.
	EnactingRoles []domain.Role
	// CrossStoreRoles skip the party check.
	CrossStoreRoles []domain.Role
	Rules           []PartyRule
}

var DefaultTransitionPolicy = TransitionPolicy{
	EnactingRoles:   []domain.Role{domain.RoleStoreOperations, domain.RoleStoreManager, domain.RoleRegionalManager},
	CrossStoreRoles: []domain.Role{domain.RoleRegionalManager},
	Rules: []PartyRule{
		{To: domain.TransferStatusAccepted, Party: PartyReceivingStore},
		{To: domain.TransferStatusRejected, Party: PartyReceivingStore},
		{To: domain.TransferStatusShipped, Party: PartySendingStore},
		{To: domain.TransferStatusReceived, Party: PartyReceivingStore},
		{From: domain.TransferStatusRequested, To: domain.TransferStatusCancelled, Party: PartyInitiator},
		{From: domain.TransferStatusAccepted, To: domain.TransferStatusCancelled, Party: PartyEitherStore},
	},
}

type StatusValidator struct {
	policy TransitionPolicy
}

func NewStatusValidator(policy TransitionPolicy) *StatusValidator {
	return &StatusValidator{policy: policy}
}

// IsValidTransition reports whether requested is reachable from current in one
// step. Re-applying the current status is always valid.
func (v *StatusValidator) IsValidTransition(current, requested domain.TransferStatus) bool {
	if current == requested {
		_, known := transitionGraph[current]
		return known
	}
	for _, next := range transitionGraph[current] {
		if next == requested {
			return true
		}
	}
	return false
}

// CanUserUpdateStatus checks the graph and the actor's role claims only.
func (v *StatusValidator) CanUserUpdateStatus(actor domain.Principal, current, requested domain.TransferStatus) bool {
	if !v.IsValidTransition(current, requested) {
		return false
	}
	if !actor.HasAnyRole(v.policy.EnactingRoles...) {
		return false
	}
	if current == requested {
		return true
	}
	_, ok := v.rule(current, requested)
	return ok
}

// Authorize runs the full check for a concrete transfer: graph, roles, then
// which side of the transfer the actor belongs to.
func (v *StatusValidator) Authorize(actor domain.Principal, transfer *domain.TransferRequest, requested domain.TransferStatus) error {
	current := transfer.Status
	if !v.IsValidTransition(current, requested) {
		return &domain.TransitionError{Current: current, Requested: requested, Err: domain.ErrInvalidTransition}
	}
	if !v.CanUserUpdateStatus(actor, current, requested) {
		return &domain.TransitionError{Current: current, Requested: requested, Err: domain.ErrUnauthorizedTransition}
	}
	if current == requested || actor.HasAnyRole(v.policy.CrossStoreRoles...) {
		return nil
	}

	rule, _ := v.rule(current, requested)
	if !partyMatches(rule.Party, actor, transfer) {
		return &domain.TransitionError{Current: current, Requested: requested, Err: domain.ErrUnauthorizedTransition}
	}
	return nil
}

func (v *StatusValidator) rule(current, requested domain.TransferStatus) (PartyRule, bool) {
	for _, r := range v.policy.Rules {
		if r.To != requested {
			continue
		}
		if r.From == "" || r.From == current {
			return r, true
		}
	}
	return PartyRule{}, false
}

func partyMatches(party Party, actor domain.Principal, transfer *domain.TransferRequest) bool {
	switch party {
	case PartySendingStore:
		return actor.StoreID != "" && actor.StoreID == transfer.SendingStoreID
	case PartyReceivingStore:
		return actor.StoreID != "" && actor.StoreID == transfer.ReceivingStoreID
	case PartyEitherStore:
		return transfer.Involves(actor.StoreID)
	case PartyInitiator:
		return actor.ID != "" && actor.ID == transfer.InitiatingEmployeeID
	}
	return false
}
