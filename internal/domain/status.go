package domain

import "fmt"

type EngagementStatus string

const (
	StatusRequested                          EngagementStatus = "requested"
	StatusAccepted                           EngagementStatus = "accepted"
	StatusDeclined                           EngagementStatus = "declined"
	StatusQuotationCreated                   EngagementStatus = "quotation_created"
	StatusQuotationAccepted                  EngagementStatus = "quotation_accepted"
	StatusQuotationDeclinedPendingVisitation EngagementStatus = "quotation_declined_pending_visitation"
	StatusTerminatedAfterQuotationDecline    EngagementStatus = "terminated_after_quotation_decline"
	StatusCompletedPendingPayment            EngagementStatus = "completed_pending_payment"
	StatusCompleted                          EngagementStatus = "completed"
	StatusScheduled                          EngagementStatus = "scheduled"
	StatusRecurringEnded                     EngagementStatus = "recurring_ended"
	StatusProviderEndedRecurring             EngagementStatus = "provider_ended_recurring"
	StatusRematch                            EngagementStatus = "rematch"
	StatusCancelledByClient                  EngagementStatus = "cancelled_by_client"
)

// Terminal reports whether an engagement in this status will never be
// serviced. Terminal engagements never get reminders and are skipped by the
// series generator.
func (s EngagementStatus) Terminal() bool {
	switch s {
	case StatusDeclined,
		StatusTerminatedAfterQuotationDecline,
		StatusCompleted,
		StatusRecurringEnded,
		StatusProviderEndedRecurring,
		StatusRematch,
		StatusCancelledByClient:
		return true
	}
	return false
}

// Role is the caller identity class returned by the identity verifier.
type Role string

const (
	RoleClient     Role = "client"
	RoleProvider   Role = "provider"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
)

// Action is a caller-triggered engagement transition.
type Action string

const (
	ActionAccept               Action = "accept"
	ActionDecline              Action = "decline"
	ActionCreateQuotation      Action = "create_quotation"
	ActionAcceptQuotation      Action = "accept_quotation"
	ActionDeclineQuotation     Action = "decline_quotation"
	ActionConfirmVisitationFee Action = "confirm_visitation_fee"
	ActionMarkPaid             Action = "mark_paid"
	ActionConfirmPayment       Action = "confirm_payment"
	ActionEndRecurring         Action = "end_recurring"
	ActionProviderEndRecurring Action = "provider_end_recurring"
	ActionRematch              Action = "rematch"
	ActionCancel               Action = "cancel"
)

// BlockEffect is the TimeBlock side effect a transition must carry. Every
// transition that changes provider commitment has one.
type BlockEffect int

const (
	// BlockEffectNone leaves the provider's blocks untouched.
	BlockEffectNone BlockEffect = iota
	// BlockEffectBook promotes the engagement's held blocks to booked.
	BlockEffectBook
	// BlockEffectDelete removes the engagement's blocks on the provider's
	// calendar immediately, freeing the slots instead of waiting for TTL
	// expiry.
	BlockEffectDelete
	// BlockEffectRelease removes the blocks wherever they live, used by the
	// walk-away transitions. Both delete effects are best-effort: a failed
	// delete is logged and swallowed, the status change still commits.
	BlockEffectRelease
)

// Transition describes one row of the engagement state machine.
type Transition struct {
	Role          Role
	From          []EngagementStatus
	To            EngagementStatus
	Effect        BlockEffect
	ClearProvider bool
	RecurringOnly bool
}

// activeStatuses are the states from which a client or provider can still
// walk away via the side-channel actions.
var activeStatuses = []EngagementStatus{
	StatusRequested,
	StatusAccepted,
	StatusQuotationCreated,
	StatusQuotationAccepted,
	StatusQuotationDeclinedPendingVisitation,
	StatusCompletedPendingPayment,
	StatusScheduled,
}

var transitions = map[Action]Transition{
	ActionAccept: {
		Role: RoleProvider,
		From: []EngagementStatus{StatusRequested},
		To:   StatusAccepted,
		// Provider commitment begins here: holds become bookings.
		Effect: BlockEffectBook,
	},
	ActionDecline: {
		Role:          RoleProvider,
		From:          []EngagementStatus{StatusRequested},
		To:            StatusDeclined,
		Effect:        BlockEffectDelete,
		ClearProvider: true,
	},
	ActionCreateQuotation: {
		Role: RoleProvider,
		From: []EngagementStatus{StatusAccepted},
		To:   StatusQuotationCreated,
	},
	ActionAcceptQuotation: {
		Role: RoleClient,
		From: []EngagementStatus{StatusQuotationCreated},
		To:   StatusQuotationAccepted,
	},
	ActionDeclineQuotation: {
		Role: RoleClient,
		From: []EngagementStatus{StatusQuotationCreated},
		To:   StatusQuotationDeclinedPendingVisitation,
	},
	ActionConfirmVisitationFee: {
		Role:          RoleProvider,
		From:          []EngagementStatus{StatusQuotationDeclinedPendingVisitation},
		To:            StatusTerminatedAfterQuotationDecline,
		Effect:        BlockEffectRelease,
		ClearProvider: true,
	},
	ActionMarkPaid: {
		Role: RoleClient,
		From: []EngagementStatus{StatusQuotationAccepted},
		To:   StatusCompletedPendingPayment,
	},
	ActionConfirmPayment: {
		Role: RoleProvider,
		From: []EngagementStatus{StatusCompletedPendingPayment},
		To:   StatusCompleted,
	},
	ActionEndRecurring: {
		Role:          RoleClient,
		From:          activeStatuses,
		To:            StatusRecurringEnded,
		Effect:        BlockEffectRelease,
		ClearProvider: true,
		RecurringOnly: true,
	},
	ActionProviderEndRecurring: {
		Role:          RoleProvider,
		From:          activeStatuses,
		To:            StatusProviderEndedRecurring,
		Effect:        BlockEffectRelease,
		ClearProvider: true,
		RecurringOnly: true,
	},
	ActionRematch: {
		Role:          RoleClient,
		From:          activeStatuses,
		To:            StatusRematch,
		Effect:        BlockEffectRelease,
		ClearProvider: true,
	},
	ActionCancel: {
		Role:          RoleClient,
		From:          activeStatuses,
		To:            StatusCancelledByClient,
		Effect:        BlockEffectRelease,
		ClearProvider: true,
	},
}

// LookupTransition returns the state-machine row for an action.
func LookupTransition(action Action) (Transition, bool) {
	t, ok := transitions[action]
	return t, ok
}

// Apply validates an action against the engagement's current state and the
// caller's role and returns the transition to execute. It does not mutate
// the engagement.
func (e *Engagement) Apply(action Action, role Role) (Transition, error) {
	t, ok := transitions[action]
	if !ok {
		return Transition{}, fmt.Errorf("unknown action %q", action)
	}
	if role != t.Role {
		return Transition{}, fmt.Errorf("action %q requires role %q", action, t.Role)
	}
	if t.RecurringOnly && !e.IsRecurring {
		return Transition{}, fmt.Errorf("action %q only applies to recurring engagements", action)
	}
	for _, from := range t.From {
		if e.Status == from {
			return t, nil
		}
	}
	return Transition{}, fmt.Errorf("action %q not allowed from status %q", action, e.Status)
}
