// Package onboarding owns the signup journey of a signed-in user: lazy
// profile creation, the onboarding state machine and the steps that persist
// it.
package onboarding

import (
	"tipkoro/internal/types"
)

// Event is an input to the onboarding state machine.
type Event string

const (
	EventChooseAccountType Event = "choose_account_type"
	EventPaymentVerified   Event = "payment_verified"
	EventSubmitProfile     Event = "submit_profile"
	EventBack              Event = "back"
)

func conflict(msg string, from types.OnboardingStatus, ev Event) error {
	return types.NewAppErrorWithDetails(types.ErrCodeConflictOnboarding, msg, nil, map[string]any{
		"onboarding_status": from,
		"event":             ev,
	})
}

// Transition returns the status reached from current on ev.
//
// Creators go account_type -> payment -> profile -> completed. Supporters
// skip payment. Pending is treated as account_type. Back returns to
// account_type from payment, and from profile for supporters only: a
// creator at profile has already paid.
//
// accountType is the choice carried by EventChooseAccountType and the
// stored account type for every other event.
func Transition(current types.OnboardingStatus, accountType types.AccountType, ev Event) (types.OnboardingStatus, error) {
	if current == types.OnboardingPending {
		current = types.OnboardingAccountType
	}

	switch ev {
	case EventChooseAccountType:
		if !accountType.IsValid() {
			return current, types.NewAppError(types.ErrCodeValidationAccountType, "account_type must be supporter or creator", nil)
		}
		if current != types.OnboardingAccountType {
			return current, conflict("account type can only be chosen at the first step", current, ev)
		}
		if accountType == types.AccountTypeCreator {
			return types.OnboardingPayment, nil
		}
		return types.OnboardingProfile, nil

	case EventPaymentVerified:
		if current != types.OnboardingPayment {
			return current, conflict("no payment step to complete", current, ev)
		}
		return types.OnboardingProfile, nil

	case EventSubmitProfile:
		if current != types.OnboardingProfile {
			return current, conflict("profile can only be submitted at the profile step", current, ev)
		}
		return types.OnboardingCompleted, nil

	case EventBack:
		switch {
		case current == types.OnboardingPayment:
			return types.OnboardingAccountType, nil
		case current == types.OnboardingProfile && accountType != types.AccountTypeCreator:
			return types.OnboardingAccountType, nil
		case current == types.OnboardingProfile:
			return current, conflict("creators cannot go back after paying", current, ev)
		default:
			return current, conflict("nothing to go back to", current, ev)
		}
	}
	return current, conflict("unknown onboarding event", current, ev)
}
