package models

import "testing"

func TestEvalPaymentTransition(t *testing.T) {
	tests := []struct {
		name    string
		current PaymentStatus
		target  PaymentStatus
		want    TransitionOutcome
	}{
		{"pending to processing", PaymentStatusPending, PaymentStatusProcessing, TransitionApply},
		{"pending to completed", PaymentStatusPending, PaymentStatusCompleted, TransitionApply},
		{"pending to requires action", PaymentStatusPending, PaymentStatusRequiresAction, TransitionApply},
		{"requires action resolves to processing", PaymentStatusRequiresAction, PaymentStatusProcessing, TransitionApply},
		{"processing to completed", PaymentStatusProcessing, PaymentStatusCompleted, TransitionApply},
		{"processing to failed", PaymentStatusProcessing, PaymentStatusFailed, TransitionApply},
		{"pending to canceled", PaymentStatusPending, PaymentStatusCanceled, TransitionApply},
		{"completed to partially refunded", PaymentStatusCompleted, PaymentStatusPartiallyRefunded, TransitionApply},
		{"completed to refunded", PaymentStatusCompleted, PaymentStatusRefunded, TransitionApply},
		{"partially refunded to refunded", PaymentStatusPartiallyRefunded, PaymentStatusRefunded, TransitionApply},
		{"completed to disputed", PaymentStatusCompleted, PaymentStatusDisputed, TransitionApply},
		{"partially refunded to disputed", PaymentStatusPartiallyRefunded, PaymentStatusDisputed, TransitionApply},

		// Same status and late duplicates are noops, not errors.
		{"same status is a noop", PaymentStatusCompleted, PaymentStatusCompleted, TransitionNoop},
		{"late failed after completion", PaymentStatusCompleted, PaymentStatusFailed, TransitionNoop},
		{"late cancel after completion", PaymentStatusCompleted, PaymentStatusCanceled, TransitionNoop},
		{"nothing moves back to pending", PaymentStatusCompleted, PaymentStatusPending, TransitionNoop},
		{"processing does not regress to requires action noop", PaymentStatusCompleted, PaymentStatusRequiresAction, TransitionNoop},
		{"completed again after partial refund", PaymentStatusPartiallyRefunded, PaymentStatusCompleted, TransitionNoop},

		// Terminal states absorb everything.
		{"failed is terminal", PaymentStatusFailed, PaymentStatusCompleted, TransitionNoop},
		{"canceled is terminal", PaymentStatusCanceled, PaymentStatusCompleted, TransitionNoop},
		{"refunded is terminal", PaymentStatusRefunded, PaymentStatusDisputed, TransitionNoop},

		// Refund-family targets without money are invalid.
		{"refund before completion", PaymentStatusProcessing, PaymentStatusRefunded, TransitionInvalid},
		{"partial refund before completion", PaymentStatusPending, PaymentStatusPartiallyRefunded, TransitionInvalid},
		{"dispute before completion", PaymentStatusProcessing, PaymentStatusDisputed, TransitionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvalPaymentTransition(tt.current, tt.target)
			if got != tt.want {
				t.Errorf("EvalPaymentTransition(%s, %s) = %d; want %d", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestEvalPaymentTransitionIdempotent(t *testing.T) {
	// Applying the same webhook twice must not change anything the second
	// time, whatever the statuses involved.
	statuses := []PaymentStatus{
		PaymentStatusPending, PaymentStatusProcessing, PaymentStatusRequiresAction,
		PaymentStatusCompleted, PaymentStatusPartiallyRefunded, PaymentStatusRefunded,
		PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusDisputed,
	}
	for _, s := range statuses {
		if got := EvalPaymentTransition(s, s); got != TransitionNoop {
			t.Errorf("EvalPaymentTransition(%s, %s) = %d; want noop", s, s, got)
		}
	}
}

func TestEvalRefundTransition(t *testing.T) {
	tests := []struct {
		name    string
		current RefundStatus
		target  RefundStatus
		want    TransitionOutcome
	}{
		{"pending to processing", RefundStatusPending, RefundStatusProcessing, TransitionApply},
		{"pending to completed", RefundStatusPending, RefundStatusCompleted, TransitionApply},
		{"processing to completed", RefundStatusProcessing, RefundStatusCompleted, TransitionApply},
		{"pending can fail", RefundStatusPending, RefundStatusFailed, TransitionApply},
		{"processing can fail", RefundStatusProcessing, RefundStatusFailed, TransitionApply},
		{"pending can cancel", RefundStatusPending, RefundStatusCanceled, TransitionApply},

		{"same status is a noop", RefundStatusProcessing, RefundStatusProcessing, TransitionNoop},
		{"nothing moves back to pending", RefundStatusProcessing, RefundStatusPending, TransitionNoop},
		{"completed is terminal", RefundStatusCompleted, RefundStatusFailed, TransitionNoop},
		{"failed is terminal", RefundStatusFailed, RefundStatusCompleted, TransitionNoop},
		{"canceled is terminal", RefundStatusCanceled, RefundStatusProcessing, TransitionNoop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvalRefundTransition(tt.current, tt.target)
			if got != tt.want {
				t.Errorf("EvalRefundTransition(%s, %s) = %d; want %d", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestRefundStatusCountsAgainstPayment(t *testing.T) {
	counts := map[RefundStatus]bool{
		RefundStatusPending:    true,
		RefundStatusProcessing: true,
		RefundStatusCompleted:  true,
		RefundStatusFailed:     false,
		RefundStatusCanceled:   false,
	}
	for status, want := range counts {
		if got := status.CountsAgainstPayment(); got != want {
			t.Errorf("%s.CountsAgainstPayment() = %v; want %v", status, got, want)
		}
	}
}
