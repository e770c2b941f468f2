package domain

import "testing"

func TestCanTransition_LifecycleTable(t *testing.T) {
	tests := []struct {
		from PayoutStatus
		to   PayoutStatus
		want bool
	}{
		{StatusNotInitiated, StatusQueued, true},
		{StatusNotInitiated, StatusCancelled, true},
		{StatusNotInitiated, StatusProcessed, false},
		{StatusQueued, StatusPending, true},
		{StatusQueued, StatusScheduled, true},
		{StatusQueued, StatusCancelled, true},
		{StatusPending, StatusCancelled, false},
		{StatusPending, StatusProcessing, true},
		{StatusScheduled, StatusProcessed, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusQueued, false},
		{StatusProcessed, StatusReversed, true},
		{StatusProcessed, StatusFailed, false},
		{StatusReversed, StatusProcessed, false},
		{StatusFailed, StatusQueued, false},
		{StatusCancelled, StatusQueued, false},
		// Self-transitions are replays, not moves.
		{StatusQueued, StatusQueued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsCancellable(t *testing.T) {
	cancellable := map[PayoutStatus]bool{
		StatusNotInitiated: true,
		StatusQueued:       true,
	}
	all := []PayoutStatus{
		StatusNotInitiated, StatusQueued, StatusPending, StatusScheduled,
		StatusProcessing, StatusProcessed, StatusFailed, StatusRejected,
		StatusCancelled, StatusReversed,
	}
	for _, s := range all {
		if got := IsCancellable(s); got != cancellable[s] {
			t.Errorf("IsCancellable(%q) = %v, want %v", s, got, cancellable[s])
		}
	}
}

func TestTerminal(t *testing.T) {
	terminals := map[PayoutStatus]bool{
		StatusFailed:    true,
		StatusRejected:  true,
		StatusCancelled: true,
		StatusReversed:  true,
	}
	all := []PayoutStatus{
		StatusNotInitiated, StatusQueued, StatusPending, StatusScheduled,
		StatusProcessing, StatusProcessed, StatusFailed, StatusRejected,
		StatusCancelled, StatusReversed,
	}
	for _, s := range all {
		if got := s.Terminal(); got != terminals[s] {
			t.Errorf("Terminal(%q) = %v, want %v", s, got, terminals[s])
		}
	}
	// Processed still admits Reversed, so it is not terminal.
	if StatusProcessed.Terminal() {
		t.Error("Processed must not be terminal while Reversed is reachable")
	}
}

func TestCarriesUTR(t *testing.T) {
	if !CarriesUTR(StatusProcessed) || !CarriesUTR(StatusReversed) {
		t.Error("Processed and Reversed carry the UTR")
	}
	for _, s := range []PayoutStatus{StatusQueued, StatusPending, StatusProcessing, StatusFailed, StatusCancelled} {
		if CarriesUTR(s) {
			t.Errorf("%q must not carry a UTR", s)
		}
	}
}

func TestNormalizeGatewayStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want PayoutStatus
		ok   bool
	}{
		{"queued", StatusQueued, true},
		{"processed", StatusProcessed, true},
		{"reversed", StatusReversed, true},
		{"Queued", "", false}, // gateway statuses are lowercase
		{"unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeGatewayStatus(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeGatewayStatus(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeLinkStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want PayoutStatus
		ok   bool
	}{
		{"issued", StatusQueued, true},
		{"expired", StatusFailed, true},
		{"processed", StatusProcessed, true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeLinkStatus(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeLinkStatus(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
