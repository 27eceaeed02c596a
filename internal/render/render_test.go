package render

import (
	"testing"

	"github.com/vkoval/allowctl/internal/session"
)

func TestPageVariantTable(t *testing.T) {
	cases := []struct {
		name    string
		snap    session.Snapshot
		variant Variant
		action  string
	}{
		{
			name:    "disconnected",
			snap:    session.Snapshot{},
			variant: VariantConnect,
			action:  "connect",
		},
		{
			name:    "connected not member idle",
			snap:    session.Snapshot{Connected: true},
			variant: VariantJoin,
			action:  "join",
		},
		{
			name:    "connected not member pending",
			snap:    session.Snapshot{Connected: true, Pending: true},
			variant: VariantLoading,
		},
		{
			name:    "connected member",
			snap:    session.Snapshot{Connected: true, Joined: true},
			variant: VariantJoined,
		},
		{
			name:    "connected member while pending",
			snap:    session.Snapshot{Connected: true, Joined: true, Pending: true},
			variant: VariantJoined,
		},
		{
			name:    "wrong network",
			snap:    session.Snapshot{WrongNetwork: true},
			variant: VariantWrongNetwork,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := Page(tc.snap)
			if view.Variant != tc.variant {
				t.Fatalf("expected variant %q, got %q", tc.variant, view.Variant)
			}
			if view.Button.Action != tc.action {
				t.Fatalf("expected action %q, got %q", tc.action, view.Button.Action)
			}
		})
	}
}

func TestPageIsPure(t *testing.T) {
	snap := session.Snapshot{Connected: true, Count: 42}
	first := Page(snap)
	second := Page(snap)
	if first != second {
		t.Fatalf("expected identical views for identical snapshots")
	}
}

func TestPageCountLine(t *testing.T) {
	view := Page(session.Snapshot{Connected: true, Count: 42})
	if view.CountLine != "42 devs joined" {
		t.Fatalf("unexpected count line: %q", view.CountLine)
	}
	if !view.ShowCount {
		t.Fatalf("expected count shown while connected")
	}

	disconnected := Page(session.Snapshot{Count: 42})
	if disconnected.ShowCount {
		t.Fatalf("expected count hidden while disconnected")
	}
}

func TestPageLoadingButtonDisabled(t *testing.T) {
	view := Page(session.Snapshot{Connected: true, Pending: true})
	if !view.Button.Disabled {
		t.Fatalf("expected disabled button while pending")
	}
	if view.Button.Action != "" {
		t.Fatalf("loading button must not trigger an action, got %q", view.Button.Action)
	}
}
