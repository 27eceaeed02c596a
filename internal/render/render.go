// Package render maps a session snapshot to one of five page
// variants. Page is a pure function: same snapshot in, same view out.
package render

import (
	"fmt"

	"github.com/vkoval/allowctl/internal/session"
)

type Variant string

const (
	VariantConnect      Variant = "connect"
	VariantJoin         Variant = "join"
	VariantLoading      Variant = "loading"
	VariantJoined       Variant = "joined"
	VariantWrongNetwork Variant = "wrong_network"
)

// Button is the single call-to-action of a page variant. An empty
// Action renders a static element instead of a form.
type Button struct {
	Label    string
	Action   string
	Disabled bool
}

// View is everything the page template needs.
type View struct {
	Variant   Variant
	Heading   string
	Message   string
	Button    Button
	CountLine string
	ShowCount bool
}

// Page derives the view from the connected/joined/pending flags.
// Wrong-network takes precedence as a blocking notice.
func Page(s session.Snapshot) View {
	view := View{
		Heading:   "Welcome to the Allowlist!",
		CountLine: fmt.Sprintf("%d devs joined", s.Count),
		ShowCount: s.Connected,
	}

	switch {
	case s.WrongNetwork:
		view.Variant = VariantWrongNetwork
		view.Message = "Wrong network: switch your wallet to the expected chain and retry."
	case !s.Connected:
		view.Variant = VariantConnect
		view.Button = Button{Label: "Connect your wallet", Action: "connect"}
	case s.Joined:
		view.Variant = VariantJoined
		view.Message = "Thanks for joining the Allowlist!"
	case s.Pending:
		view.Variant = VariantLoading
		view.Button = Button{Label: "Loading...", Disabled: true}
	default:
		view.Variant = VariantJoin
		view.Button = Button{Label: "Join the Allowlist", Action: "join"}
	}
	return view
}
