package versioning

import (
	"time"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// decisionKind tells CreateVersion whether to rewrite an existing entry or
// append a new one.
type decisionKind int

const (
	reuseEntry decisionKind = iota
	appendEntry
)

// versionDecision is the outcome of decideVersion.
type versionDecision struct {
	Kind decisionKind

	// ReuseID is the entry rewritten in place when Kind is reuseEntry.
	ReuseID int64

	// Number is the number of the new entry when Kind is appendEntry.
	Number string

	// PromoteTo, when set, renumbers the previous latest entry before the
	// new one is inserted.
	PromoteTo string
}

// decisionInput is everything decideVersion looks at.
type decisionInput struct {
	Latest *types.VersionHistoryEntry // nil when the object has no history
	// OnlyEntry is set when Latest is the object's single entry.
	OnlyEntry bool
	Checkout  types.CheckoutState
	Force     bool
	// AllowPromote is false for callers that set the number themselves.
	AllowPromote bool
	Now          time.Time

	UseLastInterval time.Duration
	PromoteInterval time.Duration
}

// decideVersion chooses between coalescing into an existing entry and
// creating a new one.
//
// Without force, a checked-out object keeps writing into its working
// version, and an edit within UseLastInterval of a minor latest entry
// rewrites that entry. The initial entry of an object coalesces even though
// it is numbered "1.0". Everything else creates the next minor version,
// first promoting a stale minor latest entry to the next major.
func decideVersion(in decisionInput) versionDecision {
	latest := in.Latest
	if latest == nil {
		return versionDecision{Kind: appendEntry, Number: types.GetNewVersionNumber("", true)}
	}

	if !in.Force {
		if in.Checkout.IsCheckedOut() {
			id := in.Checkout.CheckedOutVersionID
			if id == 0 {
				id = latest.VersionID
			}
			return versionDecision{Kind: reuseEntry, ReuseID: id}
		}
		if !latest.IsDeleted() && (!latest.IsMajor() || in.OnlyEntry) &&
			in.UseLastInterval > 0 && in.Now.Sub(latest.ModifiedWhen) < in.UseLastInterval {
			return versionDecision{Kind: reuseEntry, ReuseID: latest.VersionID}
		}
	}

	base := latest.VersionNumber
	d := versionDecision{Kind: appendEntry}
	if in.AllowPromote && !in.Checkout.IsCheckedOut() && !latest.IsDeleted() && !latest.IsMajor() &&
		in.PromoteInterval > 0 && in.Now.Sub(latest.ModifiedWhen) >= in.PromoteInterval {
		d.PromoteTo = types.GetNewVersionNumber(base, true)
		base = d.PromoteTo
	}
	d.Number = types.GetNewVersionNumber(base, false)
	return d
}
