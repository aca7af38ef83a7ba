// Package resolver implements whole-record last-writer-wins conflict
// resolution over application-level logical timestamps.
//
// The rule is defined once, here, and used for every record kind. It orders
// concurrent writes by the writer-assigned UpdatedAt, never by network
// delivery time: a record written earlier but delivered later still loses to
// a newer local record.
package resolver

import "github.com/opentill/tillsync/internal/models"

// Decision is the outcome of resolving a candidate remote record against the
// current local record.
type Decision struct {
	AdoptRemote bool
	Reason      Reason
}

// Reason explains a decision, for logging and tests.
type Reason string

const (
	ReasonNoLocal      Reason = "no_local"       // nothing stored locally
	ReasonRemoteNewer  Reason = "remote_newer"   // strictly greater remote timestamp
	ReasonLocalNewer   Reason = "local_newer"    // strictly greater local timestamp
	ReasonTieRemoteID  Reason = "tie_remote_id"  // tie, remote carries an id we have not seen
	ReasonTieLocalSync Reason = "tie_local_sync" // tie, local already confirmed synced
	ReasonTieObserved  Reason = "tie_observed"   // tie, most recently observed wins
)

// Resolve decides whether to adopt a candidate remote record. It is a pure
// function of its inputs and never mutates either record.
//
// Order of rules:
//  1. no local record: adopt remote
//  2. compare UpdatedAt: strictly greater adopts, strictly lesser is discarded
//  3. exact tie: adopt remote if it carries a remote id absent locally
//     (unknown-but-present-remotely counts as newer information); otherwise
//     keep a local record already marked synced; otherwise adopt remote.
func Resolve(local, remote *models.Record) Decision {
	if local == nil {
		return Decision{AdoptRemote: true, Reason: ReasonNoLocal}
	}

	if remote.UpdatedAt > local.UpdatedAt {
		return Decision{AdoptRemote: true, Reason: ReasonRemoteNewer}
	}
	if remote.UpdatedAt < local.UpdatedAt {
		return Decision{AdoptRemote: false, Reason: ReasonLocalNewer}
	}

	// Exact timestamp tie.
	if remote.RemoteID != "" && local.RemoteID == "" {
		return Decision{AdoptRemote: true, Reason: ReasonTieRemoteID}
	}
	if local.Synced {
		return Decision{AdoptRemote: false, Reason: ReasonTieLocalSync}
	}
	return Decision{AdoptRemote: true, Reason: ReasonTieObserved}
}
