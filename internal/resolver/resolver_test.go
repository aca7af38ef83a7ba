package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opentill/tillsync/internal/models"
)

func record(updatedAt int64, remoteID string, synced bool) *models.Record {
	return &models.Record{
		ID:        "rec-1",
		Kind:      models.KindCustomer,
		UpdatedAt: updatedAt,
		Data:      []byte(`{}`),
		RemoteID:  remoteID,
		Synced:    synced,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		local      *models.Record
		remote     *models.Record
		wantAdopt  bool
		wantReason Reason
	}{
		{
			name:       "no local record adopts remote",
			local:      nil,
			remote:     record(10, "ev-1", false),
			wantAdopt:  true,
			wantReason: ReasonNoLocal,
		},
		{
			name:       "strictly newer remote adopts",
			local:      record(10, "", true),
			remote:     record(11, "ev-1", false),
			wantAdopt:  true,
			wantReason: ReasonRemoteNewer,
		},
		{
			name:       "strictly older remote is discarded",
			local:      record(12, "", false),
			remote:     record(11, "ev-1", false),
			wantAdopt:  false,
			wantReason: ReasonLocalNewer,
		},
		{
			name:       "tie with unseen remote id adopts remote",
			local:      record(10, "", true),
			remote:     record(10, "ev-1", false),
			wantAdopt:  true,
			wantReason: ReasonTieRemoteID,
		},
		{
			name:       "tie prefers local already synced",
			local:      record(10, "ev-0", true),
			remote:     record(10, "ev-1", false),
			wantAdopt:  false,
			wantReason: ReasonTieLocalSync,
		},
		{
			name:       "tie with unsynced local adopts remote",
			local:      record(10, "ev-0", false),
			remote:     record(10, "ev-1", false),
			wantAdopt:  true,
			wantReason: ReasonTieObserved,
		},
		{
			name:       "tie with no ids and unsynced local adopts remote",
			local:      record(10, "", false),
			remote:     record(10, "", false),
			wantAdopt:  true,
			wantReason: ReasonTieObserved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.local, tt.remote)
			assert.Equal(t, tt.wantAdopt, got.AdoptRemote)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestResolve_DoesNotMutate(t *testing.T) {
	local := record(10, "ev-0", true)
	remote := record(20, "ev-1", false)

	localCopy := local.Clone()
	remoteCopy := remote.Clone()

	Resolve(local, remote)

	assert.Equal(t, localCopy, local)
	assert.Equal(t, remoteCopy, remote)
}

// Whole-record LWW: device B's later write to the name field wins as a whole
// record, and device A's earlier price edit is lost. This is the intended
// non-CRDT semantics: no field-level merge.
func TestResolve_WholeRecordSemantics(t *testing.T) {
	deviceAEdit := &models.Record{
		ID: "prod-1", Kind: models.KindSetting, UpdatedAt: 100,
		Data: []byte(`{"name":"Widget","price":"9.99"}`),
	}
	deviceBEdit := &models.Record{
		ID: "prod-1", Kind: models.KindSetting, UpdatedAt: 200,
		Data:     []byte(`{"name":"Premium Widget","price":"5.00"}`),
		RemoteID: "ev-b",
	}

	// A reconnects and pulls B's record.
	d := Resolve(deviceAEdit, deviceBEdit)
	assert.True(t, d.AdoptRemote, "B's whole record wins, including its price")
}
