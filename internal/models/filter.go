package models

// RemoteRecordFilter is the query/subscription contract toward the relay
// network. The same filter shape drives pull-sync queries and live
// subscriptions.
type RemoteRecordFilter struct {
	Kinds   []RecordKind        `json:"kinds"`             // record kinds to match
	Authors []string            `json:"authors,omitempty"` // author keys, empty = any
	Tags    map[string][]string `json:"tags,omitempty"`    // tag name -> accepted values
	Since   int64               `json:"since,omitempty"`   // unix milli lower bound, 0 = none
	Until   int64               `json:"until,omitempty"`   // unix milli upper bound, 0 = none
	Limit   int                 `json:"limit,omitempty"`   // max results, 0 = relay default
}

// TenantTagName is the tag key used to scope records to a tenant. Its value
// is a hash of the tenant's shared secret, so independent tenants sharing the
// same relay never see each other's records.
const TenantTagName = "t"

// WithTenant returns a copy of the filter restricted to the given tenant tag
// value. The tenant tag is mandatory on every pull and subscription.
func (f RemoteRecordFilter) WithTenant(tenantTag string) RemoteRecordFilter {
	tags := make(map[string][]string, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = append([]string(nil), v...)
	}
	tags[TenantTagName] = []string{tenantTag}
	f.Tags = tags
	return f
}
