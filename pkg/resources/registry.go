package resources

// Registry holds the ordered list of collections swept during a
// departure. Order matters: parent collections are reassigned before
// the rows that reference them.
type Registry struct {
	collections []Collection
}

// NewRegistry creates a registry from an ordered collection list
func NewRegistry(collections ...Collection) *Registry {
	return &Registry{collections: collections}
}

// DefaultRegistry returns the standard sweep order
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewCollection("apps", "apps", "owner_member_id", "team_id"),
		NewCollection("datasets", "datasets", "owner_member_id", "team_id"),
		NewCollection("dataset_collections", "dataset_collections", "owner_member_id", "team_id"),
		NewCollection("dataset_records", "dataset_records", "owner_member_id", "team_id"),
		// Version rows carry no team column and are matched on the
		// owner alone.
		NewUnscopedCollection("app_versions", "app_versions", "owner_member_id"),
		NewCollection("access_keys", "access_keys", "owner_member_id", "team_id"),
		NewCollection("chat_items", "chat_items", "owner_member_id", "team_id"),
		NewCollection("chats", "chats", "owner_member_id", "team_id"),
		NewCollection("usage_records", "usage_records", "owner_member_id", "team_id"),
		NewCollection("audit_logs", "audit_logs", "owner_member_id", "team_id"),
	)
}

// Collections returns the sweep order
func (r *Registry) Collections() []Collection {
	return r.collections
}

