package perm

import "github.com/crewware/teamcore/pkg/storage"

// GetMigrations returns all permission migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create resource_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					resource_type VARCHAR(50) NOT NULL,
					resource_id BIGINT NOT NULL,
					principal_kind VARCHAR(20) NOT NULL,
					principal_id BIGINT NOT NULL,
					permission BIGINT NOT NULL CHECK (permission >= 0),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(resource_type, resource_id, principal_kind, principal_id)
				);

				CREATE INDEX idx_resource_permissions_resource
					ON resource_permissions(resource_type, resource_id);
				CREATE INDEX idx_resource_permissions_principal
					ON resource_permissions(principal_kind, principal_id);
				CREATE INDEX idx_resource_permissions_team_id
					ON resource_permissions(team_id);
			`,
		},
	}
}
