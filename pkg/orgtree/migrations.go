package orgtree

import "github.com/crewware/teamcore/pkg/storage"

// GetMigrations returns all org hierarchy migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create org_nodes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_nodes (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					parent_id BIGINT REFERENCES org_nodes(id),
					name VARCHAR(50) NOT NULL,
					avatar VARCHAR(1024),
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, parent_id, name)
				);

				CREATE INDEX idx_org_nodes_team_id ON org_nodes(team_id);
				CREATE INDEX idx_org_nodes_parent_id ON org_nodes(parent_id);
				CREATE UNIQUE INDEX idx_org_nodes_root_name
					ON org_nodes(team_id, name) WHERE parent_id IS NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create org_closure table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_closure (
					ancestor_id BIGINT NOT NULL REFERENCES org_nodes(id) ON DELETE CASCADE,
					descendant_id BIGINT NOT NULL REFERENCES org_nodes(id) ON DELETE CASCADE,
					depth INT NOT NULL,
					PRIMARY KEY (ancestor_id, descendant_id)
				);

				CREATE INDEX idx_org_closure_descendant ON org_closure(descendant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create org_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_members (
					org_id BIGINT NOT NULL REFERENCES org_nodes(id) ON DELETE CASCADE,
					member_id BIGINT NOT NULL REFERENCES team_members(id) ON DELETE CASCADE,
					PRIMARY KEY (org_id, member_id)
				);

				CREATE INDEX idx_org_members_member_id ON org_members(member_id);
			`,
		},
	}
}
