package groups

import "github.com/crewware/teamcore/pkg/storage"

// GetMigrations returns all group migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create member_groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS member_groups (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					avatar VARCHAR(1024),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, name)
				);

				CREATE INDEX idx_member_groups_team_id ON member_groups(team_id);
			`,
		},
		{
			Version:     2,
			Description: "Create group_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_members (
					group_id BIGINT NOT NULL REFERENCES member_groups(id) ON DELETE CASCADE,
					member_id BIGINT NOT NULL REFERENCES team_members(id) ON DELETE CASCADE,
					role VARCHAR(20) NOT NULL DEFAULT 'member',
					PRIMARY KEY (group_id, member_id)
				);

				CREATE INDEX idx_group_members_member_id ON group_members(member_id);
				CREATE UNIQUE INDEX idx_group_members_single_owner
					ON group_members(group_id) WHERE role = 'owner';
			`,
		},
	}
}
