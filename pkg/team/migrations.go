package team

import "github.com/crewware/teamcore/pkg/storage"

// GetMigrations returns all team migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					avatar VARCHAR(1024),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create teams table",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					avatar VARCHAR(1024),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create team_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_members (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					avatar VARCHAR(1024),
					role VARCHAR(20) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, team_id)
				);

				CREATE INDEX idx_team_members_team_id ON team_members(team_id);
				CREATE INDEX idx_team_members_user_id ON team_members(user_id);
				CREATE INDEX idx_team_members_team_role ON team_members(team_id, role);
				CREATE UNIQUE INDEX idx_team_members_single_owner
					ON team_members(team_id) WHERE role = 'owner';
			`,
		},
	}
}
