package lifecycle

import "github.com/crewware/teamcore/pkg/storage"

func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create member departures table",
			SQL: `
				CREATE TABLE IF NOT EXISTS member_departures (
					id TEXT PRIMARY KEY,
					team_id BIGINT NOT NULL,
					member_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					reason TEXT NOT NULL,
					step TEXT NOT NULL,
					status TEXT NOT NULL,
					counts TEXT NOT NULL DEFAULT '{}',
					error TEXT NOT NULL DEFAULT '',
					attempts INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_member_departures_status ON member_departures(status);
				CREATE INDEX IF NOT EXISTS idx_member_departures_member ON member_departures(member_id);
			`,
		},
	}
}
