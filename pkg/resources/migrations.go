package resources

import "github.com/crewware/teamcore/pkg/storage"

func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create apps and datasets",
			SQL: `
				CREATE TABLE IF NOT EXISTS apps (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_apps_owner ON apps(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS datasets (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_datasets_owner ON datasets(team_id, owner_member_id);
			`,
		},
		{
			Version:     2,
			Description: "Create dataset collections and records",
			SQL: `
				CREATE TABLE IF NOT EXISTS dataset_collections (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					dataset_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dataset_collections_owner ON dataset_collections(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS dataset_records (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					collection_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					content TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dataset_records_owner ON dataset_records(team_id, owner_member_id);
			`,
		},
		{
			Version:     3,
			Description: "Create app versions, access keys, chat and accounting tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS app_versions (
					id BIGSERIAL PRIMARY KEY,
					app_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					version_name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_app_versions_owner ON app_versions(owner_member_id);

				CREATE TABLE IF NOT EXISTS access_keys (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					secret_hash TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_access_keys_owner ON access_keys(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS chats (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					app_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_chats_owner ON chats(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS chat_items (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					chat_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					content TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_chat_items_owner ON chat_items(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS usage_records (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					source TEXT NOT NULL,
					amount BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_usage_records_owner ON usage_records(team_id, owner_member_id);

				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL,
					owner_member_id BIGINT NOT NULL,
					event TEXT NOT NULL,
					detail TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_owner ON audit_logs(team_id, owner_member_id);
			`,
		},
	}
}
