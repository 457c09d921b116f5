package db

// sqliteSchema and mysqlSchema mirror each other table-for-table; they
// differ only in autoincrement syntax and string column sizing, following
// the teacher's per-backend createTables pattern (graph/store/sqlite.go,
// graph/store/mysql.go) generalized from the teacher's single workflow_steps
// table into the full relational surface this service persists: workflows,
// versions, skills, executions, step events, checkpoints, chat, quotas, and
// the automation fabric's candidate tool inbox.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		description_zh TEXT NOT NULL DEFAULT '',
		is_public INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		graph_json TEXT NOT NULL,
		trigger_type TEXT NOT NULL DEFAULT 'manual',
		run_count INTEGER NOT NULL DEFAULT 0,
		star_count INTEGER NOT NULL DEFAULT 0,
		forked_from TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner_id)`,

	`CREATE TABLE IF NOT EXISTS workflow_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		author_id TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		graph_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(workflow_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_versions_workflow ON workflow_versions(workflow_id)`,

	`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		http_method TEXT NOT NULL DEFAULT 'POST',
		auth_kind TEXT NOT NULL DEFAULT 'none',
		credential_ref TEXT NOT NULL DEFAULT '',
		endpoint_url TEXT NOT NULL,
		input_schema_json TEXT NOT NULL DEFAULT '{}',
		output_schema_json TEXT NOT NULL DEFAULT '{}',
		timeout_ms INTEGER NOT NULL DEFAULT 30000,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		workflow_version INTEGER NOT NULL,
		trigger_type TEXT NOT NULL DEFAULT 'manual',
		status TEXT NOT NULL DEFAULT 'pending',
		input_json TEXT NOT NULL DEFAULT '{}',
		output_json TEXT NOT NULL DEFAULT '{}',
		error_json TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status)`,

	`CREATE TABLE IF NOT EXISTS step_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '{}',
		at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(execution_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_step_events_execution ON step_events(execution_id)`,

	`CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id TEXT NOT NULL,
		step_id INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		frontier_json TEXT NOT NULL DEFAULT '[]',
		rng_seed INTEGER NOT NULL DEFAULT 0,
		idempotency_key TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(execution_id, step_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_execution ON checkpoints(execution_id)`,

	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id)`,

	`CREATE TABLE IF NOT EXISTS quotas (
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		limit_per_day INTEGER NOT NULL DEFAULT 50,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS candidate_tools (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		name TEXT NOT NULL,
		name_zh TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		description_zh TEXT NOT NULL DEFAULT '',
		pricing TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'discovered',
		discovered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		indexed_at TIMESTAMP NULL,
		UNIQUE(source, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_candidate_tools_status ON candidate_tools(status)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id VARCHAR(64) PRIMARY KEY,
		slug VARCHAR(128) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		description_zh TEXT NOT NULL,
		is_public TINYINT(1) NOT NULL DEFAULT 0,
		owner_id VARCHAR(64) NOT NULL,
		version INT NOT NULL DEFAULT 1,
		graph_json LONGTEXT NOT NULL,
		trigger_type VARCHAR(32) NOT NULL DEFAULT 'manual',
		run_count INT NOT NULL DEFAULT 0,
		star_count INT NOT NULL DEFAULT 0,
		forked_from VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_workflows_owner (owner_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS workflow_versions (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		workflow_id VARCHAR(64) NOT NULL,
		version INT NOT NULL,
		author_id VARCHAR(64) NOT NULL,
		notes TEXT NOT NULL,
		graph_json LONGTEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_workflow_version (workflow_id, version),
		INDEX idx_versions_workflow (workflow_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS skills (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		http_method VARCHAR(8) NOT NULL DEFAULT 'POST',
		auth_kind VARCHAR(32) NOT NULL DEFAULT 'none',
		credential_ref VARCHAR(255) NOT NULL DEFAULT '',
		endpoint_url TEXT NOT NULL,
		input_schema_json LONGTEXT NOT NULL,
		output_schema_json LONGTEXT NOT NULL,
		timeout_ms INT NOT NULL DEFAULT 30000,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS executions (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		workflow_version INT NOT NULL,
		trigger_type VARCHAR(32) NOT NULL DEFAULT 'manual',
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		input_json LONGTEXT NOT NULL,
		output_json LONGTEXT NOT NULL,
		error_json TEXT NOT NULL,
		created_by VARCHAR(64) NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		INDEX idx_executions_workflow (workflow_id),
		INDEX idx_executions_status (status)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS step_events (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		execution_id VARCHAR(64) NOT NULL,
		seq INT NOT NULL,
		node_id VARCHAR(128) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		payload_json LONGTEXT NOT NULL,
		at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_execution_seq (execution_id, seq),
		INDEX idx_step_events_execution (execution_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS checkpoints (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		execution_id VARCHAR(64) NOT NULL,
		step_id INT NOT NULL,
		state_json LONGTEXT NOT NULL,
		frontier_json LONGTEXT NOT NULL,
		rng_seed BIGINT NOT NULL DEFAULT 0,
		idempotency_key VARCHAR(128) NOT NULL UNIQUE,
		label VARCHAR(128) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_execution_step (execution_id, step_id),
		INDEX idx_checkpoints_execution (execution_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_chat_sessions_user (user_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		session_id VARCHAR(64) NOT NULL,
		role VARCHAR(32) NOT NULL,
		content LONGTEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_chat_messages_session (session_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS quotas (
		user_id VARCHAR(64) NOT NULL,
		day VARCHAR(10) NOT NULL,
		used INT NOT NULL DEFAULT 0,
		limit_per_day INT NOT NULL DEFAULT 50,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, day)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS candidate_tools (
		id VARCHAR(64) PRIMARY KEY,
		source VARCHAR(32) NOT NULL,
		external_id VARCHAR(128) NOT NULL,
		name VARCHAR(255) NOT NULL,
		name_zh VARCHAR(255) NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		description TEXT NOT NULL,
		description_zh TEXT NOT NULL,
		pricing VARCHAR(32) NOT NULL DEFAULT '',
		score INT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL DEFAULT 'discovered',
		discovered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		indexed_at TIMESTAMP NULL,
		UNIQUE KEY uq_source_external (source, external_id),
		INDEX idx_candidate_tools_status (status)
	) ENGINE=InnoDB`,
}
