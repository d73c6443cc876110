package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL DEFAULT 1,
				is_active BOOLEAN NOT NULL DEFAULT false,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_is_active ON workflows(is_active) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_owner ON workflows(owner);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INTEGER NOT NULL,
				kind VARCHAR(20) NOT NULL CHECK (kind IN ('trigger', 'condition', 'action', 'logic')),
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				properties JSONB NOT NULL DEFAULT '{}',
				inputs TEXT[] NOT NULL DEFAULT '{}',
				outputs TEXT[] NOT NULL DEFAULT '{}',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INTEGER NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				source_port VARCHAR(255) NOT NULL DEFAULT '',
				target_node_id VARCHAR(255) NOT NULL,
				target_port VARCHAR(255) NOT NULL DEFAULT '',
				guards JSONB NOT NULL DEFAULT '[]',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_connections_source ON workflow_connections(workflow_id, source_node_id);
		`,
		2: `
			-- Events and the automation queue
			CREATE TABLE events (
				id VARCHAR(255) PRIMARY KEY,
				event_type VARCHAR(100) NOT NULL,
				payload JSONB NOT NULL,
				received_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE automation_queue (
				id VARCHAR(255) PRIMARY KEY,
				event_id VARCHAR(255) NOT NULL UNIQUE REFERENCES events(id),
				event_type VARCHAR(100) NOT NULL,
				priority VARCHAR(10) NOT NULL CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
				priority_rank SMALLINT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'retrying')),
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				claimed_at TIMESTAMP WITH TIME ZONE,
				claimed_by VARCHAR(255),
				cancel_requested BOOLEAN NOT NULL DEFAULT false,
				last_error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automation_queue_claim
				ON automation_queue(priority_rank DESC, scheduled_at ASC, created_at ASC)
				WHERE status IN ('pending', 'retrying');
			CREATE INDEX idx_automation_queue_status ON automation_queue(status, updated_at DESC);
		`,
		3: `
			-- Execution and action logs, tasks
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_version INTEGER NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				queue_item_id VARCHAR(255),
				status VARCHAR(20) NOT NULL,
				node_results JSONB NOT NULL DEFAULT '{}',
				execution_path TEXT[] NOT NULL DEFAULT '{}',
				error_message TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow ON workflow_executions(workflow_id, started_at DESC);
			CREATE INDEX idx_workflow_executions_event ON workflow_executions(event_id);

			CREATE TABLE action_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL,
				result JSONB,
				retry_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_action_executions_execution ON action_executions(execution_id, executed_at);

			CREATE TABLE tasks (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				source_event_id VARCHAR(255) NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				priority VARCHAR(10) NOT NULL,
				assignee VARCHAR(255),
				due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_source_event ON tasks(source_event_id);
		`,
	}
}
