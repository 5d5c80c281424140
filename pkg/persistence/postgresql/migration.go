package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'archived')),
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journeys_status ON journeys(status);
			CREATE INDEX idx_journeys_owner ON journeys(owner);
			CREATE INDEX idx_journeys_created_at ON journeys(created_at);

			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL,
				journey_name VARCHAR(255),
				channel VARCHAR(50),
				status VARCHAR(50) NOT NULL CHECK (status IN ('queued', 'running', 'done', 'stopped', 'failed')),
				total INT NOT NULL DEFAULT 0,
				processed INT NOT NULL DEFAULT 0,
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_journey_id ON runs(journey_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_created_at ON runs(created_at);

			CREATE TABLE contacts (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				phone VARCHAR(50) NOT NULL,
				vars JSONB,
				cursor VARCHAR(255) NOT NULL DEFAULT '',
				state VARCHAR(50) NOT NULL CHECK (state IN ('active', 'waiting', 'waiting-inbound', 'done', 'failed')),
				due_at TIMESTAMP WITH TIME ZONE,
				wait JSONB,
				last_inbound JSONB,
				history JSONB NOT NULL DEFAULT '[]',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_contacts_run_id ON contacts(run_id);
			CREATE INDEX idx_contacts_state ON contacts(state);
			CREATE INDEX idx_contacts_phone_state ON contacts(phone, state);
		`,
	}
}
