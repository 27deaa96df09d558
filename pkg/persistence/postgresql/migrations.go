package postgresql

// migrations returns the DDL migrations for the PostgreSQL store, keyed by
// schema version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_records (
				message_id             TEXT PRIMARY KEY,
				email_subject          TEXT NOT NULL DEFAULT '',
				email_from             TEXT NOT NULL DEFAULT '',
				email_to               TEXT NOT NULL DEFAULT '',
				email_body_preview     TEXT NOT NULL DEFAULT '',
				current_state          TEXT NOT NULL,
				previous_state         TEXT NOT NULL DEFAULT '',
				ai_reply_text          TEXT NOT NULL DEFAULT '',
				ai_reply_generated_at  TIMESTAMP WITH TIME ZONE,
				sms_message_id         TEXT NOT NULL DEFAULT '',
				sms_sent_at            TIMESTAMP WITH TIME ZONE,
				sms_phone_number       TEXT NOT NULL DEFAULT '',
				user_command           TEXT NOT NULL DEFAULT '',
				user_edit_instructions TEXT NOT NULL DEFAULT '',
				user_responded_at      TIMESTAMP WITH TIME ZONE,
				edit_iteration         INTEGER NOT NULL DEFAULT 0,
				reply_sent_at          TIMESTAMP WITH TIME ZONE,
				reply_message_id       TEXT NOT NULL DEFAULT '',
				error_message          TEXT NOT NULL DEFAULT '',
				retry_count            INTEGER NOT NULL DEFAULT 0,
				created_at             TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at             TIMESTAMP WITH TIME ZONE NOT NULL,
				timeout_at             TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_records_current_state
				ON workflow_records (current_state);

			CREATE INDEX IF NOT EXISTS idx_workflow_records_timeout_at
				ON workflow_records (timeout_at)
				WHERE timeout_at IS NOT NULL;

			CREATE TABLE IF NOT EXISTS workflow_transitions (
				id           BIGSERIAL PRIMARY KEY,
				message_id   TEXT NOT NULL REFERENCES workflow_records (message_id),
				from_state   TEXT,
				to_state     TEXT NOT NULL,
				reason       TEXT NOT NULL DEFAULT '',
				error_detail TEXT NOT NULL DEFAULT '',
				created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_transitions_message_id
				ON workflow_transitions (message_id);
		`,
	}
}
