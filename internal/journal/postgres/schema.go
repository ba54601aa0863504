package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transfer_journal (
	transfer_id BYTEA PRIMARY KEY,
	chain_id BIGINT NOT NULL,
	token BYTEA NOT NULL,
	from_address BYTEA NOT NULL,
	to_address BYTEA NOT NULL,
	amount NUMERIC(78, 0) NOT NULL,
	nonce BIGINT NOT NULL,
	tx_hash BYTEA NOT NULL,

	state SMALLINT NOT NULL,

	block_number BIGINT,
	gas_used BIGINT,
	revert_reason TEXT,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT transfer_id_len CHECK (octet_length(transfer_id) = 32),
	CONSTRAINT token_len CHECK (octet_length(token) = 20),
	CONSTRAINT from_address_len CHECK (octet_length(from_address) = 20),
	CONSTRAINT to_address_len CHECK (octet_length(to_address) = 20),
	CONSTRAINT tx_hash_len CHECK (octet_length(tx_hash) = 32),
	CONSTRAINT chain_id_pos CHECK (chain_id > 0),
	CONSTRAINT amount_nonneg CHECK (amount >= 0),
	CONSTRAINT nonce_nonneg CHECK (nonce >= 0),
	CONSTRAINT state_range CHECK (state >= 1 AND state <= 3)
);

CREATE UNIQUE INDEX IF NOT EXISTS transfer_journal_tx_hash_idx ON transfer_journal (tx_hash);
CREATE INDEX IF NOT EXISTS transfer_journal_state_idx ON transfer_journal (state);
`
