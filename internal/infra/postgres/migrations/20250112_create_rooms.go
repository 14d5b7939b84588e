package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS rooms (
    code                   VARCHAR(6) PRIMARY KEY,
    status                 VARCHAR(16) NOT NULL DEFAULT 'waiting',
    game_mode              VARCHAR(32) NOT NULL,
    category               VARCHAR(64) NOT NULL,
    difficulty             VARCHAR(16) NOT NULL,
    max_players            INT NOT NULL,
    time_limit             INT NOT NULL,
    question_count         INT NOT NULL,
    current_question_index INT NOT NULL DEFAULT 0,
    total_questions        INT NOT NULL DEFAULT 0,
    question_start_time    TIMESTAMPTZ,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS players (
    id           VARCHAR(32) PRIMARY KEY,
    room_code    VARCHAR(6) NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
    name         VARCHAR(32) NOT NULL,
    avatar       VARCHAR(64) NOT NULL DEFAULT '',
    is_host      BOOLEAN NOT NULL DEFAULT FALSE,
    score        INT NOT NULL DEFAULT 0,
    has_answered BOOLEAN NOT NULL DEFAULT FALSE,
    joined_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_players_room ON players (room_code, joined_at);

CREATE TABLE IF NOT EXISTS questions (
    room_code            VARCHAR(6) NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
    question_index       INT NOT NULL,
    text                 TEXT NOT NULL,
    options              TEXT[] NOT NULL,
    correct_answer_index INT NOT NULL,
    category             VARCHAR(64) NOT NULL,
    difficulty           VARCHAR(16) NOT NULL,
    PRIMARY KEY (room_code, question_index)
);

CREATE TABLE IF NOT EXISTS answers (
    room_code       VARCHAR(6) NOT NULL,
    player_id       VARCHAR(32) NOT NULL,
    question_index  INT NOT NULL,
    selected_answer INT NOT NULL,
    time_ms         INT NOT NULL,
    correct         BOOLEAN NOT NULL,
    score           INT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
-- The unique index is what makes answer recording exactly-once under
-- concurrent submissions.
CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_once
    ON answers (room_code, player_id, question_index);

CREATE TABLE IF NOT EXISTS question_banks (
    category VARCHAR(64) PRIMARY KEY,
    data     JSONB NOT NULL
);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS question_banks;
DROP TABLE IF EXISTS answers;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS players;
DROP TABLE IF EXISTS rooms;
`)
			return err
		},
	)
}
