package postgres

import (
	"context"
	"fmt"
)

// Schema creates the catalog tables. Owner ids reference the external user
// subsystem, so user_asset.user_id carries no foreign key.
const Schema = `
CREATE TABLE IF NOT EXISTS asset (
	id               BIGSERIAL PRIMARY KEY,
	kind             VARCHAR(16)   NOT NULL DEFAULT 'photo',
	filename         VARCHAR(128)  NOT NULL,
	content_type     VARCHAR(128)  NOT NULL,
	size             BIGINT        NOT NULL CHECK (size > 0),
	duration_seconds INTEGER       NOT NULL DEFAULT 0,
	date_taken       TIMESTAMPTZ   NOT NULL,
	is_public        BOOLEAN       NOT NULL DEFAULT FALSE,
	is_deleted       BOOLEAN       NOT NULL DEFAULT FALSE,
	object_key       VARCHAR(1024) NOT NULL,
	created_at       TIMESTAMPTZ   NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ   NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_asset (
	id       BIGSERIAL PRIMARY KEY,
	user_id  BIGINT NOT NULL,
	asset_id BIGINT NOT NULL REFERENCES asset(id),
	CONSTRAINT unique_user_asset UNIQUE (user_id, asset_id)
);

CREATE INDEX IF NOT EXISTS idx_user_asset_asset_id ON user_asset (asset_id);
`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return nil
}
