package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/toukir-bd/ImVeo/internal/infra"
)

const ProviderGemini = "gemini"

// QSelectIntegrationToken and QUpsertIntegrationToken are the only queries the
// service issues; both carry the marker line consumed by infra.SQLRunner.
const qSelectIntegrationToken = `--sql 3f2c6b18-94ae-4d02-b1c5-20c6f4d9e8a1
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const qUpsertIntegrationToken = `--sql c1a9e374-5b20-4e8f-9d36-7f12a8b4c5d2
with incoming as (
    select
        $1::text as provider,
        $2::text as token,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), (select provider from incoming), (select token from incoming), (select properties from incoming), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

// Store reads and writes integration API keys in Postgres.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// Token returns the stored key for a provider, or empty when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, qSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.upsert(ctx, ProviderGemini, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, qUpsertIntegrationToken, provider, token, raw)
	return err
}
