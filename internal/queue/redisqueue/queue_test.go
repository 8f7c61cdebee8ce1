package redisqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNaming(t *testing.T) {
	q := &Queue{name: "jobs"}
	assert.Equal(t, "schedora:queue:jobs", q.mainKey())
	assert.Equal(t, "schedora:queue:jobs:dlq", q.dlqKey())
}

func TestDLQEntryRoundTrip(t *testing.T) {
	id := uuid.New()
	entry := DLQEntry{JobID: id, Reason: "max retries exhausted", MovedAt: time.Now().UTC().Truncate(time.Second)}

	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	var got DLQEntry
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, entry.JobID, got.JobID)
	assert.Equal(t, entry.Reason, got.Reason)
	assert.True(t, entry.MovedAt.Equal(got.MovedAt))
}

func TestParseMember(t *testing.T) {
	id := uuid.New()
	got, err := parseMember(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseMember("not-a-uuid")
	assert.Error(t, err)

	_, err = parseMember(42)
	assert.Error(t, err)
}
