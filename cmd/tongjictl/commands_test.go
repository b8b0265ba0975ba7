package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tongjisync/internal/record"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"fetch", "sites", "correct"}, names)
}

func TestFetchCmd_RequiresSite(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"fetch"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"site" not set`)
}

func TestFetchCmd_Flags(t *testing.T) {
	cmd := newFetchCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--site", "123", "--page-size", "20", "--visitor", "v1"}))

	site, _ := cmd.Flags().GetString("site")
	size, _ := cmd.Flags().GetInt("page-size")
	visitor, _ := cmd.Flags().GetString("visitor")
	assert.Equal(t, "123", site)
	assert.Equal(t, 20, size)
	assert.Equal(t, "v1", visitor)
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, []record.Record{{
		Visitor: record.Visitor{VisitorID: "1001"},
		Session: record.Session{SessionID: "s_1", Referrer: "https://a.com/"},
	}}))

	assert.Contains(t, buf.String(), "\n  {")
	assert.Contains(t, buf.String(), "https://a.com/")

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s_1", got[0]["session"].(map[string]any)["session_id"])
	assert.Nil(t, got[0]["event_list"])
}

func TestWriteRecords_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRecords(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
