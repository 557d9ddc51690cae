package fieldreq_test

import (
	"strings"
	"testing"
	"time"

	"github.com/flowkit/go-optfetch/fieldreq"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := fieldreq.NewRegistry()
	require.Nil(t, r.FieldsFor("slack.postMessage"))

	err := r.Register("slack.postMessage",
		fieldreq.Requirement{Field: "channel", ResourceType: "channels", TTL: 5 * time.Minute},
		fieldreq.Requirement{Field: "thread", ResourceType: "threads", DependsOn: []string{"channels"}},
		fieldreq.Requirement{Field: "user", ResourceType: "users"},
	)
	require.NoError(t, err)

	reqs := r.FieldsFor("slack.postMessage")
	require.Len(t, reqs, 3)
	require.Equal(t, "channel", reqs[0].Field)
	require.Equal(t, "thread", reqs[1].Field)
	require.Equal(t, "user", reqs[2].Field)
	require.True(t, reqs[0].Independent())
	require.False(t, reqs[1].Independent())

	// Returned slice is a copy.
	reqs[0].Field = "changed"
	require.Equal(t, "channel", r.FieldsFor("slack.postMessage")[0].Field)
}

func TestRegisterReplacesField(t *testing.T) {
	r := fieldreq.NewRegistry()
	require.NoError(t, r.Register("notion.createPage",
		fieldreq.Requirement{Field: "database", ResourceType: "databases"},
		fieldreq.Requirement{Field: "property", ResourceType: "properties", DependsOn: []string{"databases"}},
	))
	require.NoError(t, r.Register("notion.createPage",
		fieldreq.Requirement{Field: "database", ResourceType: "databases", TTL: time.Minute},
		fieldreq.Requirement{Field: "icon", ResourceType: "icons"},
	))

	reqs := r.FieldsFor("notion.createPage")
	require.Len(t, reqs, 3)
	require.Equal(t, "database", reqs[0].Field)
	require.Equal(t, time.Minute, reqs[0].TTL)
	require.Equal(t, "property", reqs[1].Field)
	require.Equal(t, "icon", reqs[2].Field)
}

func TestRegisterInvalid(t *testing.T) {
	r := fieldreq.NewRegistry()
	require.Error(t, r.Register(""))
	require.Error(t, r.Register("n", fieldreq.Requirement{ResourceType: "x"}))
	require.Error(t, r.Register("n", fieldreq.Requirement{Field: "f"}))
	require.Error(t, r.Register("n",
		fieldreq.Requirement{Field: "ok", ResourceType: "x"},
		fieldreq.Requirement{Field: "f", ResourceType: "x", TTL: -time.Second},
	))
	require.Nil(t, r.FieldsFor("n"), "nothing registered after invalid input")
}

func TestLoad(t *testing.T) {
	catalog := `{
  "slack.postMessage": [
    {"field": "channel", "resourceType": "channels", "ttl": "5m"},
    {"field": "thread", "resourceType": "threads", "dependsOn": ["channels"]}
  ],
  "github.createIssue": [
    {"field": "repository", "resourceType": "repositories"},
    {"field": "labels", "resourceType": "labels", "dependsOn": ["repositories"]},
    {"field": "assignee", "resourceType": "collaborators", "dependsOn": ["repositories"]}
  ]
}`
	r := fieldreq.NewRegistry()
	require.NoError(t, r.Load(strings.NewReader(catalog)))
	require.Equal(t, []string{"github.createIssue", "slack.postMessage"}, r.NodeTypes())

	reqs := r.FieldsFor("slack.postMessage")
	require.Len(t, reqs, 2)
	require.Equal(t, 5*time.Minute, reqs[0].TTL)
	require.Equal(t, []string{"channels"}, reqs[1].DependsOn)

	reqs = r.FieldsFor("github.createIssue")
	require.Len(t, reqs, 3)
	require.Equal(t, "assignee", reqs[2].Field)
	require.Zero(t, reqs[0].TTL)
}

func TestLoadErrors(t *testing.T) {
	r := fieldreq.NewRegistry()
	require.ErrorContains(t, r.Load(strings.NewReader(`[]`)), "cannot decode")
	require.ErrorContains(t, r.Load(strings.NewReader(`{"n": [{"field": "f", "resourceType": "x", "ttl": "soon"}]}`)), "bad ttl")
	require.Error(t, r.Load(strings.NewReader(`{"n": [{"field": "f"}]}`)))
	require.Empty(t, r.NodeTypes())
}
