package hooks_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/hooks/hooktest"
)

func TestPortalQueryCreatesNotebook(t *testing.T) {
	client := &hooktest.Client{FUser: "rachel", FBaseURL: "https://data.example.com"}
	h := hooks.NewPortalQuery()

	res, err := h.Run(context.Background(), labBundle("queries/q-42", client))
	require.NoError(t, err)

	_, replaced := res.Replacement()
	assert.False(t, replaced)

	require.Len(t, client.HeadURLs, 1)
	assert.Equal(t,
		"https://data.example.com/nb/user/rachel/files/notebooks/queries/portal_q-42.ipynb",
		client.HeadURLs[0])

	require.Len(t, client.PostURLs, 1)
	assert.Equal(t, "https://data.example.com/nb/user/rachel/ext/query", client.PostURLs[0])
	assert.Equal(t,
		map[string]string{"type": "portal", "value": "https://data.example.com/api/tap/async/q-42"},
		client.PostBodys[0])
}

func TestPortalQuerySkipsExistingNotebook(t *testing.T) {
	existing := "https://data.example.com/nb/user/rachel/files/notebooks/queries/portal_q-42.ipynb"
	client := &hooktest.Client{
		FUser:       "rachel",
		FBaseURL:    "https://data.example.com",
		FHeadStatus: map[string]int{existing: http.StatusOK},
	}
	h := hooks.NewPortalQuery()

	_, err := h.Run(context.Background(), labBundle("queries/q-42", client))
	require.NoError(t, err)
	assert.Empty(t, client.PostURLs)
}

func TestPortalQueryCreationFailure(t *testing.T) {
	client := &hooktest.Client{
		FUser:       "rachel",
		FBaseURL:    "https://data.example.com",
		FPostStatus: http.StatusBadGateway,
	}
	h := hooks.NewPortalQuery()

	_, err := h.Run(context.Background(), labBundle("queries/q-42", client))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
