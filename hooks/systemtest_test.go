package hooks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/hooks/hooktest"
)

func systemTestHook() (*hooktest.Client, *hooktest.LabSession) {
	lab := &hooktest.LabSession{FOutput: "0\n"}
	client := &hooktest.Client{
		FUser:    "rachel",
		FBaseURL: "https://data.example.com",
		FSession: lab,
	}
	return client, lab
}

func TestSystemTestStagesVerificationNotebook(t *testing.T) {
	client, lab := systemTestHook()
	h := hooks.NewSystemTest("", "", "")

	res, err := h.Run(context.Background(), labBundle("system-test/daily/nb01", client))
	require.NoError(t, err)

	_, replaced := res.Replacement()
	assert.False(t, replaced)

	assert.Equal(t, 1, client.HubAuths)
	assert.Equal(t, 1, client.LabAuths)
	require.Len(t, lab.Code, 1)
	// The staged script addresses the notebook without the route
	// discriminator segment, at the pinned verification repository.
	assert.Contains(t, lab.Code[0], `path = "daily/nb01"`)
	assert.Contains(t, lab.Code[0], "repos/sciplat/system-test/contents")
	assert.Contains(t, lab.Code[0], "ref=prod")
	assert.Contains(t, lab.Code[0], `"notebooks" / "on-demand"`)
	assert.Equal(t, 1, lab.Closed)
}

func TestSystemTestSerialRewritesLastTargetComponent(t *testing.T) {
	client, lab := systemTestHook()
	lab.FOutput = "3\n"
	h := hooks.NewSystemTest("", "", "")

	res, err := h.Run(context.Background(), labBundle("system-test/daily/nb01", client))
	require.NoError(t, err)

	next, replaced := res.Replacement()
	require.True(t, replaced)
	assert.Equal(t, "3", next.UniqueID)
	assert.Equal(t,
		"${base_url}/nb/user/${user}/lab/tree/${path}-${unique_id}.ipynb",
		next.Target)
}

func TestSystemTestRequiresNotebookName(t *testing.T) {
	client, _ := systemTestHook()
	h := hooks.NewSystemTest("", "", "")

	_, err := h.Run(context.Background(), labBundle("system-test", client))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notebook name")
}
