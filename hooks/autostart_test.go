package hooks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/hooks/hooktest"
)

func TestAutostartLabAlreadyRunning(t *testing.T) {
	client := &hooktest.Client{FUser: "rachel", FBaseURL: "https://data.example.com"}
	h := hooks.NewAutostartLab(time.Minute)

	res, err := h.Run(context.Background(), labBundle("tutorials/nb01", client))
	require.NoError(t, err)

	_, replaced := res.Replacement()
	assert.False(t, replaced)
	assert.Zero(t, client.Spawned)
	assert.Zero(t, client.Waited)
}

func TestAutostartLabSpawnsAndWaits(t *testing.T) {
	client := &hooktest.Client{
		FUser:       "rachel",
		FBaseURL:    "https://data.example.com",
		FLabStopped: true,
	}
	h := hooks.NewAutostartLab(time.Minute)

	res, err := h.Run(context.Background(), labBundle("tutorials/nb01", client))
	require.NoError(t, err)

	_, replaced := res.Replacement()
	assert.False(t, replaced)
	assert.Equal(t, 1, client.Spawned)
	assert.Equal(t, 1, client.Waited)
}

func TestAutostartLabSpawnTimeout(t *testing.T) {
	client := &hooktest.Client{
		FUser:       "rachel",
		FBaseURL:    "https://data.example.com",
		FLabStopped: true,
		FWaitErr:    errors.New("lab did not become ready within 1m0s"),
	}
	h := hooks.NewAutostartLab(time.Minute)

	_, err := h.Run(context.Background(), labBundle("tutorials/nb01", client))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become ready")
}
