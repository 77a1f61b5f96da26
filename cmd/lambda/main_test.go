package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/app"
)

func TestHandlerForCoversEveryFunction(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	c, err := app.Build(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	defer c.Close(context.Background())

	names := []string{
		"runRawCrawler", "checkRawCrawler", "runETL", "checkETL",
		"runProcessedCrawler", "checkProcessedCrawler", "sendResults",
		"runQuery", "checkQuery", "sendReport",
		"processCdrs", "sendQueryReport", "generateCdrs", "generateAthenaQuery",
	}
	for _, name := range names {
		h, err := handlerFor(name, c)
		require.NoError(t, err, name)
		assert.NotNil(t, h, name)
	}

	_, err = handlerFor("launchRockets", c)
	assert.Error(t, err)
}
