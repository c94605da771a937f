package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdpscope/browseragent/internal/cdperrors"
	"github.com/cdpscope/browseragent/internal/facade"
)

func TestPrintActionResultSuccessReturnsNilError(t *testing.T) {
	err := printActionResult(facade.ActionResult{Success: true, ActionType: "click"})
	assert.NoError(t, err)
}

func TestPrintActionResultFailurePropagatesMessage(t *testing.T) {
	err := printActionResult(facade.ActionResult{
		Success:      false,
		ActionType:   "click",
		ErrorKind:    cdperrors.KindNotFound,
		ErrorMessage: "element [3] not found",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExitCodeForMapsCanceledContextTo130(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	<-ctx.Done()

	assert.Equal(t, 130, ExitCodeFor(ctx, context.Canceled))
}

func TestExitCodeForMapsNilErrorToZero(t *testing.T) {
	assert.Equal(t, 0, ExitCodeFor(context.Background(), nil))
}

func TestExitCodeForMapsOtherErrorsToOne(t *testing.T) {
	assert.Equal(t, 1, ExitCodeFor(context.Background(), assertTestErr))
}

var assertTestErr = &cdperrors.Error{Kind: cdperrors.KindConnection, Message: "boom"}

func TestMain(m *testing.M) {
	// Keep cobra's usage/error noise out of go test's output capture.
	var buf bytes.Buffer
	rootCmd.SetErr(&buf)
	os.Exit(m.Run())
}
