package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coorderrors "goa.design/tandem/errors"
)

func TestWrapPreservesCauseChain(t *testing.T) {
	root := stderrors.New("network reset")
	mid := coorderrors.Wrap(coorderrors.KindAgentFault, "download failed", root)
	top := coorderrors.Wrap(coorderrors.KindAgentFault, "step failed", mid)

	assert.Equal(t, []string{"download failed", "network reset"}, top.Causes())
}

func TestFromErrorPassesThroughExistingCoordinatorError(t *testing.T) {
	original := coorderrors.New(coorderrors.KindTimeout, "deadline elapsed")
	got := coorderrors.FromError(original)
	assert.Same(t, original, got)
}

func TestFromErrorSynthesizesInternalKind(t *testing.T) {
	got := coorderrors.FromError(stderrors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, coorderrors.KindInternal, got.Kind)
	assert.Equal(t, "boom", got.Message)
}

func TestFromErrorNilIsNil(t *testing.T) {
	assert.Nil(t, coorderrors.FromError(nil))
}

func TestIsMatchesByKind(t *testing.T) {
	err := coorderrors.New(coorderrors.KindTimeout, "step 3 timed out")
	assert.True(t, stderrors.Is(err, coorderrors.New(coorderrors.KindTimeout, "")))
	assert.False(t, stderrors.Is(err, coorderrors.New(coorderrors.KindCancelled, "")))
}

func TestUnwrapSupportsErrorsAs(t *testing.T) {
	root := coorderrors.New(coorderrors.KindAgentFault, "panic recovered")
	wrapped := coorderrors.Wrap(coorderrors.KindInternal, "unexpected", root)

	var target *coorderrors.CoordinatorError
	require.True(t, stderrors.As(wrapped.Unwrap(), &target))
	assert.Equal(t, coorderrors.KindAgentFault, target.Kind)
}

func TestErrorStringIncludesKind(t *testing.T) {
	err := coorderrors.New(coorderrors.KindConfig, "agent name must not be empty")
	assert.Equal(t, "config_error: agent name must not be empty", err.Error())
}
