package riskco

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

var errSample = xerrors.New("sample")

func failingCall() error {
	return xerrors.Errorf("broken: %w", errSample)
}

func TestError_ErrorOrNil(t *testing.T) {
	err := ErrorOrNil(failingCall(), "request")

	require.Equal(t, "request: broken: sample", err.Error())
	require.Nil(t, ErrorOrNil(nil, "request"))
}

// The wrapper must stay invisible to the message while keeping the chain
// intact for comparisons.
func TestError_WrapError(t *testing.T) {
	err := WrapError(failingCall())

	require.Equal(t, "broken: sample", err.Error())
	require.Contains(t, fmt.Sprintf("%+v", err), ".failingCall")
	require.True(t, xerrors.Is(err, errSample))
	require.False(t, xerrors.Is(err, xerrors.New("other")))
}
