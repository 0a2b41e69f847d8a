package apierror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageWithAndWithoutCause(t *testing.T) {
	plain := New(400, "bad request")
	require.Equal(t, "bad request", plain.Error())

	wrapped := plain.WithCause(errors.New("boom"))
	require.Equal(t, "bad request: boom", wrapped.Error())
	require.Equal(t, 400, wrapped.Status)
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := New(500, "failed").WithCause(cause)
	require.ErrorIs(t, wrapped, cause)
}

func TestUnauthorizedDefaultsMessage(t *testing.T) {
	require.Equal(t, "Unauthorized", Unauthorized("").Message)
	require.Equal(t, "custom", Unauthorized("custom").Message)
}

func TestInternalDefaultsMessage(t *testing.T) {
	require.Equal(t, "Internal error", Internal("").Message)
	require.Equal(t, "custom", Internal("custom").Message)
}

func TestConstructorStatusCodes(t *testing.T) {
	require.Equal(t, 404, InvalidPath().Status)
	require.Equal(t, 400, MissingContent().Status)
	require.Equal(t, 413, TooLarge().Status)
	require.Equal(t, 429, RateLimited().Status)
	require.Equal(t, 403, IncorrectModificationKey().Status)
	require.Equal(t, 406, NotAcceptable("x").Status)
	require.Equal(t, 404, UncompressFailed().Status)
	require.Equal(t, 408, Timeout().Status)
}

func TestAsDistinguishesErrorType(t *testing.T) {
	apiErr := InvalidPath()
	var err error = apiErr
	got, ok := As(err)
	require.True(t, ok)
	require.Same(t, apiErr, got)

	_, ok = As(errors.New("not an apierror"))
	require.False(t, ok)
}
