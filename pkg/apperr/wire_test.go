package apperr_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bedrock/pkg/apperr"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, apperr.Encode(nil))
		require.NoError(t, apperr.Decode(nil))
	})

	t.Run("preserves name details and cause chain", func(t *testing.T) {
		t.Parallel()

		root := apperr.New("NotFoundError", "collection missing", map[string]any{"collection": "users"})
		err := apperr.Wrap(root, "SeedError", "seed failed", map[string]any{"attempt": 1})

		w := apperr.Encode(err)
		require.Equal(t, apperr.WireVersion, w.V)
		require.Equal(t, "SeedError", w.Name)
		require.NotNil(t, w.Cause)
		require.Equal(t, "NotFoundError", w.Cause.Name)
		require.NoError(t, w.Validate())

		got := apperr.Decode(w)
		var ae *apperr.Error
		require.ErrorAs(t, got, &ae)
		require.Equal(t, "SeedError", ae.Name)
		require.Equal(t, "seed failed", ae.Error())
		require.Equal(t, map[string]any{"attempt": 1}, ae.Details)

		var cause *apperr.Error
		require.ErrorAs(t, ae.Unwrap(), &cause)
		require.Equal(t, "NotFoundError", cause.Name)
		require.True(t, apperr.HasName(got, "NotFoundError"))
		require.False(t, apperr.HasName(got, "OtherError"))
	})

	t.Run("plain errors use default name and unwrap chain", func(t *testing.T) {
		t.Parallel()

		inner := errors.New("connection refused")
		err := fmt.Errorf("dial: %w", inner)

		w := apperr.Encode(err)
		require.Equal(t, apperr.DefaultName, w.Name)
		require.Equal(t, "dial: connection refused", w.Message)
		require.NotNil(t, w.Cause)
		require.Equal(t, "connection refused", w.Cause.Message)
		require.Nil(t, w.Cause.Cause)
	})

	t.Run("wrapped errors keep the inner name and details", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("seeding: %w", apperr.New("SeedError", "seed failed", map[string]any{"rows": 3}))

		w := apperr.Encode(err)
		require.Equal(t, "SeedError", w.Name)
		require.Equal(t, "seeding: seed failed", w.Message)
		require.Equal(t, map[string]any{"rows": 3}, w.Details)
		require.NotNil(t, w.Cause)
		require.Equal(t, "SeedError", w.Cause.Name)

		got := apperr.Decode(w)
		var ae *apperr.Error
		require.ErrorAs(t, got, &ae)
		require.Equal(t, "SeedError", ae.Name)
		require.Equal(t, "seeding: seed failed", ae.Error())
	})

	t.Run("typed errors are named after their type", func(t *testing.T) {
		t.Parallel()

		w := apperr.Encode(&os.PathError{Op: "open", Path: "/seed.json", Err: os.ErrNotExist})
		require.Equal(t, "*fs.PathError", w.Name)
		require.NotNil(t, w.Cause)
		require.Equal(t, apperr.DefaultName, w.Cause.Name)
		require.Equal(t, os.ErrNotExist.Error(), w.Cause.Message)
	})

	t.Run("rejects unknown version", func(t *testing.T) {
		t.Parallel()

		w := &apperr.Wire{V: 99, Name: "X"}
		require.ErrorIs(t, w.Validate(), apperr.ErrUnsupportedVersion)
	})
}

func TestError_Detail(t *testing.T) {
	t.Parallel()

	e := apperr.New("X", "", nil)
	_, ok := e.Detail("missing")
	require.False(t, ok)
	require.Equal(t, "X", e.Error())

	e = apperr.New("X", "msg", map[string]any{"k": "v"})
	v, ok := e.Detail("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
