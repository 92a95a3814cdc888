package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/types"
)

func TestWriteSuccessWrapsPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"membership_id": "DSTARS-000042"})

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope types.SuccessEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "DSTARS-000042", data["membership_id"])
}

func TestWriteErrorMapsCodesToStatus(t *testing.T) {
	cases := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeValidation, 422},
		{pkgerrors.CodeUnauthorized, 401},
		{pkgerrors.CodeForbidden, 403},
		{pkgerrors.CodeNotFound, 404},
		{pkgerrors.CodeStateConflict, 422},
		{pkgerrors.CodeRateLimit, 429},
		{pkgerrors.CodeInternal, 500},
		{pkgerrors.CodeDependency, 503},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, pkgerrors.New(tc.code, "boom"))
		require.Equal(t, tc.status, rec.Code, "code %s", tc.code)
	}
}

func TestWriteErrorExposesClientMessagesOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeNotFound, "member not found"))

	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "NOT_FOUND", envelope.Error.Code)
	require.Equal(t, "member not found", envelope.Error.Message)

	// Internal messages are never echoed to clients.
	rec = httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeInternal, "db exploded at 0x1f"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotContains(t, envelope.Error.Message, "exploded")
}

func TestWriteErrorWrapsUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("plain failure"))
	require.Equal(t, 500, rec.Code)
}
