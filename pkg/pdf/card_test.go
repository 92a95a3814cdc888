package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderCard(t *testing.T) {
	renderer := NewCardRenderer()

	data, err := renderer.Render(CardData{
		MemberName:    "Jane Dela Cruz",
		MembershipID:  "DSTARS-000042",
		PlanName:      "Monthly Unlimited",
		MemberSince:   "2026-01-15",
		ValidationURL: "https://dstars.fit/api/v1/members/validate?token=abc",
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, "%PDF", string(data[:4]))
}

func TestRenderCardRequiresIdentity(t *testing.T) {
	renderer := NewCardRenderer()

	_, err := renderer.Render(CardData{MemberName: "Jane"})
	require.Error(t, err)

	_, err = renderer.Render(CardData{MembershipID: "DSTARS-000001"})
	require.Error(t, err)
}
