// Package pdf renders the virtual membership card delivered to verified,
// paid-up members.
package pdf

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// CardData carries everything printed on a membership card.
type CardData struct {
	MemberName    string
	MembershipID  string
	PlanName      string
	MemberSince   string
	ValidationURL string
}

// CardRenderer produces the PDF artifact for a card.
type CardRenderer struct{}

// NewCardRenderer returns a renderer with the house card layout.
func NewCardRenderer() *CardRenderer {
	return &CardRenderer{}
}

// Render lays out the card and returns the PDF bytes.
func (r *CardRenderer) Render(data CardData) ([]byte, error) {
	if strings.TrimSpace(data.MembershipID) == "" {
		return nil, fmt.Errorf("membership id is required")
	}
	if strings.TrimSpace(data.MemberName) == "" {
		return nil, fmt.Errorf("member name is required")
	}

	cfg := config.NewBuilder().
		WithDimensions(120, 70).
		WithLeftMargin(8).
		WithRightMargin(8).
		WithTopMargin(6).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "D'STARS FITNESS GYM", props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(6,
		text.NewCol(12, "Membership Card", props.Text{
			Size:  8,
			Align: align.Left,
		}),
	)

	m.AddRow(28,
		col.New(8).Add(
			text.New(data.MemberName, props.Text{Size: 11, Style: fontstyle.Bold, Top: 4}),
			text.New(data.MembershipID, props.Text{Size: 10, Top: 11}),
			text.New(data.PlanName, props.Text{Size: 8, Top: 17}),
			text.New("Member since "+data.MemberSince, props.Text{Size: 7, Top: 22}),
		),
		code.NewQrCol(4, data.ValidationURL, props.Rect{
			Center:  true,
			Percent: 95,
		}),
	)

	m.AddRow(6,
		text.NewCol(12, "Scan the QR code to validate this membership.", props.Text{
			Size:  6,
			Align: align.Left,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("rendering card: %w", err)
	}
	return doc.GetBytes(), nil
}
