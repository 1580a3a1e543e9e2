package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	ledgerdomain "github.com/smallbiznis/gavel/internal/ledger/domain"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
)

var ErrNilReport = errors.New("nil_bill_report")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateBill(ctx context.Context, report *ledgerdomain.BillReport) (io.Reader, error) {
	if report == nil {
		return nil, ErrNilReport
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Auction bill", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(14,
		col.New(6).Add(
			text.New("User: "+report.User, props.Text{Top: 0}),
			text.New("Generated: "+report.GeneratedAt.UTC().Format(time.RFC1123), props.Text{Top: 5}),
		),
		col.New(6),
	)

	m.AddRow(10,
		text.NewCol(3, "Auction", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Fixed fee", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Variable fee", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(report.Lines) == 0 {
		m.AddRow(10, text.NewCol(12, "No charges.", props.Text{Size: 9}))
	}
	for _, line := range report.Lines {
		m.AddRow(8,
			text.NewCol(3, strconv.FormatInt(line.Charge.AuctionID, 10), props.Text{Size: 9}),
			text.NewCol(3, money(line.Charge.Price), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(line.FixedFee), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(line.VariableFee), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(line.Fee), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total fee", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, money(report.TotalFee), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	m.AddRow(14,
		text.NewCol(12, "Price schedule", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
	)
	m.AddRow(8,
		text.NewCol(4, "Range", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Fixed fee", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(4, "Variable fee", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, tier := range report.Schedule {
		m.AddRow(8,
			text.NewCol(4, tierRange(tier), props.Text{Size: 9}),
			text.NewCol(4, money(tier.FixedFee), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(4, fmt.Sprintf("%.1f%%", tier.VariableFeePercent*100), props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func tierRange(tier pricetierdomain.PriceTier) string {
	if tier.Unbounded() {
		return money(tier.StartPrice) + " and up"
	}
	return money(tier.StartPrice) + " - " + money(tier.EndPrice)
}
