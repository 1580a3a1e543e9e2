package pdf

import (
	"context"
	"io"

	ledgerdomain "github.com/smallbiznis/gavel/internal/ledger/domain"
	"go.uber.org/fx"
)

type Provider interface {
	GenerateBill(ctx context.Context, report *ledgerdomain.BillReport) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
