package cli

import (
	"github.com/mrz1836/paycart/internal/approval"
	"github.com/mrz1836/paycart/internal/backend"
	"github.com/mrz1836/paycart/internal/chain/eth"
	"github.com/mrz1836/paycart/internal/checkout"
	"github.com/mrz1836/paycart/internal/config"
	"github.com/mrz1836/paycart/internal/journal"
	"github.com/mrz1836/paycart/internal/lending"
	"github.com/mrz1836/paycart/internal/service/cart"
)

// Compile-time checks that the concrete types the commands build satisfy
// the orchestrator's collaborator interfaces.
var (
	_ checkout.Chain            = (*eth.Adapter)(nil)
	_ checkout.EventSource      = (*eth.Adapter)(nil)
	_ checkout.Approver         = (*approval.Controller)(nil)
	_ checkout.Borrower         = (*lending.Gateway)(nil)
	_ checkout.OrderStore       = (*backend.Client)(nil)
	_ checkout.CartRefresher    = (*cart.Service)(nil)
	_ checkout.Journal          = (*journal.Store)(nil)
	_ checkout.ReconcileJournal = (*journal.Store)(nil)
	_ checkout.LogWriter        = (*config.Logger)(nil)
	_ checkout.Navigator        = (*viewPrinter)(nil)
	_ approval.Chain            = (*eth.Adapter)(nil)
	_ lending.Chain             = (*eth.Adapter)(nil)
	_ cart.Backend              = (*backend.Client)(nil)
)
