package service_test

import (
	"github.com/sakashimaa/go-fulfillment/internal/domain"
)

func (s *IntegrationTestSuite) TestAdjust_AppliesOnce() {
	s.seedStock(1, 10)

	result, err := s.Inventory.Adjust(s.Ctx, 1, -3, "restock-key-1", domain.AdjustReasonManual)
	s.Require().NoError(err)
	s.Require().True(result.Applied)
	s.Require().EqualValues(7, result.Stock.Quantity)

	// Same key again: no second decrement, applied=false.
	replay, err := s.Inventory.Adjust(s.Ctx, 1, -3, "restock-key-1", domain.AdjustReasonManual)
	s.Require().NoError(err)
	s.Require().False(replay.Applied)
	s.Require().EqualValues(7, replay.Stock.Quantity)

	s.Require().EqualValues(7, s.stockOf(1))
	s.Require().EqualValues(1, s.ledgerCount(1))
}

func (s *IntegrationTestSuite) TestAdjust_KeyReusedForOtherVariant() {
	s.seedStock(1, 10)
	s.seedStock(2, 10)

	_, err := s.Inventory.Adjust(s.Ctx, 1, -1, "shared-key", domain.AdjustReasonManual)
	s.Require().NoError(err)

	_, err = s.Inventory.Adjust(s.Ctx, 2, -1, "shared-key", domain.AdjustReasonManual)
	s.Require().ErrorIs(err, domain.ErrStateConflict)

	s.Require().EqualValues(10, s.stockOf(2))
	s.Require().EqualValues(0, s.ledgerCount(2))
}

func (s *IntegrationTestSuite) TestAdjust_InsufficientStock() {
	s.seedStock(1, 2)

	_, err := s.Inventory.Adjust(s.Ctx, 1, -5, "oversell-key", domain.AdjustReasonOrder)
	s.Require().ErrorIs(err, domain.ErrStateConflict)

	// Rejected adjustment leaves no trace: stock and ledger untouched,
	// and the key stays free for a corrected retry.
	s.Require().EqualValues(2, s.stockOf(1))
	s.Require().EqualValues(0, s.ledgerCount(1))

	result, err := s.Inventory.Adjust(s.Ctx, 1, -2, "oversell-key", domain.AdjustReasonOrder)
	s.Require().NoError(err)
	s.Require().True(result.Applied)
	s.Require().EqualValues(0, s.stockOf(1))
}

func (s *IntegrationTestSuite) TestAdjust_BlankKeyRejected() {
	s.seedStock(1, 10)

	_, err := s.Inventory.Adjust(s.Ctx, 1, 1, "  ", domain.AdjustReasonRestock)
	s.Require().ErrorIs(err, domain.ErrValidation)
}

func (s *IntegrationTestSuite) TestAdjust_CreatesMissingVariantRow() {
	// No seed: a restock against an unknown variant starts from zero.
	result, err := s.Inventory.Adjust(s.Ctx, 77, 5, "restock-77", domain.AdjustReasonRestock)
	s.Require().NoError(err)
	s.Require().True(result.Applied)
	s.Require().EqualValues(5, result.Stock.Quantity)

	// But a decrement against an unknown variant is an oversell.
	_, err = s.Inventory.Adjust(s.Ctx, 78, -1, "drain-78", domain.AdjustReasonOrder)
	s.Require().ErrorIs(err, domain.ErrStateConflict)
}
