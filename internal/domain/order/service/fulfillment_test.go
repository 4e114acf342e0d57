package service

import (
	"testing"

	"ecommerce_backend/internal/domain/order/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testOrder(id, userID, method, paymentStatus, shippingStatus string) *model.Order {
	o := &model.Order{
		UserID:         userID,
		PaymentMethod:  method,
		PaymentStatus:  paymentStatus,
		ShippingStatus: shippingStatus,
		Items: []model.OrderItem{
			{ProductID: "p1", Size: "M", Quantity: 2, UnitPrice: 799},
		},
	}
	o.ID = id
	return o
}

func TestUpdateShippingStatus(t *testing.T) {
	t.Run("Forward transition succeeds", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingProcessing)

		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("UpdateShippingStatus", "o1", model.ShippingProcessing, model.ShippingShipped, mock.Anything, "").Return(nil)

		err := f.svc.UpdateShippingStatus("o1", model.ShippingShipped, "")

		assert.NoError(t, err)
		f.orders.AssertExpectations(t)
	})

	t.Run("Skipping a stage is rejected", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingProcessing)

		f.orders.On("GetByID", "o1").Return(order, nil)

		err := f.svc.UpdateShippingStatus("o1", model.ShippingDelivered, "")

		assert.ErrorIs(t, err, ErrIllegalTransition)
		f.orders.AssertNotCalled(t, "UpdateShippingStatus",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Cancellation requires a reason", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingProcessing)

		f.orders.On("GetByID", "o1").Return(order, nil)

		err := f.svc.UpdateShippingStatus("o1", model.ShippingCancelled, "")

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Cancelling a paid online order opens a refund", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodOnline, model.PaymentStatusPaid, model.ShippingShipped)

		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("UpdateShippingStatus", "o1", model.ShippingShipped, model.ShippingCancelled, mock.Anything, "changed my mind").Return(nil)
		f.orders.On("SetRefundStatus", "o1", model.RefundApplied, "", mock.Anything).Return(nil)

		err := f.svc.UpdateShippingStatus("o1", model.ShippingCancelled, "changed my mind")

		assert.NoError(t, err)
		f.orders.AssertCalled(t, "SetRefundStatus", "o1", model.RefundApplied, "", mock.Anything)
	})

	t.Run("Cancelling after delivery is rejected", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)

		err := f.svc.UpdateShippingStatus("o1", model.ShippingCancelled, "too late")

		assert.ErrorIs(t, err, ErrIllegalTransition)
	})
}

func TestCancelOrder(t *testing.T) {
	t.Run("Owner can cancel", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingProcessing)

		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("UpdateShippingStatus", "o1", model.ShippingProcessing, model.ShippingCancelled, mock.Anything, "wrong size").Return(nil)

		err := f.svc.CancelOrder("o1", "u1", "wrong size")

		assert.NoError(t, err)
	})

	t.Run("Another user cannot cancel", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingProcessing)

		f.orders.On("GetByID", "o1").Return(order, nil)

		err := f.svc.CancelOrder("o1", "u2", "not mine")

		assert.ErrorIs(t, err, ErrNotOrderOwner)
	})
}

func TestMarkCODCollected(t *testing.T) {
	t.Run("Delivered cod order collects", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("MarkCODCollected", "o1").Return(nil)

		assert.NoError(t, f.svc.MarkCODCollected("o1"))
	})

	t.Run("Online order rejected", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodOnline, model.PaymentStatusPaid, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)

		assert.ErrorIs(t, f.svc.MarkCODCollected("o1"), ErrValidation)
	})

	t.Run("Collection before delivery rejected", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingShipped)

		f.orders.On("GetByID", "o1").Return(order, nil)

		assert.ErrorIs(t, f.svc.MarkCODCollected("o1"), ErrIllegalTransition)
	})
}

func TestRequestReturn(t *testing.T) {
	returnInput := ReturnRequestInput{ProductID: "p1", Size: "M", Quantity: 1, Reason: "damaged"}

	t.Run("Delivered order with matching line accepts return", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("CreateReturn", mock.AnythingOfType("*model.OrderReturn")).Return(nil)

		ret, err := f.svc.RequestReturn("o1", "u1", returnInput)

		assert.NoError(t, err)
		assert.Equal(t, model.ReturnRequested, ret.Status)
		assert.False(t, ret.RequestedAt.IsZero())
	})

	t.Run("Undelivered order rejects return", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingShipped)

		f.orders.On("GetByID", "o1").Return(order, nil)

		_, err := f.svc.RequestReturn("o1", "u1", returnInput)

		assert.ErrorIs(t, err, ErrReturnNotAllowed)
	})

	t.Run("Return line exceeding purchased quantity rejected", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)

		_, err := f.svc.RequestReturn("o1", "u1", ReturnRequestInput{ProductID: "p1", Size: "M", Quantity: 5, Reason: "damaged"})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Another user cannot request a return", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodCOD, model.PaymentStatusPending, model.ShippingDelivered)

		f.orders.On("GetByID", "o1").Return(order, nil)

		_, err := f.svc.RequestReturn("o1", "u2", returnInput)

		assert.ErrorIs(t, err, ErrNotOrderOwner)
	})
}

func TestAdvanceReturn(t *testing.T) {
	testReturn := func(status string) *model.OrderReturn {
		r := &model.OrderReturn{
			OrderID:   "o1",
			ProductID: "p1",
			Size:      "M",
			Quantity:  1,
			Status:    status,
		}
		r.ID = "r1"
		return r
	}

	t.Run("Forward transition succeeds", func(t *testing.T) {
		f := newFixture()

		f.orders.On("GetReturn", "r1").Return(testReturn(model.ReturnRequested), nil)
		f.orders.On("AdvanceReturn", "r1", model.ReturnRequested, model.ReturnPickupScheduled, mock.Anything).Return(nil)

		assert.NoError(t, f.svc.AdvanceReturn("r1", model.ReturnPickupScheduled))
	})

	t.Run("Skipping a stage is rejected", func(t *testing.T) {
		f := newFixture()

		f.orders.On("GetReturn", "r1").Return(testReturn(model.ReturnRequested), nil)

		assert.ErrorIs(t, f.svc.AdvanceReturn("r1", model.ReturnWarehoused), ErrIllegalTransition)
	})

	t.Run("Rejection after pickup is not allowed", func(t *testing.T) {
		f := newFixture()

		f.orders.On("GetReturn", "r1").Return(testReturn(model.ReturnPickedUp), nil)

		assert.ErrorIs(t, f.svc.AdvanceReturn("r1", model.ReturnRejected), ErrIllegalTransition)
	})

	t.Run("Warehoused return marks order returned and opens refund", func(t *testing.T) {
		f := newFixture()
		order := testOrder("o1", "u1", model.PaymentMethodOnline, model.PaymentStatusPaid, model.ShippingDelivered)

		f.orders.On("GetReturn", "r1").Return(testReturn(model.ReturnPickedUp), nil)
		f.orders.On("AdvanceReturn", "r1", model.ReturnPickedUp, model.ReturnWarehoused, mock.Anything).Return(nil)
		f.orders.On("GetByID", "o1").Return(order, nil)
		f.orders.On("UpdateShippingStatus", "o1", model.ShippingDelivered, model.ShippingReturned, mock.Anything, "").Return(nil)
		f.orders.On("SetRefundStatus", "o1", model.RefundApplied, "", mock.Anything).Return(nil)

		assert.NoError(t, f.svc.AdvanceReturn("r1", model.ReturnWarehoused))
		f.orders.AssertExpectations(t)
	})
}

func TestUpdateRefundStatus(t *testing.T) {
	t.Run("Known status accepted", func(t *testing.T) {
		f := newFixture()

		f.orders.On("SetRefundStatus", "o1", model.RefundCompleted, "rfnd_1", mock.Anything).Return(nil)

		assert.NoError(t, f.svc.UpdateRefundStatus("o1", model.RefundCompleted, "rfnd_1"))
	})

	t.Run("Unknown status rejected", func(t *testing.T) {
		f := newFixture()

		err := f.svc.UpdateRefundStatus("o1", "bogus", "")

		assert.ErrorIs(t, err, ErrValidation)
		f.orders.AssertNotCalled(t, "SetRefundStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
