package service

import (
	"encoding/json"
	"testing"
	"time"

	addressModel "ecommerce_backend/internal/domain/address/model"
	addressRepo "ecommerce_backend/internal/domain/address/repository"
	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/internal/domain/order/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func confirmationInput() ClientConfirmationInput {
	return ClientConfirmationInput{
		GatewayOrderRef:   "order_abc",
		GatewayPaymentRef: "pay_123",
		Signature:         "valid-signature",
	}
}

func heldSession() *model.CheckoutSession {
	items, _ := json.Marshal([]model.LineItem{{Product: "p1", Quantity: 2, Size: "M", UnitPrice: 799}})
	return &model.CheckoutSession{
		GatewayOrderRef: "order_abc",
		UserID:          "session-user",
		AddressID:       "a1",
		Items:           items,
		Amount:          1598,
		Status:          model.SessionHeld,
		ExpiresAt:       time.Now().Add(10 * time.Minute),
	}
}

func TestConfirmClientPayment(t *testing.T) {
	t.Run("Invalid signature rejected with zero state change", func(t *testing.T) {
		f := newFixture()
		input := confirmationInput()
		input.Signature = "forged"

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "forged").Return(false)

		_, err := f.svc.ConfirmClientPayment(input)

		assert.ErrorIs(t, err, ErrInvalidSignature)
		f.checkouts.AssertNotCalled(t, "GetByRef", mock.Anything)
		f.orders.AssertNotCalled(t, "Create", mock.Anything)
		f.products.AssertNotCalled(t, "ReserveStock", mock.Anything)
	})

	t.Run("Held session commits hold and creates paid order without re-reserving", func(t *testing.T) {
		f := newFixture()
		input := confirmationInput()
		// 客户端载荷里的身份不被采信
		input.UserID = "attacker"

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(heldSession(), nil)
		f.checkouts.On("Commit", "order_abc").Return(true, nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(testSnapshot(), nil)

		var captured *model.Order
		f.orders.On("Create", mock.AnythingOfType("*model.Order")).
			Run(func(args mock.Arguments) {
				captured = args.Get(0).(*model.Order)
			}).Return(nil)
		f.notifier.On("NotifyAdmin", mock.Anything, mock.Anything, mock.Anything).Return()

		order, err := f.svc.ConfirmClientPayment(input)

		assert.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
		assert.Equal(t, model.SourceClient, order.ConfirmationSource)
		assert.Equal(t, "pay_123", *order.GatewayPaymentRef)
		// 身份取自服务端会话，不取自请求载荷
		assert.Equal(t, "session-user", captured.UserID)
		assert.Equal(t, 1598.0, captured.Amount)
		// 占用转正，不再二次扣库存
		f.products.AssertNotCalled(t, "ReserveStock", mock.Anything)
	})

	t.Run("Released hold re-reserves stock before creating the order", func(t *testing.T) {
		f := newFixture()

		released := heldSession()
		released.Status = model.SessionReleased

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(heldSession(), nil).Once()
		f.checkouts.On("Commit", "order_abc").Return(false, nil)
		f.checkouts.On("GetByRef", "order_abc").Return(released, nil).Once()
		f.products.On("ReserveStock", mock.Anything).Return(nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(testSnapshot(), nil)
		f.orders.On("Create", mock.AnythingOfType("*model.Order")).Return(nil)
		f.notifier.On("NotifyAdmin", mock.Anything, mock.Anything, mock.Anything).Return()

		_, err := f.svc.ConfirmClientPayment(confirmationInput())

		assert.NoError(t, err)
		f.products.AssertCalled(t, "ReserveStock", mock.Anything)
	})

	t.Run("Address failure after winning the hold compensates once and reopens the session", func(t *testing.T) {
		f := newFixture()

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(heldSession(), nil)
		f.checkouts.On("Commit", "order_abc").Return(true, nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(addressModel.Snapshot{}, addressRepo.ErrAddressNotFound)
		f.products.On("RestoreStock", mock.Anything).Return(nil)
		f.checkouts.On("Reopen", "order_abc").Return(true, nil)

		_, err := f.svc.ConfirmClientPayment(confirmationInput())

		assert.ErrorIs(t, err, addressRepo.ErrAddressNotFound)
		f.products.AssertNumberOfCalls(t, "RestoreStock", 1)
		f.checkouts.AssertCalled(t, "Reopen", "order_abc")
		f.orders.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("Retried confirmation holding no reservation skips compensation", func(t *testing.T) {
		f := newFixture()

		// 前一次确认已把占用转正，这次重试没有任何新扣减
		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(committedSession(), nil)
		f.checkouts.On("Commit", "order_abc").Return(false, nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(addressModel.Snapshot{}, addressRepo.ErrAddressNotFound)

		_, err := f.svc.ConfirmClientPayment(confirmationInput())

		assert.ErrorIs(t, err, addressRepo.ErrAddressNotFound)
		f.products.AssertNotCalled(t, "RestoreStock", mock.Anything)
		f.checkouts.AssertNotCalled(t, "Reopen", mock.Anything)
	})

	t.Run("Retried confirmation after address failure re-reserves instead of double restoring", func(t *testing.T) {
		f := newFixture()

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.addresses.On("ResolveSnapshot", "a1").Return(addressModel.Snapshot{}, addressRepo.ErrAddressNotFound)

		// 第一次确认：抢到转正，地址解析失败，回补并把会话退回 released
		f.checkouts.On("GetByRef", "order_abc").Return(heldSession(), nil).Once()
		f.checkouts.On("Commit", "order_abc").Return(true, nil).Once()
		f.products.On("RestoreStock", mock.Anything).Return(nil).Once()
		f.checkouts.On("Reopen", "order_abc").Return(true, nil).Once()

		_, err := f.svc.ConfirmClientPayment(confirmationInput())
		assert.ErrorIs(t, err, addressRepo.ErrAddressNotFound)

		// 第二次确认：会话已 released，重新预留后失败，只回补自己这份扣减
		released := heldSession()
		released.Status = model.SessionReleased
		f.checkouts.On("GetByRef", "order_abc").Return(released, nil).Once()
		f.checkouts.On("Commit", "order_abc").Return(false, nil).Once()
		f.checkouts.On("GetByRef", "order_abc").Return(released, nil).Once()
		f.products.On("ReserveStock", mock.Anything).Return(nil).Once()
		f.products.On("RestoreStock", mock.Anything).Return(nil).Once()

		_, err = f.svc.ConfirmClientPayment(confirmationInput())
		assert.ErrorIs(t, err, addressRepo.ErrAddressNotFound)

		// 每次确认只回补自己持有的那一份，账面进出两两相抵
		f.products.AssertNumberOfCalls(t, "ReserveStock", 1)
		f.products.AssertNumberOfCalls(t, "RestoreStock", 2)
		f.checkouts.AssertNumberOfCalls(t, "Reopen", 1)
		f.orders.AssertNotCalled(t, "Create", mock.Anything)
	})

	t.Run("Concurrent webhook win converges to a single order marked both", func(t *testing.T) {
		f := newFixture()

		existing := &model.Order{
			PaymentStatus:      model.PaymentStatusPaid,
			ConfirmationSource: model.SourceBoth,
		}

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(heldSession(), nil).Once()
		f.checkouts.On("Commit", "order_abc").Return(false, nil).Once()
		f.checkouts.On("GetByRef", "order_abc").Return(committedSession(), nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(testSnapshot(), nil)
		f.orders.On("Create", mock.AnythingOfType("*model.Order")).Return(repository.ErrDuplicatePaymentRef)
		f.orders.On("MarkPaid", "pay_123", model.SourceBoth).Return(true, nil)
		f.orders.On("GetByPaymentRef", "pay_123").Return(existing, nil)

		order, err := f.svc.ConfirmClientPayment(confirmationInput())

		assert.NoError(t, err)
		assert.Equal(t, model.SourceBoth, order.ConfirmationSource)
		// 占用早已提交，本确认没有新扣减，无需回补
		f.products.AssertNotCalled(t, "RestoreStock", mock.Anything)
	})

	t.Run("Missing session falls back to payload and reserves fresh stock", func(t *testing.T) {
		f := newFixture()
		input := confirmationInput()
		input.UserID = "u1"
		input.AddressID = "a1"
		input.Items = []model.LineItem{{Product: "p1", Quantity: 1, Size: "L"}}
		input.Amount = 999

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(nil, repository.ErrSessionNotFound)
		f.products.On("GetByID", "p1").Return(testProduct("p1", 999, 0), nil)
		f.products.On("ReserveStock", mock.Anything).Return(nil)
		f.addresses.On("ResolveSnapshot", "a1").Return(testSnapshot(), nil)
		f.orders.On("Create", mock.AnythingOfType("*model.Order")).Return(nil)
		f.notifier.On("NotifyAdmin", mock.Anything, mock.Anything, mock.Anything).Return()

		order, err := f.svc.ConfirmClientPayment(input)

		assert.NoError(t, err)
		assert.Equal(t, "u1", order.UserID)
		f.products.AssertCalled(t, "ReserveStock", mock.Anything)
	})

	t.Run("Missing session without user identity rejected", func(t *testing.T) {
		f := newFixture()

		f.gw.On("VerifyPaymentSignature", "order_abc", "pay_123", "valid-signature").Return(true)
		f.checkouts.On("GetByRef", "order_abc").Return(nil, repository.ErrSessionNotFound)

		_, err := f.svc.ConfirmClientPayment(confirmationInput())

		assert.ErrorIs(t, err, ErrValidation)
		f.orders.AssertNotCalled(t, "Create", mock.Anything)
	})
}

func committedSession() *model.CheckoutSession {
	s := heldSession()
	s.Status = model.SessionCommitted
	return s
}
