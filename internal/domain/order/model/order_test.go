package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionShipping(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"processing to shipped", ShippingProcessing, ShippingShipped, true},
		{"shipped to out for delivery", ShippingShipped, ShippingOutForDelivery, true},
		{"out for delivery to delivered", ShippingOutForDelivery, ShippingDelivered, true},
		{"processing cannot skip to delivered", ShippingProcessing, ShippingDelivered, false},
		{"no backward move", ShippingShipped, ShippingProcessing, false},
		{"cancel from processing", ShippingProcessing, ShippingCancelled, true},
		{"cancel from out for delivery", ShippingOutForDelivery, ShippingCancelled, true},
		{"cannot cancel after delivery", ShippingDelivered, ShippingCancelled, false},
		{"returned only from delivered", ShippingDelivered, ShippingReturned, true},
		{"returned not from shipped", ShippingShipped, ShippingReturned, false},
		{"terminal cancelled", ShippingCancelled, ShippingShipped, false},
		{"terminal returned", ShippingReturned, ShippingProcessing, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransitionShipping(tc.from, tc.to))
		})
	}
}

func TestCanTransitionReturn(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"requested to pickup scheduled", ReturnRequested, ReturnPickupScheduled, true},
		{"pickup scheduled to picked up", ReturnPickupScheduled, ReturnPickedUp, true},
		{"picked up to warehoused", ReturnPickedUp, ReturnWarehoused, true},
		{"cannot skip to warehoused", ReturnRequested, ReturnWarehoused, false},
		{"reject from requested", ReturnRequested, ReturnRejected, true},
		{"reject from pickup scheduled", ReturnPickupScheduled, ReturnRejected, true},
		{"cannot reject after pickup", ReturnPickedUp, ReturnRejected, false},
		{"terminal warehoused", ReturnWarehoused, ReturnRequested, false},
		{"terminal rejected", ReturnRejected, ReturnPickupScheduled, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransitionReturn(tc.from, tc.to))
		})
	}
}
