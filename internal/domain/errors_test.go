package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("order o-1: %w", err) }

	tests := []struct {
		err        error
		notFound   bool
		versionErr bool
	}{
		{err: ErrBasketNotFound, notFound: true},
		{err: ErrProductNotFound, notFound: true},
		{err: ErrDeliveryMethodNotFound, notFound: true},
		{err: wrap(ErrOrderNotFound), notFound: true},
		{err: ErrOrderVersionConflict, versionErr: true},
		{err: wrap(ErrBasketVersionConflict), versionErr: true},
		{err: ErrWebhookEventNotFound},
		{err: ErrPaymentProvider},
		{err: nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.versionErr, IsVersionConflict(tt.err))
		})
	}
}
