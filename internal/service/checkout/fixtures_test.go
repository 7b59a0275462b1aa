package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

type stubProvider struct {
	mu        sync.Mutex
	createErr error
	updateErr error

	creates []domain.IntentRequest
	updates map[string]int64
	seq     int
}

func (s *stubProvider) CreateIntent(_ context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, req)
	if s.createErr != nil {
		return domain.PaymentIntent{}, s.createErr
	}
	s.seq++
	id := fmt.Sprintf("pi_test_%d", s.seq)
	return domain.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
	}, nil
}

func (s *stubProvider) UpdateIntent(_ context.Context, id string, amountMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string]int64)
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates[id] = amountMinor
	return nil
}

func (s *stubProvider) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates)
}

func (s *stubProvider) lastCreate() domain.IntentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates[len(s.creates)-1]
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	baskets interface {
		domain.BasketRepository
		Put(domain.Basket)
	}
	catalog interface {
		domain.ProductRepository
		PutProduct(domain.Product)
		PutDeliveryMethod(domain.DeliveryMethod)
		DeliveryMethods() domain.DeliveryMethodRepository
	}
	provider *stubProvider
	sync     *IntentSynchronizer
}

func newFixture() *fixture {
	baskets := memory.NewBasketRepository()
	catalog := memory.NewCatalog()
	catalog.PutProduct(domain.Product{ID: 1, Name: "Boots", Price: price("10.00")})
	catalog.PutProduct(domain.Product{ID: 2, Name: "Gloves", Price: price("3.50")})
	catalog.PutDeliveryMethod(domain.DeliveryMethod{ID: 1, ShortName: "UPS1", Price: price("5.00")})

	provider := &stubProvider{}
	f := &fixture{baskets: baskets, catalog: catalog, provider: provider}
	f.sync = NewIntentSynchronizer(baskets, catalog, catalog.DeliveryMethods(), provider, SyncConfig{},
		WithSyncLogger(quietLogger()))
	return f
}

func deliveryID(id int64) *int64 { return &id }
