package service

import (
	"context"
	"testing"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_storefront_test"

// serviceFixture 一組共用假依賴的服務
type serviceFixture struct {
	store    *fakeStore
	sessions *fakeSessionRepo
	gateway  *fakeGateway
	producer *fakeProducer

	catalog  *CatalogService
	basket   *BasketService
	checkout *CheckoutService
	payment  *PaymentService
}

func newServiceFixture() *serviceFixture {
	store := newFakeStore()
	sessions := newFakeSessionRepo()
	gw := &fakeGateway{}
	prod := &fakeProducer{}

	return &serviceFixture{
		store:    store,
		sessions: sessions,
		gateway:  gw,
		producer: prod,
		catalog:  NewCatalogService(store),
		basket:   NewBasketService(store, sessions),
		checkout: NewCheckoutService(store, sessions, gw, prod),
		payment:  NewPaymentService(store, sessions, gateway.NewWebhookVerifier(testWebhookSecret, 0), prod),
	}
}

func (f *serviceFixture) seedProduct(t *testing.T, weight, unit, price string, stock uint) *model.Product {
	t.Helper()
	product := &model.Product{
		Weight:     decimal.RequireFromString(weight),
		WeightUnit: unit,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
	}
	require.NoError(t, f.catalog.CreateProduct(context.Background(), product))
	return product
}

func anonSession(id string) *model.SessionState {
	return model.NewSessionState(id)
}

func validContact() model.ContactInfo {
	return model.ContactInfo{
		FullName:       "Jo Bloggs",
		Email:          "jo@example.com",
		PhoneNumber:    "07911123456",
		Country:        "GB",
		Postcode:       "SW1A 1AA",
		TownOrCity:     "London",
		StreetAddress1: "1 Example Street",
	}
}
