package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

// --- mocks ---

type mockCustomers struct{ mock.Mock }

func (m *mockCustomers) GetCustomer(id string) (*domain.Customer, error) {
	args := m.Called(id)
	c, _ := args.Get(0).(*domain.Customer)
	return c, args.Error(1)
}

type mockCRM struct{ mock.Mock }

func (m *mockCRM) UpsertContact(ctx context.Context, c domain.CRMContact) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) Put(ctx context.Context, name string, payload interface{}) (string, error) {
	args := m.Called(ctx, name, payload)
	return args.String(0), args.Error(1)
}

func job() domain.SyncJob {
	return domain.SyncJob{JobID: "job1", EventID: "evt_1", EventType: "customer.subscription.created", CustomerID: "cus_1", SubscriptionID: "sub_1"}
}

func customer() *domain.Customer {
	return &domain.Customer{
		ID: "cus_1", Email: "ana@example.com", Name: "Ana Maria Diaz", Phone: "+15551234567",
		AffiliateID: "aff42", Metadata: map[string]string{"affiliate_id": "aff42"},
	}
}

// --- Process ---

func TestProcess_UpsertsTaggedContact(t *testing.T) {
	cs := &mockCustomers{}
	crm := &mockCRM{}
	cs.On("GetCustomer", "cus_1").Return(customer(), nil)
	crm.On("UpsertContact", mock.Anything, domain.CRMContact{
		Email: "ana@example.com", FirstName: "Ana Maria", LastName: "Diaz", Phone: "+15551234567",
		AffiliateID: "aff42", CustomerID: "cus_1", SubscriptionID: "sub_1", LifecycleStage: "opportunity",
	}).Return("crm_1", nil)

	NewWorker(WorkerDeps{Customers: cs, CRM: crm}).Process(context.Background(), job())
	crm.AssertExpectations(t)
}

func TestProcess_CRMFailureArchived(t *testing.T) {
	cs := &mockCustomers{}
	crm := &mockCRM{}
	ar := &mockArchive{}
	cs.On("GetCustomer", "cus_1").Return(customer(), nil)
	crm.On("UpsertContact", mock.Anything, mock.Anything).Return("", errors.New("crm 500"))
	ar.On("Put", mock.Anything, "job1", mock.MatchedBy(func(f failedJob) bool {
		return f.Error == "crm 500" && f.Contact != nil && f.Contact.AffiliateID == "aff42"
	})).Return("s3://b/k", nil)

	NewWorker(WorkerDeps{Customers: cs, CRM: crm, Archive: ar}).Process(context.Background(), job())
	ar.AssertExpectations(t)
	crm.AssertNumberOfCalls(t, "UpsertContact", 1)
}

func TestProcess_CustomerLookupFailureNoArchive(t *testing.T) {
	cs := &mockCustomers{}
	crm := &mockCRM{}
	cs.On("GetCustomer", "cus_1").Return(nil, domain.ErrNotFound)

	NewWorker(WorkerDeps{Customers: cs, CRM: crm}).Process(context.Background(), job())
	crm.AssertNotCalled(t, "UpsertContact", mock.Anything, mock.Anything)
}

func TestContactFor_DefaultsAffiliateAndPrefersMetadataNames(t *testing.T) {
	c := ContactFor(&domain.Customer{
		ID: "cus_2", Email: "b@c.com", Name: "Ignored Name",
		Metadata: map[string]string{"first_name": "Bea", "last_name": "Cruz"},
	}, domain.SyncJob{EventType: "customer.updated"})

	assert.Equal(t, domain.AttributionNone, c.AffiliateID)
	assert.Equal(t, "Bea", c.FirstName)
	assert.Equal(t, "Cruz", c.LastName)
	assert.Equal(t, "lead", c.LifecycleStage)
}

// --- Run ---

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	q := NewMemoryQueue(4)
	cs := &mockCustomers{}
	crm := &mockCRM{}
	done := make(chan struct{})
	cs.On("GetCustomer", "cus_1").Return(customer(), nil)
	crm.On("UpsertContact", mock.Anything, mock.Anything).Return("crm_1", nil).Run(func(mock.Arguments) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewWorker(WorkerDeps{Source: q, Customers: cs, CRM: crm, Workers: 2}).Run(ctx) }()

	require.NoError(t, q.Enqueue(context.Background(), job()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
	cancel()
	assert.NoError(t, <-errc)
}
