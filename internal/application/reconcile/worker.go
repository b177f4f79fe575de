package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/trialsignup/signup/internal/domain"
	"github.com/trialsignup/signup/internal/metrics"
)

type customerSource interface {
	GetCustomer(customerID string) (*domain.Customer, error)
}

type crmClient interface {
	UpsertContact(ctx context.Context, c domain.CRMContact) (string, error)
}

type deadLetters interface {
	Put(ctx context.Context, name string, payload interface{}) (string, error)
}

// WorkerDeps holds all dependencies for the Worker. Archive may be nil.
type WorkerDeps struct {
	Source    Source
	Customers customerSource
	CRM       crmClient
	Archive   deadLetters
	Workers   int
	Metrics   *metrics.Metrics
}

// Worker applies sync jobs to the CRM. Failed jobs are logged and archived,
// never retried.
type Worker struct {
	source    Source
	customers customerSource
	crm       crmClient
	archive   deadLetters
	workers   int
	metrics   *metrics.Metrics
}

// failedJob is the archived record of a job that could not be applied.
type failedJob struct {
	Job     domain.SyncJob     `json:"job"`
	Contact *domain.CRMContact `json:"contact,omitempty"`
	Error   string             `json:"error"`
}

func NewWorker(deps WorkerDeps) *Worker {
	n := deps.Workers
	if n < 1 {
		n = 1
	}
	return &Worker{
		source:    deps.Source,
		customers: deps.Customers,
		crm:       deps.CRM,
		archive:   deps.Archive,
		workers:   n,
		metrics:   deps.Metrics,
	}
}

// Run consumes jobs on the configured number of goroutines until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			return w.source.Consume(ctx, w.Process)
		})
	}
	return g.Wait()
}

// Process syncs one job.
func (w *Worker) Process(ctx context.Context, job domain.SyncJob) {
	log := slog.With("job_id", job.JobID, "event_id", job.EventID, "customer_id", job.CustomerID)

	cust, err := w.customers.GetCustomer(job.CustomerID)
	if err != nil {
		w.fail(ctx, log, job, nil, err)
		return
	}
	c := ContactFor(cust, job)
	crmID, err := w.crm.UpsertContact(ctx, c)
	if err != nil {
		w.fail(ctx, log, job, &c, err)
		return
	}
	w.metrics.IncSync("ok")
	log.Info("crm contact synced", "crm_id", crmID, "affiliate_id", c.AffiliateID)
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, job domain.SyncJob, c *domain.CRMContact, err error) {
	w.metrics.IncSync("failed")
	log.Error("crm sync failed", "err", err)
	if w.archive == nil {
		return
	}
	url, aerr := w.archive.Put(ctx, job.JobID, failedJob{Job: job, Contact: c, Error: err.Error()})
	if aerr != nil {
		log.Error("failed to archive crm sync job", "err", aerr)
		return
	}
	log.Info("crm sync job archived", "url", url)
}

// ContactFor builds the CRM contact for a billing customer, tagged with its affiliate id.
func ContactFor(cust *domain.Customer, job domain.SyncJob) domain.CRMContact {
	first, last := cust.Metadata["first_name"], cust.Metadata["last_name"]
	if first == "" && last == "" {
		first, last = splitName(cust.Name)
	}
	affiliate := cust.AffiliateID
	if affiliate == "" {
		affiliate = domain.AttributionNone
	}
	stage := "lead"
	if strings.HasPrefix(job.EventType, "customer.subscription.") {
		stage = "opportunity"
	}
	return domain.CRMContact{
		Email:          cust.Email,
		FirstName:      first,
		LastName:       last,
		Phone:          cust.Phone,
		AffiliateID:    affiliate,
		CustomerID:     cust.ID,
		SubscriptionID: job.SubscriptionID,
		LifecycleStage: stage,
	}
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return full, ""
	}
	return strings.TrimSpace(full[:i]), full[i+1:]
}
