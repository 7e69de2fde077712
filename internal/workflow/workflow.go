// Package workflow orchestrates a property resolution: the corporate
// short-circuit, parallel evidence gathering, registry enrichment fan-out,
// verification, and the final scoring decision. State lives entirely in the
// job ledger and the resolutions table; jobs communicate through recorded
// outputs, never shared memory, so any worker can pick up any job.
package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/dataset"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/rubric"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/companieshouse"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/landregistry"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/openregister"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/verifier"
)

// Config tunes the resolution decision points.
type Config struct {
	// AcceptThreshold is the rubric total at or above which the top
	// candidate is accepted without confirmation.
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	// ReviewThreshold is the total at or above which a candidate is worth
	// confirming; below it the run falls through to the title register.
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	// CancelConfidence is the verification confidence at which queued
	// sibling verifications are cancelled.
	CancelConfidence float64 `yaml:"cancel_confidence" mapstructure:"cancel_confidence"`
	// ConfirmConfidence is the verification confidence at which a positive
	// verdict joins the confirmed-match set.
	ConfirmConfidence float64 `yaml:"confirm_confidence" mapstructure:"confirm_confidence"`
	// MaxCompanies caps registry enrichment fan-out per resolution.
	MaxCompanies int `yaml:"max_companies" mapstructure:"max_companies"`
	// MaxPersonVerifications caps the verification wave per resolution.
	MaxPersonVerifications int `yaml:"max_person_verifications" mapstructure:"max_person_verifications"`
	// DatasetLabel names the corporate-ownership dataset consulted for the
	// short-circuit.
	DatasetLabel string `yaml:"dataset_label" mapstructure:"dataset_label"`
}

func DefaultConfig() Config {
	return Config{
		AcceptThreshold:        4.0,
		ReviewThreshold:        2.0,
		CancelConfidence:       0.95,
		ConfirmConfidence:      0.6,
		MaxCompanies:           5,
		MaxPersonVerifications: 3,
		DatasetLabel:           "ccod",
	}
}

// Orchestrator wires the stores, clients, and queue into the resolution
// pipeline. The verifier is optional; without it the confirmation wave is
// skipped and review-band candidates go straight to needs_confirmation.
type Orchestrator struct {
	store    store.Store
	enq      *queue.Enqueuer
	owners   *dataset.Cache
	registry companieshouse.Client
	land     landregistry.Client
	register openregister.Client
	verify   verifier.Client

	rubricCfg rubric.Config
	cfg       Config
}

func New(
	s store.Store,
	enq *queue.Enqueuer,
	owners *dataset.Cache,
	registry companieshouse.Client,
	land landregistry.Client,
	register openregister.Client,
	verify verifier.Client,
	rubricCfg rubric.Config,
	cfg Config,
) *Orchestrator {
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultConfig().AcceptThreshold
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = DefaultConfig().ReviewThreshold
	}
	if cfg.CancelConfidence == 0 {
		cfg.CancelConfidence = DefaultConfig().CancelConfidence
	}
	if cfg.ConfirmConfidence == 0 {
		cfg.ConfirmConfidence = DefaultConfig().ConfirmConfidence
	}
	if cfg.MaxCompanies == 0 {
		cfg.MaxCompanies = DefaultConfig().MaxCompanies
	}
	if cfg.MaxPersonVerifications == 0 {
		cfg.MaxPersonVerifications = DefaultConfig().MaxPersonVerifications
	}
	if cfg.DatasetLabel == "" {
		cfg.DatasetLabel = DefaultConfig().DatasetLabel
	}
	return &Orchestrator{
		store:     s,
		enq:       enq,
		owners:    owners,
		registry:  registry,
		land:      land,
		register:  register,
		verify:    verify,
		rubricCfg: rubricCfg,
		cfg:       cfg,
	}
}

// RegisterHandlers attaches the pipeline's handlers to the worker pool and
// hooks the failure path into the fan-in barrier.
func (o *Orchestrator) RegisterHandlers(pool *queue.Pool) {
	pool.Register(model.QueueResolve, o.handleResolve)
	pool.Register(model.QueueOfficerEnum, o.handleOfficerEnum)
	pool.Register(model.QueueCompanyVerify, o.handleCompanyVerify)
	pool.Register(model.QueueSiteVerify, o.handleSiteVerify)
	pool.Register(model.QueuePersonVerify, o.handlePersonVerify)
	pool.Register(model.QueueFinalize, o.handleFinalize)
	pool.OnJobFailed(o.JobFailed)
}

// SubmitRequest is one resolution request. CompanyName and Hosts are
// optional caller-known context; ConfirmedNames seed the confirmed-match
// set.
type SubmitRequest struct {
	Address        string   `json:"address"`
	CompanyName    string   `json:"company_name,omitempty"`
	Hosts          []string `json:"hosts,omitempty"`
	ConfirmedNames []string `json:"confirmed_names,omitempty"`
}

// Submit normalizes the address, creates the resolution row, and enqueues
// the root job.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*model.PropertyResolution, error) {
	input := strings.TrimSpace(req.Address)
	if input == "" {
		return nil, eris.New("workflow: empty address")
	}

	norm := address.Normalize(address.Parse(input))
	res := &model.PropertyResolution{
		ID:           uuid.NewString(),
		InputAddress: input,
		Address:      norm,
		Status:       model.ResolutionRunning,
		OwnerType:    model.OwnerUnknown,
	}
	if err := o.store.CreateResolution(ctx, res); err != nil {
		return nil, err
	}

	_, _, err := o.enq.Enqueue(ctx, queue.Spec{
		Queue: model.QueueResolve,
		Name:  "resolve",
		Unit:  []string{res.ID},
		Payload: resolvePayload{
			ResolutionID:   res.ID,
			CompanyName:    req.CompanyName,
			Hosts:          req.Hosts,
			ConfirmedNames: req.ConfirmedNames,
		},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("resolution submitted",
		zap.String("resolution_id", res.ID),
		zap.String("canonical_key", norm.CanonicalKey),
		zap.Bool("low_confidence", norm.LowConfidence))
	return res, nil
}

// displayLine renders the normalized address as a single lookup line.
func displayLine(a model.NormalizedAddress) string {
	var parts []string
	if a.HasSAON() {
		parts = append(parts, "Flat "+a.SAON)
	}
	building := strings.TrimSpace(a.PAON + " " + a.Street)
	if building != "" {
		parts = append(parts, building)
	}
	if a.Town != "" {
		parts = append(parts, a.Town)
	}
	return strings.Join(parts, ", ")
}

// resolutionIDFromRoot recovers the resolution id from a root job id of the
// form "resolve:<id>".
func resolutionIDFromRoot(rootID string) string {
	return strings.TrimPrefix(rootID, model.QueueResolve+":")
}
