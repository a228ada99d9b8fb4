package container

import (
	"fmt"

	"github.com/clinterm/termserver/cmd/termserver/repository"
	"github.com/clinterm/termserver/cmd/termserver/service"
	"github.com/clinterm/termserver/common/bootstrap"
	"github.com/clinterm/termserver/common/owl"
	"github.com/clinterm/termserver/common/store"
	"github.com/clinterm/termserver/common/store/memstore"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Version control + component store
	Store store.VersionControl

	// Repositories
	RunRepo *repository.IntegrityRunRepository

	// Services
	BranchService      *service.BranchService
	ConceptService     *service.ConceptService
	DescriptionService *service.DescriptionService
	IntegrityService   *service.IntegrityService
	IntegrityRunner    *service.IntegrityRunner
	IntegrityHook      *service.IntegrityCommitHook
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	log := components.Logger
	cfg := components.Config

	// The in-memory versioned store backs the component queries and the
	// commit lifecycle
	versionControl := memstore.New(log)

	// Initialize repositories
	var runRepo *repository.IntegrityRunRepository
	if components.DB != nil {
		runRepo = repository.NewIntegrityRunRepository(components.DB)
	}

	// Initialize services (bottom-up: dependencies first)
	branchService := service.NewBranchService(versionControl, log)
	conceptService := service.NewConceptService(versionControl, log)
	descriptionService := service.NewDescriptionService(versionControl, log)
	integrityService := service.NewIntegrityService(
		versionControl,
		conceptService,
		branchService,
		descriptionService,
		owl.NewParser(),
		&cfg.Terminology,
		log,
	)

	integrityHook, err := service.NewIntegrityCommitHook(integrityService, cfg.Integrity.HookSkipExpression, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize integrity commit hook: %w", err)
	}
	versionControl.RegisterCommitListener(integrityHook)

	var runRecorder service.RunRecorder
	if runRepo != nil {
		runRecorder = runRepo
	}
	integrityRunner := service.NewIntegrityRunner(
		integrityService,
		branchService,
		components.Cache,
		cfg.Cache.DefaultTTL,
		runRecorder,
		log,
	)

	return &Container{
		Components:         components,
		Store:              versionControl,
		RunRepo:            runRepo,
		BranchService:      branchService,
		ConceptService:     conceptService,
		DescriptionService: descriptionService,
		IntegrityService:   integrityService,
		IntegrityRunner:    integrityRunner,
		IntegrityHook:      integrityHook,
	}, nil
}
