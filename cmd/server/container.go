package main

import (
	"context"
	"log"

	"github.com/Abraxas-365/convo/pkg/config"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/convo/workflow/delaysweeper"
	"github.com/Abraxas-365/convo/workflow/dispatch"
	"github.com/Abraxas-365/convo/workflow/statemanager"
	"github.com/Abraxas-365/convo/workflow/stepexec"
	"github.com/Abraxas-365/convo/workflow/triggerdetect"
	"github.com/Abraxas-365/convo/workflow/workflowapi"
	"github.com/Abraxas-365/convo/workflow/workflowexec"
	"github.com/Abraxas-365/convo/workflow/workflowinfra"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// Container contains all application dependencies
type Container struct {
	// =================================================================
	// CONFIGURATION & INFRASTRUCTURE
	// =================================================================
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client

	// =================================================================
	// REPOSITORIES
	// =================================================================
	DefinitionRepo   workflow.DefinitionRepository
	ExecutionRepo    workflow.ExecutionRepository
	ActionRecordRepo workflow.ActionRecordRepository

	// =================================================================
	// STATE
	// =================================================================
	StateStore   workflow.StateStore
	StateManager workflow.StateManager

	// =================================================================
	// DISPATCH
	// =================================================================
	QueuePublisher workflow.QueuePublisher
	WebhookClient  *dispatch.WebhookClient
	Dispatcher     workflow.ActionDispatcher

	// =================================================================
	// ENGINE
	// =================================================================
	Resolver      *workflow.Resolver
	DelaySchedule workflow.DelaySchedule
	Engine        workflow.Engine
	Detector      workflow.TriggerDetector
	Sweeper       *delaysweeper.Sweeper

	// =================================================================
	// API
	// =================================================================
	AuthMiddleware *workflowapi.AuthMiddleware
	Handler        *workflowapi.WorkflowHandler
	Routes         *workflowapi.WorkflowRoutes
}

// NewContainer creates a new dependency container
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	// Initialize dependencies in the correct order
	log.Println("📦 Initializing dependency container...")

	c.initRepositories()
	c.initStateComponents()
	c.initDispatchComponents()
	c.initEngineComponents()
	c.initAPIComponents()

	log.Println("✅ Dependency container initialized successfully")

	return c
}

func (c *Container) initRepositories() {
	log.Println("  🗄️  Initializing repositories...")
	c.DefinitionRepo = workflowinfra.NewPostgresDefinitionRepository(c.DB)
	c.ExecutionRepo = workflowinfra.NewPostgresExecutionRepository(c.DB)
	c.ActionRecordRepo = workflowinfra.NewPostgresActionRecordRepository(c.DB)
}

func (c *Container) initStateComponents() {
	log.Println("  📦 Initializing state components...")
	c.StateStore = workflowinfra.NewRedisStateStore(c.RedisClient, c.Config.Engine.StateTTL)
	c.StateManager = statemanager.NewStateManager(c.StateStore, c.ExecutionRepo)
}

func (c *Container) initDispatchComponents() {
	log.Println("  📤 Initializing dispatch components...")
	c.QueuePublisher = workflowinfra.NewRedisQueuePublisher(c.RedisClient)
	c.WebhookClient = dispatch.NewWebhookClient(c.Config.Engine.WebhookTimeout)
	c.Dispatcher = dispatch.NewDispatcher(c.QueuePublisher, c.WebhookClient, c.ActionRecordRepo)
}

func (c *Container) initEngineComponents() {
	log.Println("  ⚙️  Initializing engine components...")

	c.Resolver = workflow.NewResolver()
	c.DelaySchedule = workflowinfra.NewRedisDelaySchedule(c.RedisClient)

	c.Engine = workflowexec.NewWorkflowEngine(
		c.DefinitionRepo,
		c.ExecutionRepo,
		c.StateManager,
		c.DelaySchedule,
		&workflowexec.Config{MaxAutoSteps: c.Config.Engine.MaxAutoSteps},
		stepexec.NewMessageExecutor(c.Resolver),
		stepexec.NewChoiceExecutor(c.Resolver),
		stepexec.NewInputExecutor(c.Resolver),
		stepexec.NewConditionExecutor(c.Resolver),
		stepexec.NewActionExecutor(c.Resolver, c.Dispatcher),
		stepexec.NewDelayExecutor(c.DelaySchedule),
	)
	log.Println("    ✅ Workflow engine initialized")

	c.Detector = triggerdetect.NewDetector(c.DefinitionRepo)
	log.Println("    ✅ Trigger detector initialized")

	c.Sweeper = delaysweeper.NewSweeper(c.DelaySchedule, c.Engine, c.Config.Engine.SweepInterval)
	c.Sweeper.Start(context.Background())
	log.Println("    ✅ Delay sweeper started")
}

func (c *Container) initAPIComponents() {
	log.Println("  🌐 Initializing API components...")
	c.AuthMiddleware = workflowapi.NewAuthMiddleware(c.Config.Auth.JWTSecret, c.Config.Auth.JWTIssuer)
	c.Handler = workflowapi.NewWorkflowHandler(
		c.Engine,
		c.Detector,
		c.DefinitionRepo,
		c.ExecutionRepo,
		c.ActionRecordRepo,
	)
	c.Routes = workflowapi.NewWorkflowRoutes(c.Handler, c.AuthMiddleware)
}

// =================================================================
// UTILITY METHODS
// =================================================================

func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Sweeper != nil {
		log.Println("  ⏰ Stopping delay sweeper...")
		c.Sweeper.Stop()
	}

	if c.DB != nil {
		log.Println("  🗄️  Closing database connections...")
		c.DB.Close()
	}

	if c.RedisClient != nil {
		log.Println("  🔴 Closing Redis connections...")
		c.RedisClient.Close()
	}

	log.Println("✅ Container cleanup complete")
}

func (c *Container) HealthCheck() map[string]bool {
	health := make(map[string]bool)

	if c.DB != nil {
		err := c.DB.Ping()
		health["database"] = err == nil
	} else {
		health["database"] = false
	}

	if c.RedisClient != nil {
		err := c.RedisClient.Ping(c.RedisClient.Context()).Err()
		health["redis"] = err == nil
	} else {
		health["redis"] = false
	}

	health["engine"] = c.Engine != nil
	health["trigger_detector"] = c.Detector != nil
	health["delay_sweeper"] = c.Sweeper != nil
	health["dispatcher"] = c.Dispatcher != nil

	return health
}

func (c *Container) GetServiceNames() []string {
	return []string{
		"Engine",
		"StateManager",
		"Detector",
		"Dispatcher",
		"Sweeper",
		"QueuePublisher",
	}
}

func (c *Container) GetRepositoryNames() []string {
	return []string{
		"DefinitionRepo",
		"ExecutionRepo",
		"ActionRecordRepo",
		"StateStore",
		"DelaySchedule",
	}
}
