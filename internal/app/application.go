// Package app wires the domain services together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/app/services/gamification"
	"github.com/habitloop/habitloop/internal/app/services/habits"
	"github.com/habitloop/habitloop/internal/app/services/leaderboard"
	"github.com/habitloop/habitloop/internal/app/services/users"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/internal/app/storage/memory"
	"github.com/habitloop/habitloop/internal/app/system"
	"github.com/habitloop/habitloop/internal/platform/cache"
	"github.com/habitloop/habitloop/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users    storage.UserStore
	Habits   storage.HabitStore
	CheckIns storage.CheckInStore
	Profiles storage.ProfileStore
}

// Options carries optional application dependencies and settings.
type Options struct {
	Cache             *cache.Cache
	JWTSecret         string
	TokenTTL          time.Duration
	ReconcileSchedule string // empty disables the background reconciler
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Users        *users.Service
	Habits       *habits.Service
	Gamification *gamification.Service
	Leaderboard  *leaderboard.Service
	Reconciler   *gamification.Reconciler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Habits == nil {
		stores.Habits = mem
	}
	if stores.CheckIns == nil {
		stores.CheckIns = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}

	manager := system.NewManager()

	habitService := habits.New(stores.Habits, stores.CheckIns, log)
	userService := users.New(stores.Users, stores.Profiles, opts.JWTSecret, opts.TokenTTL, log)
	gamifyService := gamification.New(habitService, stores.CheckIns, stores.Profiles, log)
	boardService := leaderboard.New(stores.Profiles, opts.Cache, log)

	for _, name := range []string{"users", "habits", "gamification", "leaderboard"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	var reconciler *gamification.Reconciler
	if opts.ReconcileSchedule != "" {
		reconciler = gamification.NewReconciler(gamifyService, stores.Users, opts.ReconcileSchedule, log)
		if err := manager.Register(reconciler); err != nil {
			return nil, fmt.Errorf("register reconciler: %w", err)
		}
	} else {
		log.Warn("reconcile schedule empty; background reconciler disabled")
	}

	return &Application{
		manager:      manager,
		log:          log,
		Users:        userService,
		Habits:       habitService,
		Gamification: gamifyService,
		Leaderboard:  boardService,
		Reconciler:   reconciler,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
