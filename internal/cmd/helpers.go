package cmd

import (
	"sort"
	"strings"
	"time"

	"github.com/plandeck/plandeck/internal/config"
	"github.com/plandeck/plandeck/internal/engine"
	"github.com/plandeck/plandeck/internal/engine/capacity"
	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
	"github.com/plandeck/plandeck/internal/store"
)

// openStore opens the plan store for read-only commands. No engine log
// is attached; reads never mutate state worth logging.
func openStore() (*store.Store, error) {
	return store.New(config.Get().StorageDir(), nil)
}

// buildEngine assembles a fully wired engine plus a cleanup closure.
// Commands that execute or mutate plans go through this.
func buildEngine() (*engine.Engine, func(), error) {
	cfg := config.Get()

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		var err error
		log, err = logging.NewLogger(cfg.LogDir(), cfg.Logging.Level)
		if err != nil {
			return nil, nil, err
		}
	}

	st, err := store.New(cfg.StorageDir(), log)
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	eng, err := engine.New(engine.Options{
		Store:      st,
		Config:     cfg,
		Log:        log,
		Capacity:   capacity.NewManager(cfg.Engine.GlobalMaxParallel),
		NodeLogDir: cfg.LogDir(),
	})
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	return eng, func() { log.Close() }, nil
}

// resolvePlanID expands a full plan id or unique id prefix against the
// stored index. Ambiguous prefixes and unknown ids are typed not-found.
func resolvePlanID(entries []store.IndexEntry, arg string) (string, error) {
	var matches []string
	for _, entry := range entries {
		if entry.ID == arg {
			return entry.ID, nil
		}
		if strings.HasPrefix(entry.ID, arg) {
			matches = append(matches, entry.ID)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return "", errors.NewNotFoundError("plan", arg)
}

// sortedProducers returns the plan's producer ids in stable order.
func sortedProducers(plan *model.PlanInstance) []string {
	producers := make([]string, 0, len(plan.ProducerIDToNodeID))
	for producer := range plan.ProducerIDToNodeID {
		producers = append(producers, producer)
	}
	sort.Strings(producers)
	return producers
}

func durationMS(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
