package preflight

import (
	"context"
	"sort"

	"cara/internal/ai"
	"cara/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects the optional checks.
type Options struct {
	// Store is loaded to confirm it is readable and to find stored keys.
	Store ai.CredentialStore
	// Services are validated against their stored keys when Live is set.
	Services []ai.Service
	Live     bool
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckPromptLanguage(cfg.Prompt.Language),
		CheckEncryption(cfg.Credentials.Secret),
	}

	if opts.Store == nil {
		return results
	}
	storeResult, state := CheckCredentialStore(ctx, opts.Store)
	results = append(results, storeResult)
	if !storeResult.Passed || !opts.Live {
		return results
	}

	byID := make(map[ai.ProviderID]ai.Service, len(opts.Services))
	for _, svc := range opts.Services {
		byID[svc.ID()] = svc
	}
	ids := make([]string, 0, len(state.Providers))
	for id, cred := range state.Providers {
		if cred.APIKey != "" {
			ids = append(ids, string(id))
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		svc, ok := byID[ai.ProviderID(id)]
		if !ok {
			continue
		}
		results = append(results, CheckProvider(ctx, svc, state.Providers[ai.ProviderID(id)].APIKey))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
