package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/analyst"
	"github.com/sells-group/pharmhunter/internal/config"
	"github.com/sells-group/pharmhunter/internal/discovery"
	"github.com/sells-group/pharmhunter/internal/extract"
	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/hunt"
	"github.com/sells-group/pharmhunter/internal/llm"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/planner"
	"github.com/sells-group/pharmhunter/internal/resilience"
	"github.com/sells-group/pharmhunter/internal/scribe"
	"github.com/sells-group/pharmhunter/internal/search"
)

// huntEnv holds the store, providers and stages needed by the hunt,
// discover and serve commands.
type huntEnv struct {
	Store     history.Store
	Planner   *planner.Planner
	Discovery *discovery.Controller
	Runner    *hunt.Runner

	searcher search.Searcher
}

// Close releases the search cache connection and the store.
func (e *huntEnv) Close() {
	if c, ok := e.searcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			zap.L().Warn("close search cache", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// huntHooks are the optional callbacks a command attaches to a hunt.
type huntHooks struct {
	progress discovery.ProgressFunc
	stage    hunt.StageFunc
	noScore  bool
	noDraft  bool
}

// initHunt validates config for mode, opens the store and builds every
// stage. Callers should defer env.Close().
func initHunt(ctx context.Context, mode string, hooks huntHooks) (*huntEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	p, err := loadPlanner()
	if err != nil {
		return nil, err
	}

	searcher, err := search.New(cfg)
	if err != nil {
		return nil, err
	}
	completer, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}

	st, err := history.Open(ctx, cfg.Store)
	if err != nil {
		if c, ok := searcher.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	env := &huntEnv{Store: st, Planner: p, searcher: searcher}

	retry := retryPolicy(cfg)
	discOpts := []discovery.Option{
		discovery.WithRoundDelay(cfg.Hunt.RoundDelay()),
		discovery.WithQueryRate(cfg.Hunt.QueryQPS),
		discovery.WithRetry(retry),
		discovery.WithMatchThreshold(cfg.Hunt.MatchThreshold),
	}
	if hooks.progress != nil {
		discOpts = append(discOpts, discovery.WithProgress(hooks.progress))
	}
	env.Discovery = discovery.New(p, searcher, extract.NewLLMExtractor(completer, retry), st, discOpts...)

	runOpts := []hunt.Option{}
	if hooks.stage != nil {
		runOpts = append(runOpts, hunt.WithStageHook(hooks.stage))
	}
	if !hooks.noScore {
		icp, err := readOptional(cfg.Hunt.ICPFile)
		if err != nil {
			env.Close()
			return nil, err
		}
		runOpts = append(runOpts, hunt.WithScorer(analyst.New(completer,
			analyst.WithICP(icp),
			analyst.WithThreshold(cfg.Hunt.QualifyThreshold),
			analyst.WithConcurrency(cfg.Hunt.Concurrency),
			analyst.WithRetry(retry),
		)))
	}
	if !hooks.noScore && !hooks.noDraft {
		vp, err := readOptional(cfg.Hunt.ValuePropFile)
		if err != nil {
			env.Close()
			return nil, err
		}
		runOpts = append(runOpts, hunt.WithDrafter(scribe.New(completer,
			scribe.WithValueProp(vp),
			scribe.WithConcurrency(cfg.Hunt.Concurrency),
			scribe.WithRetry(retry),
		)))
	}
	env.Runner = hunt.New(env.Discovery, st, runOpts...)

	zap.L().Debug("hunt environment ready",
		zap.String("search", searcher.Name()),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// openStore opens the history store alone, for commands that never call a
// provider.
func openStore(ctx context.Context) (history.Store, error) {
	if err := cfg.Validate("history"); err != nil {
		return nil, err
	}
	return history.Open(ctx, cfg.Store)
}

func loadPlanner() (*planner.Planner, error) {
	if cfg.Planner.PolicyFile == "" {
		return planner.Default(), nil
	}
	policy, err := planner.LoadPolicy(cfg.Planner.PolicyFile)
	if err != nil {
		return nil, eris.Wrapf(err, "load source policy %s", cfg.Planner.PolicyFile)
	}
	return planner.New(policy), nil
}

// retryPolicy maps the retry section onto the provider retry policy. Unset
// fields keep the defaults.
func retryPolicy(c *config.Config) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if c.Hunt.SearchRetries >= 0 {
		rc.MaxRetries = c.Hunt.SearchRetries
	}
	if c.Retry.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
	}
	if c.Retry.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond
	}
	if c.Retry.Multiplier > 0 {
		rc.Multiplier = c.Retry.Multiplier
	}
	rc.JitterFraction = c.Retry.Jitter
	return rc
}

// huntDefaults returns the configured default parameters.
func huntDefaults(c *config.Config) model.HuntParams {
	return model.HuntParams{Quota: c.Hunt.Quota, MaxRounds: c.Hunt.MaxRounds}
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	return string(b), nil
}
