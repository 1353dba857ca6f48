package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/store"
	"github.com/sells-group/forge-interview/internal/voice"
	"github.com/sells-group/forge-interview/pkg/anthropic"
	"github.com/sells-group/forge-interview/pkg/voiceagent"
)

// env bundles the wired application for commands.
type env struct {
	Store  store.Store
	Engine *interview.Engine
	Voice  *voice.Reactor
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initEnv opens the store, runs migrations and wires the engine. The
// conductor streams on the sonnet model, validator and extractor run
// one-shot on haiku, and the planner uses opus.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	ai := anthropic.NewClient(cfg.Anthropic.Key)

	conductor := interview.NewConductor(ai, cfg.Anthropic.SonnetModel, cfg.Anthropic.MaxTokens, cfg.Interview.HistoryLimit)
	validator := interview.NewValidator(ai, cfg.Anthropic.HaikuModel, cfg.Anthropic.MaxTokens)
	extractor := interview.NewExtractor(ai, cfg.Anthropic.HaikuModel, cfg.Anthropic.MaxTokens)
	planner := interview.NewPlanner(ai, cfg.Anthropic.OpusModel, cfg.Anthropic.MaxTokens)
	advancer := interview.NewAdvancer(st, cfg.Interview.ConfidenceThreshold)

	engine := interview.NewEngine(st, conductor, validator, extractor, planner, advancer, cfg.Interview.StreamBuffer)

	agent := voiceagent.NewClient(cfg.Voice.Key, voiceagent.WithBaseURL(cfg.Voice.BaseURL))
	reactor := voice.NewReactor(st, agent, engine, extractor, cfg.Voice.AgentID, cfg.Voice.MinTurnsForResume, cfg.Voice.ProgressPushInterval)

	return &env{Store: st, Engine: engine, Voice: reactor}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
