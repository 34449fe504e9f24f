// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"context"
	"log"

	"github.com/SnowMenchik/Parsr/internal/config"
	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/fetcher"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/fetcher/sources"
	"github.com/SnowMenchik/Parsr/internal/notify"
	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/SnowMenchik/Parsr/internal/worker"
)

func newRunner(cfg *config.AppConfig, provider credentials.Provider, authorizer sources.Authorizer) *worker.Runner {
	client := common.NewClient(cfg.HTTPTimeout.Duration)

	var loader sources.PageLoader = &sources.HTTPPageLoader{Client: client}
	if cfg.OK.Renderer == config.RendererChrome {
		loader = sources.NewChromePageLoader(client.UserAgent, cfg.HTTPTimeout.Duration)
	}

	dispatcher := &fetcher.Client{
		VK: sources.NewVKFetcher(client, cfg.VK.BaseURL, cfg.VK.APIVersion),
		Telegram: sources.NewTelegramFetcher(&sources.GotdDialer{
			SessionPath: cfg.Telegram.SessionFile,
			Authorizer:  authorizer,
		}, cfg.Telegram.Delay.Duration),
		OK: sources.NewOKFetcher(loader, cfg.OK.Delay.Duration),
	}

	return worker.NewRunner(dispatcher, provider, cfg.Parallel)
}

// interactiveCredentials layers environment overrides over the credential
// file and prompts on the terminal for anything still missing.
func interactiveCredentials(cfg *config.AppConfig, prompter credentials.Prompter) (credentials.Provider, error) {
	fileStore, err := credentials.OpenFile(cfg.Credentials.File, cfg.Credentials.Passphrase)
	if err != nil {
		return nil, err
	}
	return credentials.WithEnv(credentials.NewPrompting(fileStore, prompter)), nil
}

func storedCredentials(cfg *config.AppConfig) (credentials.Provider, error) {
	fileStore, err := credentials.OpenFile(cfg.Credentials.File, cfg.Credentials.Passphrase)
	if err != nil {
		return nil, err
	}
	return credentials.WithEnv(fileStore), nil
}

func terminalAuthorizer(prompter credentials.Prompter) sources.Authorizer {
	return sources.CodeAuthorizer{
		PromptCode: func(context.Context) (string, error) {
			return prompter.Prompt("Telegram login code", false)
		},
	}
}

// newWorker wires the runner with the optional history store and Discord
// notifier.
func newWorker(cfg *config.AppConfig, runner *worker.Runner, st *store.Store, notifications bool) *worker.Worker {
	w := worker.NewWorker(runner, cfg.LinksFile, nil, nil)
	if st != nil {
		w.Recorder = st
	}

	if notifications && cfg.Discord.Token != "" {
		d, err := notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			log.Printf("[WARN] %v", err)
		} else {
			w.Notifier = d
		}
	}

	return w
}

// openStore returns nil when run history is disabled.
func openStore(cfg *config.AppConfig) (*store.Store, error) {
	if cfg.Database.Driver == "" {
		return nil, nil
	}
	return store.Open(cfg.Database.Driver, cfg.Database.DSN)
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		log.Printf("[WARN] Failed to close store: %v", err)
	}
}
