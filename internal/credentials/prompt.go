// SPDX-License-Identifier: AGPL-3.0-only
package credentials

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"
)

type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// TerminalPrompter reads answers from stdin. Secrets are read without echo
// when stdin is a terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stdout}
}

func (p *TerminalPrompter) Prompt(label string, secret bool) (string, error) {
	p.once.Do(func() { p.reader = bufio.NewReader(p.In) })

	fmt.Fprintf(p.Out, "%s: ", label)

	if secret && p.In == os.Stdin && term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// Prompting asks for missing credentials once per run and persists what it
// got. A second miss for the same platform is answered with "not available".
type Prompting struct {
	Store    *FileStore
	Prompter Prompter

	mu        sync.Mutex
	askedVK   bool
	askedTele bool
}

func NewPrompting(store *FileStore, prompter Prompter) *Prompting {
	return &Prompting{Store: store, Prompter: prompter}
}

func (p *Prompting) VKToken() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if token, ok := p.Store.VKToken(); ok {
		return token, true
	}
	if p.askedVK {
		return "", false
	}
	p.askedVK = true

	token, err := p.Prompter.Prompt("VK access token", true)
	if err != nil {
		log.Printf("VK: %v", err)
		return "", false
	}
	if token == "" {
		log.Printf("[WARN] VK: no access token entered")
		return "", false
	}

	p.Store.Set(KeyVKToken, token)
	p.persist()
	return token, true
}

func (p *Prompting) Telegram() (Telegram, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if creds, ok := p.Store.Telegram(); ok {
		return creds, true
	}
	if p.askedTele {
		return Telegram{}, false
	}
	p.askedTele = true

	fields := []struct {
		key    string
		label  string
		secret bool
	}{
		{KeyTelegramAPIID, "Telegram API ID", false},
		{KeyTelegramAPIHash, "Telegram API hash", true},
		{KeyTelegramPhone, "Telegram phone number", false},
	}

	answers := make(map[string]string, len(fields))
	for _, f := range fields {
		v, err := p.Prompter.Prompt(f.label, f.secret)
		if err != nil {
			log.Printf("Telegram: %v", err)
			return Telegram{}, false
		}
		answers[f.key] = v
	}

	creds, err := ParseTelegram(answers[KeyTelegramAPIID], answers[KeyTelegramAPIHash], answers[KeyTelegramPhone])
	if err != nil {
		log.Printf("[WARN] Telegram: %v", err)
		return Telegram{}, false
	}

	for k, v := range answers {
		p.Store.Set(k, v)
	}
	p.persist()
	return creds, true
}

func (p *Prompting) persist() {
	if err := p.Store.Save(); err != nil {
		log.Printf("[WARN] Failed to save credentials to %s: %v", p.Store.Path(), err)
	}
}
