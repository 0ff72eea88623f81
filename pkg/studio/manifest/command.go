/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package manifest

import (
	"regexp"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// blockedPatterns match commands that must never run regardless of how
// they are assembled. Checked against the whole command string.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-[a-z]*\s+)*-?[rf]+\s+/(\s|$)`),       // rm -rf /
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),                       // fork bomb
	regexp.MustCompile(`(curl|wget)[^|;&]*\|\s*(ba|z|da)?sh`),       // pipe-to-shell
	regexp.MustCompile(`\bnc\b.*(-l|--listen)`),                     // netcat listener
	regexp.MustCompile(`\bdd\b.*of=/dev/`),                          // raw device write
	regexp.MustCompile(`>\s*/dev/(sd|nvme|xvd|vd)`),                 // device redirect
	regexp.MustCompile(`\b(sudo|su|doas)\b`),                        // privilege escalation
	regexp.MustCompile(`\bdocker\b`),                                // docker-in-docker
	regexp.MustCompile(`\$\((curl|wget)[^)]*\)`),                    // substitution of downloads
	regexp.MustCompile("`(curl|wget)[^`]*`"),                        // backtick downloads
	regexp.MustCompile(`>\s*/(dev|proc|sys)/`),                      // kernel interface writes
	regexp.MustCompile(`\b(iptables|nft|ufw|firewall-cmd)\b`),       // firewall edits
	regexp.MustCompile(`\bchmod\s+[0-7]*[4267]755\b|\bchmod\s+\+s`), // setuid
	regexp.MustCompile(`/etc/(passwd|shadow|sudoers)`),              // credential files
	regexp.MustCompile(`\bmkfs\b|\bfdisk\b|\bmount\b`),              // filesystem surgery
	regexp.MustCompile(`\bkill\s+-9\s+1\b|\bpkill\s+-f\b`),          // init/process hunting
	regexp.MustCompile(`\bcrontab\b|/etc/cron`),                     // persistence
}

// allowedCommands is the closed whitelist of first words permitted at the
// top level of a startup command.
var allowedCommands = map[string]bool{
	// node ecosystem
	"npm": true, "npx": true, "node": true, "yarn": true, "pnpm": true,
	// python ecosystem
	"python": true, "python3": true, "pip": true, "pip3": true,
	"uvicorn": true, "gunicorn": true, "poetry": true, "flask": true,
	// go
	"go": true, "air": true,
	// rust
	"cargo": true,
	// jvm
	"java": true, "mvn": true, "gradle": true, "./gradlew": true,
	// ruby
	"ruby": true, "bundle": true, "rails": true,
	// php
	"php": true, "composer": true,
	// minimal shell verbs
	"cd": true, "ls": true, "echo": true, "sleep": true, "cat": true,
	"mkdir": true, "cp": true, "mv": true, "touch": true, "export": true,
	"if": true, "then": true, "elif": true, "else": true, "fi": true,
	"for": true, "while": true, "do": true, "done": true,
	"test": true, "[": true, "true": true, "sh": true, "source": true, ".": true,
}

var separators = regexp.MustCompile(`[;&|]+`)

// ValidateCommand gates a startup command drawn from untrusted manifest
// content. A command passes only when it stays under the length cap,
// matches no blocked pattern, and every top-level command word is on the
// whitelist. Errors carry the SecurityBlock kind: callers must fall back
// to the safe generic command and never retry or partially reuse the input.
func ValidateCommand(command string) error {
	if len(command) > constants.MaxStartupCommandLength {
		return errors.New(errors.SecurityBlock, "startup command exceeds %d characters", constants.MaxStartupCommandLength)
	}

	for _, pattern := range blockedPatterns {
		if pattern.MatchString(command) {
			return errors.New(errors.SecurityBlock, "startup command matches blocked pattern %q", pattern.String())
		}
	}

	for _, segment := range separators.Split(command, -1) {
		word := firstWord(segment)
		if word == "" {
			continue
		}
		if !allowedCommands[word] {
			return errors.New(errors.SecurityBlock, "command %q is not on the allowed list", word)
		}
	}
	return nil
}

func firstWord(segment string) string {
	fields := strings.Fields(segment)
	for _, f := range fields {
		// Subshell grouping does not change which command runs.
		f = strings.TrimLeft(f, "(")
		if f == "" {
			continue
		}
		// Environment assignments before the command are fine.
		if strings.Contains(f, "=") && !strings.HasPrefix(f, "=") {
			continue
		}
		return f
	}
	return ""
}

// FallbackCommand is the safe generic startup command used whenever no
// manifest is present or its command fails validation. It installs
// dependencies for whichever ecosystem is detected (at the root or under
// frontend/ or backend/) and starts the first applicable dev server.
func FallbackCommand() string {
	return strings.Join([]string{
		`export PATH="$HOME/.local/bin:$HOME/.npm-global/bin:$PATH"`,
		`for d in . frontend backend; do ` +
			`if [ -f "$d/package.json" ]; then (cd "$d" && npm install); fi; ` +
			`if [ -f "$d/requirements.txt" ]; then (cd "$d" && python -m venv .venv && . .venv/bin/activate && pip install -r requirements.txt); fi; ` +
			`if [ -f "$d/go.mod" ]; then (cd "$d" && go mod download); fi; ` +
			`done`,
		`if [ -f package.json ]; then npm run dev; ` +
			`elif [ -f frontend/package.json ]; then (cd frontend && npm run dev); ` +
			`elif [ -f main.py ]; then python main.py; ` +
			`elif [ -f app.py ]; then python app.py; ` +
			`elif [ -f go.mod ]; then go run .; ` +
			`else sleep infinity; fi`,
	}, " && ")
}
