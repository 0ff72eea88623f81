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

// Package manifest reads the per-project TESSLATE.md file and decides which
// startup command and port a workload container runs with. The manifest is
// user-controlled content, so every extracted command passes the validation
// in command.go before it is used; anything that fails gets the safe
// fallback command instead.
package manifest

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Manifest is the parsed view of a TESSLATE.md file.
type Manifest struct {
	StartCommand string
	Port         int
	Framework    string
	MultiDir     bool
}

var (
	devServerBlock = regexp.MustCompile("(?s)##\\s*Development Server.*?```(?:bash|sh)?\\s*\\n(.*?)```")
	portLine       = regexp.MustCompile(`\*\*Port\*\*:?\s*(\d{2,5})`)
	frameworkLine  = regexp.MustCompile(`\*\*Framework\*\*:?\s*(.+)`)
)

// Framework keyword to default dev-server port.
var defaultPorts = []struct {
	keyword string
	port    int
}{
	{"vite", 5173},
	{"next", 3000},
	{"fastapi", 8000},
	{"uvicorn", 8000},
}

const defaultPort = 3000

// Parse extracts the startup command and port from manifest content. The
// returned command is raw and MUST be validated before use; callers go
// through Resolve instead of calling this directly.
func Parse(content string) Manifest {
	m := Manifest{Port: 0}

	if match := devServerBlock.FindStringSubmatch(content); match != nil {
		m.StartCommand = strings.TrimSpace(match[1])
	}
	if match := portLine.FindStringSubmatch(content); match != nil {
		if port, err := strconv.Atoi(match[1]); err == nil {
			m.Port = port
		}
	}
	if match := frameworkLine.FindStringSubmatch(content); match != nil {
		m.Framework = strings.TrimSpace(match[1])
	}

	lower := strings.ToLower(content)
	if m.Port == 0 {
		for _, d := range defaultPorts {
			if strings.Contains(lower, d.keyword) {
				m.Port = d.port
				break
			}
		}
	}
	if m.Port == 0 {
		m.Port = defaultPort
	}

	m.MultiDir = strings.Contains(lower, "frontend/") || strings.Contains(lower, "backend/")

	return m
}

// Resolve parses manifest content and returns the command that will
// actually be executed: the manifest's command when it passes validation,
// the safe fallback otherwise. The manifest command is never partially
// reused; on any validation failure the fallback replaces it wholesale.
func Resolve(ctx context.Context, content string) Manifest {
	m := Parse(content)
	if m.StartCommand == "" {
		m.StartCommand = FallbackCommand()
		return m
	}
	if err := ValidateCommand(m.StartCommand); err != nil {
		log.Entry(ctx).Warnf("manifest startup command rejected, using fallback: %v", err)
		m.StartCommand = FallbackCommand()
	}
	return m
}
