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

package naming

import (
	"regexp"
	"strings"
	"testing"

	"github.com/TesslateAI/studio-core/testutil"
)

func TestProjectSlug(t *testing.T) {
	tests := []struct {
		description string
		name        string
		expected    string
	}{
		{description: "simple name", name: "My App", expected: "my-app"},
		{description: "punctuation collapses", name: "a!!b??c", expected: "a-b-c"},
		{description: "unicode stripped", name: "café pro", expected: "caf-pro"},
		{description: "empty falls back", name: "!!!", expected: "project"},
		{description: "long name truncated", name: strings.Repeat("verylongname", 10), expected: strings.Repeat("verylongname", 10)[:50]},
	}
	pattern := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*-[a-z0-9]{6}$`)
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			slug := ProjectSlug(test.name)
			if !pattern.MatchString(slug) {
				t.Errorf("slug %q does not match expected shape", slug)
			}
			if !strings.HasPrefix(slug, test.expected+"-") {
				t.Errorf("slug %q does not start with %q", slug, test.expected)
			}
			if len(slug) > 63 {
				t.Errorf("slug %q exceeds DNS label limit", slug)
			}
		})
	}
}

func TestProjectSlugUniqueness(t *testing.T) {
	seen := map[string]bool{}
	collisions := 0
	const n = 100000
	for i := 0; i < n; i++ {
		slug := ProjectSlug("X")
		if seen[slug] {
			collisions++
		}
		seen[slug] = true
	}
	// 6 base36 chars give ~2.2e9 combinations; over 100k draws the expected
	// collision count is far under the 1% budget.
	if collisions > n/100 {
		t.Errorf("got %d collisions over %d slugs", collisions, n)
	}
}

func TestUsernameSlug(t *testing.T) {
	slug := UsernameSlug("", "jordan.q@example.com")
	if !strings.HasPrefix(slug, "jordan-q-") {
		t.Errorf("expected email local part fallback, got %q", slug)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		description string
		name        string
		expected    string
	}{
		{description: "underscores and dots", name: "My_Service.v2", expected: "my-service-v2"},
		{description: "spaces", name: "  web server  ", expected: "web-server"},
		{description: "dash runs collapse", name: "a--b___c", expected: "a-b-c"},
		{description: "edge dashes stripped", name: "-db-", expected: "db"},
		{description: "truncated to 63", name: strings.Repeat("a", 100), expected: strings.Repeat("a", 63)},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			testutil.CheckDeepEqual(t, test.expected, SanitizeName(test.name))
		})
	}
}

func TestDNSCompliance(t *testing.T) {
	inputs := []string{"My App", "x", "a_b.c d", "UPPER", "123", "--weird--input--"}
	for _, input := range inputs {
		if s := SanitizeName(input); s != "" && !IsDNSLabel(s) {
			t.Errorf("SanitizeName(%q) = %q is not a DNS label", input, s)
		}
		if slug := ProjectSlug(input); !IsDNSLabel(slug) {
			t.Errorf("ProjectSlug(%q) = %q is not a DNS label", input, slug)
		}
	}
}

func TestHostnameDepth(t *testing.T) {
	tests := []struct {
		description string
		slug        string
		dir         string
		expected    string
	}{
		{description: "with directory", slug: "my-app-abc123", dir: "frontend", expected: "my-app-abc123-frontend.studio.dev"},
		{description: "root directory", slug: "my-app-abc123", dir: "", expected: "my-app-abc123.studio.dev"},
		{description: "directory sanitized", slug: "p-x1y2z3", dir: "Back_End", expected: "p-x1y2z3-back-end.studio.dev"},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			host := Hostname(test.slug, test.dir, "studio.dev")
			testutil.CheckDeepEqual(t, test.expected, host)

			// Exactly one label beyond the app domain.
			labels := strings.Split(strings.TrimSuffix(host, ".studio.dev"), ".")
			testutil.CheckDeepEqual(t, 1, len(labels))
		})
	}
}

func TestKubernetesNames(t *testing.T) {
	testutil.CheckDeepEqual(t, "dev-backend", DeploymentName("backend"))
	testutil.CheckDeepEqual(t, "dev-app", DeploymentName(""))
	testutil.CheckDeepEqual(t, "proj-42f1b", Namespace("42f1b"))
	if name := DeploymentName(strings.Repeat("d", 100)); len(name) > 63 {
		t.Errorf("deployment name %q exceeds 63 chars", name)
	}
}
