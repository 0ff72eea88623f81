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

// Package naming produces the deterministic, DNS-compliant names used for
// every resource the orchestrator publishes: project slugs, container
// names, kubernetes resources and public hostnames. Every name returned
// here satisfies RFC-1123 label rules.
package naming

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/constants"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	dashRuns        = regexp.MustCompile(`-{2,}`)

	// slugPattern is the shape of every generated slug.
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	base36 = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Slugify lowercases name, replaces runs of non-alphanumerics with a single
// dash, strips edge dashes and truncates to maxLen. Empty results fall back
// to fallback.
func Slugify(name, fallback string, maxLen int) string {
	slug := strings.ToLower(name)
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	if slug == "" {
		slug = fallback
	}
	return slug
}

// ProjectSlug derives a globally unique, DNS-safe slug for a project name.
// The random base36 suffix makes collisions rare; callers still retry the
// DB insert on conflict (up to constants.SlugInsertRetries times) with a
// fresh suffix.
func ProjectSlug(name string) string {
	return fmt.Sprintf("%s-%s", Slugify(name, "project", constants.MaxSlugBaseLength), randomSuffix(constants.SlugSuffixLength))
}

// UsernameSlug derives a slug from a display name, falling back to the
// local part of the email when the display name slugifies to nothing.
func UsernameSlug(displayName, email string) string {
	base := Slugify(displayName, "", constants.MaxSlugBaseLength)
	if base == "" {
		local, _, _ := strings.Cut(email, "@")
		base = Slugify(local, "user", constants.MaxSlugBaseLength)
	}
	return fmt.Sprintf("%s-%s", base, randomSuffix(constants.SlugSuffixLength))
}

// SanitizeName makes an arbitrary container or service name usable as a DNS
// label: lowercase, underscores, spaces and dots become dashes, dash runs
// collapse, edges are stripped, and the result is capped at 63 chars.
func SanitizeName(name string) string {
	s := strings.ToLower(name)
	s = strings.NewReplacer("_", "-", " ", "-", ".", "-").Replace(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > constants.DNSLabelMaxLength {
		s = strings.Trim(s[:constants.DNSLabelMaxLength], "-")
	}
	return s
}

// DeploymentName names the kubernetes Deployment (and Service, and Ingress)
// for a container, keyed by its directory so the name is stable across
// container renames.
func DeploymentName(containerDirectory string) string {
	dir := SanitizeName(containerDirectory)
	if dir == "" {
		// Root-directory containers get a fixed suffix.
		dir = "app"
	}
	name := constants.DevDeploymentPrefix + dir
	if len(name) > constants.DNSLabelMaxLength {
		name = strings.Trim(name[:constants.DNSLabelMaxLength], "-")
	}
	return name
}

// Namespace names the per-project kubernetes namespace.
func Namespace(projectID string) string {
	return constants.NamespacePrefix + SanitizeName(projectID)
}

// ProjectNetwork names the per-project docker bridge network.
func ProjectNetwork(projectSlug string) string {
	return constants.ProjectNetworkPrefix + projectSlug
}

// ComposeServiceName names the docker compose service (and therefore the
// container) for a workload.
func ComposeServiceName(projectSlug, containerName string) string {
	return fmt.Sprintf("%s-%s", projectSlug, SanitizeName(containerName))
}

// Hostname builds the public hostname for a container. Exactly one label is
// added in front of appDomain so a wildcard certificate for *.appDomain
// covers every workload.
func Hostname(projectSlug, containerDirectory, appDomain string) string {
	label := projectSlug
	if dir := SanitizeName(containerDirectory); dir != "" {
		label = fmt.Sprintf("%s-%s", projectSlug, dir)
	}
	return fmt.Sprintf("%s.%s", label, appDomain)
}

// IsValidSlug reports whether s is a well-formed slug within DNS limits.
func IsValidSlug(s string) bool {
	return s != "" && len(s) <= constants.DNSLabelMaxLength && slugPattern.MatchString(s)
}

// IsDNSLabel reports whether s is a valid RFC-1123 DNS label.
func IsDNSLabel(s string) bool {
	return IsValidSlug(s)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(base36)))
	for i := range b {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a fixed character rather than panic.
			b[i] = '0'
			continue
		}
		b[i] = base36[r.Int64()]
	}
	return string(b)
}
