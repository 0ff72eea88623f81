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

package catalog

import (
	"regexp"
	"strconv"

	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExpandInput carries the values placeholders resolve against.
type ExpandInput struct {
	// ServiceName is the target container's name; its sanitized form is the
	// intra-project DNS name and resolves the {host} placeholder.
	ServiceName string
	// Port resolves {port}. Zero falls back to the definition's port.
	Port int
	// Env is the target container's effective environment.
	Env map[string]string
	// Credentials are the user-supplied values for external services.
	Credentials map[string]string
}

// Expand resolves the definition's connection template into concrete
// environment variables for a consumer container. Placeholders look up, in
// order: {host}, {port}, the service's environment (definition defaults
// overlaid with in.Env), then user credentials. Unknown placeholders
// resolve to the empty string rather than leaking the token downstream.
func (d Definition) Expand(in ExpandInput) map[string]string {
	env := map[string]string{}
	for k, v := range d.DefaultEnv {
		env[k] = v
	}
	for k, v := range in.Env {
		env[k] = v
	}

	port := in.Port
	if port == 0 {
		port = d.InternalPort
	}

	resolve := func(token string) string {
		switch token {
		case "host":
			return naming.SanitizeName(in.ServiceName)
		case "port":
			return strconv.Itoa(port)
		}
		if v, ok := env[token]; ok {
			return v
		}
		if v, ok := in.Credentials[token]; ok {
			return v
		}
		return ""
	}

	out := make(map[string]string, len(d.ConnectionTemplate))
	for name, template := range d.ConnectionTemplate {
		out[name] = placeholder.ReplaceAllStringFunc(template, func(m string) string {
			return resolve(m[1 : len(m)-1])
		})
	}
	return out
}
