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

package orchestrator

import (
	"fmt"

	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

// URLBuilder computes public container URLs. It is the only behavior the
// two backends share by composition rather than each implementing.
type URLBuilder struct {
	AppDomain string
	// Insecure switches to http for local development domains.
	Insecure bool
}

// ContainerURL returns the public URL for a container directory.
func (u URLBuilder) ContainerURL(projectSlug, containerDirectory string) string {
	scheme := "https"
	if u.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, naming.Hostname(projectSlug, containerDirectory, u.AppDomain))
}
