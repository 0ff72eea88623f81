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

// Package kubernetes is the cluster orchestration backend: one namespace
// per project, one PVC for project files, an always-on file-manager pod
// for file and git operations and one deployment per workload container.
package kubernetes

import (
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// For testing
var (
	Client = getClient
)

var (
	clientOnce sync.Once
	clientset  kubernetes.Interface
	restConfig *rest.Config
	clientErr  error
)

// getClient builds the shared clientset, preferring an explicit kubeconfig
// and falling back to the in-cluster service account.
func getClient(kubeconfig string) (kubernetes.Interface, *rest.Config, error) {
	clientOnce.Do(func() {
		restConfig, clientErr = loadRestConfig(kubeconfig)
		if clientErr != nil {
			return
		}
		clientset, clientErr = kubernetes.NewForConfig(restConfig)
	})
	return clientset, restConfig, clientErr
}

func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, errors.Wrap(errors.Permanent, err, "loading kubeconfig %q", kubeconfig)
		}
		return cfg, nil
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, errors.Wrap(errors.Permanent, err, "loading in-cluster config")
	}
	return cfg, nil
}
