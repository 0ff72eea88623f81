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

package kubernetes

import (
	"bytes"
	"context"
	"io"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes/scheme"
	corev1client "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// PodExecutor runs commands inside pods over the exec subresource.
// Executors and their transports are built fresh per call: stream clients
// hold per-URL connection state that must not be shared across calls.
type PodExecutor interface {
	Execute(ctx context.Context, namespace, pod, container string, command ...string) ([]byte, []byte, error)
	ExecuteWithStreams(ctx context.Context, namespace, pod, container string, stdin io.Reader, stdout, stderr io.Writer, command ...string) error
}

type podExecutor struct {
	config *rest.Config
}

// NewPodExecutor returns a PodExecutor for the given cluster.
func NewPodExecutor(config *rest.Config) PodExecutor {
	return &podExecutor{config: config}
}

// ExecuteWithStreams executes a command in a pod, wiring the given streams.
func (p *podExecutor) ExecuteWithStreams(ctx context.Context, namespace, pod, container string, stdin io.Reader, stdout, stderr io.Writer, command ...string) error {
	client, err := corev1client.NewForConfig(p.config)
	if err != nil {
		return errors.Wrap(errors.Transient, err, "creating corev1 client")
	}

	request := client.RESTClient().
		Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")
	request.VersionedParams(&corev1.PodExecOptions{
		Stdin:     stdin != nil,
		Stdout:    stdout != nil,
		Stderr:    stderr != nil,
		TTY:       false,
		Container: container,
		Command:   command,
	}, scheme.ParameterCodec)

	// Websocket first with spdy as fallback, the way kubectl does it.
	spdyExecutor, err := remotecommand.NewSPDYExecutor(p.config, http.MethodPost, request.URL())
	if err != nil {
		return errors.Wrap(errors.Transient, err, "initializing spdy executor")
	}
	websocketExecutor, err := remotecommand.NewWebSocketExecutor(p.config, http.MethodGet, request.URL().String())
	if err != nil {
		return errors.Wrap(errors.Transient, err, "initializing websocket executor")
	}
	executor, err := remotecommand.NewFallbackExecutor(websocketExecutor, spdyExecutor, func(err error) bool {
		return httpstream.IsUpgradeFailure(err) || httpstream.IsHTTPSProxyError(err)
	})
	if err != nil {
		return errors.Wrap(errors.Transient, err, "initializing command executor")
	}

	if err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Tty:    false,
	}); err != nil {
		return err
	}
	return nil
}

// Execute executes a command in a pod and returns its output streams.
func (p *podExecutor) Execute(ctx context.Context, namespace, pod, container string, command ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	err := p.ExecuteWithStreams(ctx, namespace, pod, container, nil, &stdout, &stderr, command...)
	return stdout.Bytes(), stderr.Bytes(), err
}
