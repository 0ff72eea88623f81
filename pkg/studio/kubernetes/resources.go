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
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/TesslateAI/studio-core/pkg/studio/catalog"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/manifest"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/naming"
)

const (
	// projectVolumeName is the in-pod name of the project PVC volume.
	projectVolumeName = "project-files"
	// pvcName is the single PVC every project namespace owns.
	pvcName = "project-files"
	// tlsSecretName is the wildcard certificate copy in each namespace.
	tlsSecretName = "wildcard-tls"
)

// projectLabels is the label set stamped on every namespaced resource.
func projectLabels(p *model.Project) map[string]string {
	return map[string]string{
		constants.Labels.ManagedBy:   constants.Labels.ManagedByName,
		constants.Labels.ProjectID:   p.ID,
		constants.Labels.ProjectSlug: p.Slug,
		constants.Labels.UserID:      p.UserID,
	}
}

func componentLabels(p *model.Project, component string) map[string]string {
	labels := projectLabels(p)
	labels[constants.Labels.Component] = component
	return labels
}

// buildNamespace is the project's isolation boundary. Nothing written into
// it ever includes object-store credentials; the archiver streams files
// through the orchestrator instead.
func buildNamespace(p *model.Project) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   naming.Namespace(p.ID),
			Labels: projectLabels(p),
		},
	}
}

// buildNetworkPolicy locks a project namespace down: ingress only from the
// ingress controller and from within the namespace, egress only to
// cluster DNS and the public internet. Private ranges are excluded from
// egress so workloads cannot reach cluster or cloud-metadata addresses.
func buildNetworkPolicy(p *model.Project, cfg config.KubernetesConfig) *networkingv1.NetworkPolicy {
	protoTCP := corev1.ProtocolTCP
	protoUDP := corev1.ProtocolUDP
	dnsPort := intstr.FromInt32(53)

	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "project-isolation",
			Namespace: naming.Namespace(p.ID),
			Labels:    projectLabels(p),
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					From: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
						{NamespaceSelector: &metav1.LabelSelector{
							MatchLabels: map[string]string{"kubernetes.io/metadata.name": cfg.IngressNamespace},
						}},
					},
				},
			},
			Egress: []networkingv1.NetworkPolicyEgressRule{
				{
					// Cluster DNS.
					To: []networkingv1.NetworkPolicyPeer{
						{NamespaceSelector: &metav1.LabelSelector{
							MatchLabels: map[string]string{"kubernetes.io/metadata.name": "kube-system"},
						}},
					},
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: &protoUDP, Port: &dnsPort},
						{Protocol: &protoTCP, Port: &dnsPort},
					},
				},
				{
					// Intra-namespace traffic, container to container.
					To: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
					},
				},
				{
					// Public internet only.
					To: []networkingv1.NetworkPolicyPeer{
						{IPBlock: &networkingv1.IPBlock{
							CIDR: "0.0.0.0/0",
							Except: []string{
								"10.0.0.0/8",
								"172.16.0.0/12",
								"192.168.0.0/16",
								"169.254.169.254/32",
							},
						}},
					},
				},
			},
		},
	}
}

// buildPVC is the project's file volume. Single-container projects get a
// ReadWriteOnce claim; multi-container projects request ReadWriteMany so
// the dev servers can spread across nodes. Pods are still co-scheduled
// with the file manager via pod affinity, which keeps clusters whose
// storage class only provisions single-node volumes working.
func buildPVC(p *model.Project, cfg config.KubernetesConfig, containerCount int) *corev1.PersistentVolumeClaim {
	mode := corev1.ReadWriteOnce
	if containerCount > 1 {
		mode = corev1.ReadWriteMany
	}
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pvcName,
			Namespace: naming.Namespace(p.ID),
			Labels:    projectLabels(p),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{mode},
			StorageClassName: ptr.To(cfg.StorageClass),
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(cfg.PVCSize),
				},
			},
		},
	}
}

// buildFileManager is the always-on deployment that hosts file I/O, git
// and archive streaming for the namespace. It runs even when every dev
// server is scaled down, so the file API works on stopped projects.
func buildFileManager(p *model.Project, cfg config.KubernetesConfig) *appsv1.Deployment {
	labels := componentLabels(p, constants.FileManagerName)
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      constants.FileManagerName,
			Namespace: naming.Namespace(p.ID),
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{
				constants.Labels.Component: constants.FileManagerName,
			}},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					SecurityContext: podSecurityContext(),
					Containers: []corev1.Container{{
						Name:       constants.FileManagerName,
						Image:      cfg.DevServerImage,
						Command:    []string{"/bin/sh", "-c", "sleep infinity"},
						WorkingDir: constants.DefaultWorkdir,
						VolumeMounts: []corev1.VolumeMount{{
							Name:      projectVolumeName,
							MountPath: constants.DefaultWorkdir,
						}},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("50m"),
								corev1.ResourceMemory: resource.MustParse("64Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("512Mi"),
							},
						},
					}},
					Volumes: []corev1.Volume{projectVolume()},
				},
			},
		},
	}
}

// buildDevDeployment runs one base container's dev server.
func buildDevDeployment(p *model.Project, c *model.Container, m manifest.Manifest, env []corev1.EnvVar, cfg config.KubernetesConfig, multi bool) *appsv1.Deployment {
	name := naming.DeploymentName(c.Directory)
	labels := componentLabels(p, name)
	labels[constants.Labels.ContainerID] = c.ID

	port := c.InternalPort
	if port == 0 {
		port = m.Port
	}

	mount := corev1.VolumeMount{
		Name:      projectVolumeName,
		MountPath: constants.DefaultWorkdir,
	}
	if multi && !c.RootDirectory() {
		mount.SubPath = c.Directory
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: naming.Namespace(p.ID),
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{
				constants.Labels.Component: name,
			}},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					SecurityContext: podSecurityContext(),
					Affinity:        fileManagerAffinity(),
					Containers: []corev1.Container{{
						Name:       "dev-server",
						Image:      cfg.DevServerImage,
						Command:    []string{"/bin/sh", "-c", m.StartCommand},
						WorkingDir: constants.DefaultWorkdir,
						Env:        env,
						Ports: []corev1.ContainerPort{{
							ContainerPort: int32(port),
							Protocol:      corev1.ProtocolTCP,
						}},
						VolumeMounts: []corev1.VolumeMount{mount},
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(int32(port))},
							},
							InitialDelaySeconds: 5,
							PeriodSeconds:       5,
							FailureThreshold:    24,
						},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("100m"),
								corev1.ResourceMemory: resource.MustParse("256Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("2"),
								corev1.ResourceMemory: resource.MustParse("2Gi"),
							},
						},
					}},
					Volumes: []corev1.Volume{projectVolume()},
				},
			},
		},
	}
}

// buildServiceDeployment runs a containerized catalog service.
func buildServiceDeployment(p *model.Project, c *model.Container, def catalog.Definition) *appsv1.Deployment {
	name := naming.SanitizeName(c.Name)
	labels := componentLabels(p, name)
	labels[constants.Labels.ContainerID] = c.ID

	env := map[string]string{}
	for k, v := range def.DefaultEnv {
		env[k] = v
	}
	for k, v := range c.Env {
		env[k] = v
	}

	container := corev1.Container{
		Name:  name,
		Image: def.Image,
		Env:   envVars(env),
		Ports: []corev1.ContainerPort{{
			ContainerPort: int32(def.InternalPort),
			Protocol:      corev1.ProtocolTCP,
		}},
	}
	var volumes []corev1.Volume
	for i, path := range def.VolumePaths {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      projectVolumeName,
			MountPath: path,
			SubPath:   fmt.Sprintf(".services/%s/%d", name, i),
		})
	}
	if len(container.VolumeMounts) > 0 {
		volumes = append(volumes, projectVolume())
	}
	if def.Probe != nil && len(def.Probe.Command) > 0 {
		container.ReadinessProbe = &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{Command: def.Probe.Command},
			},
			InitialDelaySeconds: 5,
			PeriodSeconds:       10,
		}
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: naming.Namespace(p.ID),
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{
				constants.Labels.Component: name,
			}},
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Affinity:   fileManagerAffinity(),
					Containers: []corev1.Container{container},
					Volumes:    volumes,
				},
			},
		},
	}
}

// buildService exposes a component inside the namespace under a stable
// DNS name. The service name is what connection templates resolve {host}
// to.
func buildService(p *model.Project, component string, targetPort int) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      component,
			Namespace: naming.Namespace(p.ID),
			Labels:    componentLabels(p, component),
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{constants.Labels.Component: component},
			Ports: []corev1.ServicePort{{
				Port:       int32(targetPort),
				TargetPort: intstr.FromInt32(int32(targetPort)),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

// buildIngress routes the container's public hostname to its service.
func buildIngress(p *model.Project, c *model.Container, component string, port int, cfg *config.Config) *networkingv1.Ingress {
	host := naming.Hostname(p.Slug, c.Directory, cfg.AppDomain)
	pathType := networkingv1.PathTypePrefix

	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      component,
			Namespace: naming.Namespace(p.ID),
			Labels:    componentLabels(p, component),
			Annotations: map[string]string{
				// Dev servers stream; generous timeouts keep hot reload
				// connections open.
				"nginx.ingress.kubernetes.io/proxy-read-timeout": "600",
				"nginx.ingress.kubernetes.io/proxy-send-timeout": "600",
				"nginx.ingress.kubernetes.io/proxy-body-size":    "50m",
			},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ptr.To(cfg.Kubernetes.IngressClass),
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: component,
									Port: networkingv1.ServiceBackendPort{Number: int32(port)},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if cfg.Kubernetes.WildcardTLSSecret != "" {
		ing.Spec.TLS = []networkingv1.IngressTLS{{
			Hosts:      []string{host},
			SecretName: tlsSecretName,
		}}
	}
	return ing
}

// buildTLSSecret clones the platform wildcard certificate for a project
// namespace. Only the certificate is copied; no other platform secret
// crosses the namespace boundary.
func buildTLSSecret(p *model.Project, source *corev1.Secret) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      tlsSecretName,
			Namespace: naming.Namespace(p.ID),
			Labels:    projectLabels(p),
		},
		Type: source.Type,
		Data: source.Data,
	}
}

func projectVolume() corev1.Volume {
	return corev1.Volume{
		Name: projectVolumeName,
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: pvcName,
			},
		},
	}
}

// fileManagerAffinity co-schedules a pod with the namespace's file manager
// so pods mounting a single-node volume all land on one node.
func fileManagerAffinity() *corev1.Affinity {
	return &corev1.Affinity{
		PodAffinity: &corev1.PodAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: []corev1.PodAffinityTerm{{
				LabelSelector: &metav1.LabelSelector{
					MatchLabels: map[string]string{
						constants.Labels.Component: constants.FileManagerName,
					},
				},
				TopologyKey: "kubernetes.io/hostname",
			}},
		},
	}
}

func podSecurityContext() *corev1.PodSecurityContext {
	return &corev1.PodSecurityContext{
		RunAsUser:    ptr.To(int64(1000)),
		RunAsGroup:   ptr.To(int64(1000)),
		FSGroup:      ptr.To(int64(1000)),
		RunAsNonRoot: ptr.To(true),
	}
}

// envVars flattens env into a sorted slice so repeated builds produce the
// same pod spec and never trigger a spurious deployment rollout.
func envVars(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}
