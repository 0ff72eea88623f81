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
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/TesslateAI/studio-core/pkg/studio/catalog"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/manifest"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		AppDomain: "studio.dev",
		Kubernetes: config.KubernetesConfig{
			StorageClass:      "standard",
			PVCSize:           "2Gi",
			IngressClass:      "nginx",
			IngressNamespace:  "ingress-nginx",
			WildcardTLSSecret: "studio-wildcard",
			PlatformNamespace: "tesslate-platform",
			DevServerImage:    "tesslate/dev-server:latest",
		},
	}
}

func testProject() *model.Project {
	return &model.Project{
		ID:     "p1",
		Slug:   "shop-x7k2m9",
		UserID: "u1",
		Status: model.EnvActive,
	}
}

func TestNetworkPolicyBlocksPrivateEgress(t *testing.T) {
	policy := buildNetworkPolicy(testProject(), testConfig().Kubernetes)

	var block []string
	for _, rule := range policy.Spec.Egress {
		for _, peer := range rule.To {
			if peer.IPBlock != nil {
				block = peer.IPBlock.Except
			}
		}
	}
	testutil.CheckDeepEqual(t, []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.169.254/32",
	}, block)
}

func TestNetworkPolicyAllowsOnlyIngressControllerAndNamespace(t *testing.T) {
	policy := buildNetworkPolicy(testProject(), testConfig().Kubernetes)

	testutil.CheckDeepEqual(t, 1, len(policy.Spec.Ingress))
	peers := policy.Spec.Ingress[0].From
	testutil.CheckDeepEqual(t, 2, len(peers))
	testutil.CheckDeepEqual(t, "ingress-nginx",
		peers[1].NamespaceSelector.MatchLabels["kubernetes.io/metadata.name"])
}

func TestDevDeploymentMountsSubPathInMultiContainerProject(t *testing.T) {
	c := &model.Container{ID: "c1", Name: "frontend", Directory: "frontend", Type: model.TypeBase}
	m := manifest.Manifest{StartCommand: "npm install && npm run dev", Port: 5173}

	dep := buildDevDeployment(testProject(), c, m, nil, testConfig().Kubernetes, true)

	testutil.CheckDeepEqual(t, "dev-frontend", dep.Name)
	container := dep.Spec.Template.Spec.Containers[0]
	testutil.CheckDeepEqual(t, []string{"/bin/sh", "-c", "npm install && npm run dev"}, container.Command)
	testutil.CheckDeepEqual(t, "frontend", container.VolumeMounts[0].SubPath)
	testutil.CheckDeepEqual(t, "/app", container.VolumeMounts[0].MountPath)
	testutil.CheckDeepEqual(t, int32(5173), container.Ports[0].ContainerPort)
}

func TestDevDeploymentMountsWholeVolumeForSingleContainer(t *testing.T) {
	c := &model.Container{ID: "c1", Name: "app", Directory: "", Type: model.TypeBase}
	m := manifest.Manifest{StartCommand: "npm run dev", Port: 3000}

	dep := buildDevDeployment(testProject(), c, m, nil, testConfig().Kubernetes, false)

	testutil.CheckDeepEqual(t, "dev-app", dep.Name)
	testutil.CheckDeepEqual(t, "", dep.Spec.Template.Spec.Containers[0].VolumeMounts[0].SubPath)
}

func TestDevDeploymentCoSchedulesWithFileManager(t *testing.T) {
	c := &model.Container{ID: "c1", Name: "frontend", Directory: "frontend", Type: model.TypeBase}

	dep := buildDevDeployment(testProject(), c, manifest.Manifest{Port: 5173}, nil, testConfig().Kubernetes, true)

	terms := dep.Spec.Template.Spec.Affinity.PodAffinity.RequiredDuringSchedulingIgnoredDuringExecution
	testutil.CheckDeepEqual(t, "kubernetes.io/hostname", terms[0].TopologyKey)
	testutil.CheckDeepEqual(t, constants.FileManagerName,
		terms[0].LabelSelector.MatchLabels[constants.Labels.Component])
}

func TestFileManagerMountsVolumeWhole(t *testing.T) {
	dep := buildFileManager(testProject(), testConfig().Kubernetes)

	container := dep.Spec.Template.Spec.Containers[0]
	testutil.CheckDeepEqual(t, "/app", container.VolumeMounts[0].MountPath)
	testutil.CheckDeepEqual(t, "", container.VolumeMounts[0].SubPath)
	testutil.CheckDeepEqual(t, []string{"/bin/sh", "-c", "sleep infinity"}, container.Command)
}

func TestServiceDeploymentMountsVolumePaths(t *testing.T) {
	c := &model.Container{ID: "c3", Name: "main db", ServiceSlug: "postgres", Type: model.TypeService}
	def, err := catalog.Get("postgres")
	testutil.CheckError(t, false, err)

	dep := buildServiceDeployment(testProject(), c, def)

	testutil.CheckDeepEqual(t, "main-db", dep.Name)
	mount := dep.Spec.Template.Spec.Containers[0].VolumeMounts[0]
	testutil.CheckDeepEqual(t, "/var/lib/postgresql/data", mount.MountPath)
	testutil.CheckDeepEqual(t, ".services/main-db/0", mount.SubPath)
}

func TestIngressRoutesHostnameWithTLS(t *testing.T) {
	c := &model.Container{ID: "c1", Name: "frontend", Directory: "frontend", Type: model.TypeBase}

	ing := buildIngress(testProject(), c, "dev-frontend", 5173, testConfig())

	rule := ing.Spec.Rules[0]
	testutil.CheckDeepEqual(t, "shop-x7k2m9-frontend.studio.dev", rule.Host)
	backend := rule.HTTP.Paths[0].Backend.Service
	testutil.CheckDeepEqual(t, "dev-frontend", backend.Name)
	testutil.CheckDeepEqual(t, int32(5173), backend.Port.Number)
	testutil.CheckDeepEqual(t, tlsSecretName, ing.Spec.TLS[0].SecretName)
	testutil.CheckDeepEqual(t, "nginx", *ing.Spec.IngressClassName)
}

func TestTLSSecretCopyCarriesOnlyCertificateData(t *testing.T) {
	source := &corev1.Secret{
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"tls.crt": []byte("cert"),
			"tls.key": []byte("key"),
		},
	}

	secret := buildTLSSecret(testProject(), source)

	testutil.CheckDeepEqual(t, tlsSecretName, secret.Name)
	testutil.CheckDeepEqual(t, "proj-p1", secret.Namespace)
	testutil.CheckDeepEqual(t, corev1.SecretTypeTLS, secret.Type)
	testutil.CheckDeepEqual(t, source.Data, secret.Data)
}

func TestProjectResourcesCarryOwnershipLabels(t *testing.T) {
	p := testProject()

	ns := buildNamespace(p)
	pvc := buildPVC(p, testConfig().Kubernetes, 1)

	testutil.CheckDeepEqual(t, "proj-p1", ns.Name)
	for _, labels := range []map[string]string{ns.Labels, pvc.Labels} {
		testutil.CheckDeepEqual(t, constants.Labels.ManagedByName, labels[constants.Labels.ManagedBy])
		testutil.CheckDeepEqual(t, "p1", labels[constants.Labels.ProjectID])
		testutil.CheckDeepEqual(t, "u1", labels[constants.Labels.UserID])
	}
	testutil.CheckDeepEqual(t, "2Gi", pvc.Spec.Resources.Requests.Storage().String())
}

func TestVolumeAccessModeFollowsContainerCount(t *testing.T) {
	p := testProject()
	cfg := testConfig().Kubernetes

	single := buildPVC(p, cfg, 1)
	multi := buildPVC(p, cfg, 3)

	testutil.CheckDeepEqual(t, []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}, single.Spec.AccessModes)
	testutil.CheckDeepEqual(t, []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany}, multi.Spec.AccessModes)
}

func TestEnvVarsAreSortedByName(t *testing.T) {
	vars := envVars(map[string]string{
		"VITE_API_URL": "https://api.studio.dev",
		"DB_HOST":      "db",
		"PORT":         "3000",
	})

	testutil.CheckDeepEqual(t, []corev1.EnvVar{
		{Name: "DB_HOST", Value: "db"},
		{Name: "PORT", Value: "3000"},
		{Name: "VITE_API_URL", Value: "https://api.studio.dev"},
	}, vars)
}
