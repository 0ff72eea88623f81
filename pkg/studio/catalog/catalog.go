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

// Package catalog is the static registry of first-party services a project
// can wire a container to: databases, caches, queues and external SaaS
// endpoints. Definitions carry everything the backends need to run a
// containerized service and everything the connection layer needs to
// synthesize environment variables for consumers.
package catalog

import (
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
)

// Category groups services for routing and UI purposes. Only proxy,
// storage and search services get public hostnames.
type Category string

const (
	Database Category = "database"
	Cache    Category = "cache"
	Queue    Category = "queue"
	Proxy    Category = "proxy"
	Search   Category = "search"
	Storage  Category = "storage"
	BaaS     Category = "baas"
	AI       Category = "ai"
	Payments Category = "payments"
	Auth     Category = "auth"
)

// ServiceType says where a service runs.
type ServiceType string

const (
	// Containerized runs inside the project's environment.
	Containerized ServiceType = "container"
	// External is a SaaS endpoint reached with user credentials.
	External ServiceType = "external"
	// Hybrid can run containerized for development and external in
	// production.
	Hybrid ServiceType = "hybrid"
)

// HealthProbe describes how a backend checks a containerized service.
type HealthProbe struct {
	Command  []string
	HTTPPath string
	Port     int
}

// CredentialField is one user-supplied credential an external service needs.
type CredentialField struct {
	Name     string
	Label    string
	Secret   bool
	Required bool
}

// Definition describes one catalog service.
type Definition struct {
	Slug     string
	Name     string
	Category Category
	Type     ServiceType

	// Containerized/hybrid fields.
	Image        string
	InternalPort int
	DefaultEnv   map[string]string
	VolumePaths  []string
	Probe        *HealthProbe

	// External/hybrid fields.
	AuthType         string
	CredentialFields []CredentialField

	// ConnectionTemplate maps consumer env-var names to template strings
	// with {placeholder} tokens, resolved by Expand against the service's
	// own env, its sanitized name, its port, and user credentials.
	ConnectionTemplate map[string]string
}

// Routable reports whether the service gets a public hostname.
func (d Definition) Routable() bool {
	switch d.Category {
	case Proxy, Storage, Search:
		return true
	}
	return false
}

// Get looks a service up by slug.
func Get(slug string) (Definition, error) {
	def, ok := registry[slug]
	if !ok {
		return Definition{}, errors.New(errors.NotFound, "unknown service %q", slug)
	}
	return def, nil
}

// All returns every registered definition.
func All() []Definition {
	defs := make([]Definition, 0, len(registry))
	for _, d := range registry {
		defs = append(defs, d)
	}
	return defs
}

var registry = map[string]Definition{
	"postgres": {
		Slug:         "postgres",
		Name:         "PostgreSQL",
		Category:     Database,
		Type:         Containerized,
		Image:        "postgres:16-alpine",
		InternalPort: 5432,
		DefaultEnv: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "app",
		},
		VolumePaths: []string{"/var/lib/postgresql/data"},
		Probe:       &HealthProbe{Command: []string{"pg_isready", "-U", "postgres"}},
		ConnectionTemplate: map[string]string{
			"DATABASE_URL":  "postgresql://{POSTGRES_USER}:{POSTGRES_PASSWORD}@{host}:{port}/{POSTGRES_DB}",
			"POSTGRES_HOST": "{host}",
			"POSTGRES_PORT": "{port}",
		},
	},
	"mysql": {
		Slug:         "mysql",
		Name:         "MySQL",
		Category:     Database,
		Type:         Containerized,
		Image:        "mysql:8.4",
		InternalPort: 3306,
		DefaultEnv: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "app",
		},
		VolumePaths: []string{"/var/lib/mysql"},
		ConnectionTemplate: map[string]string{
			"DATABASE_URL": "mysql://root:{MYSQL_ROOT_PASSWORD}@{host}:{port}/{MYSQL_DATABASE}",
		},
	},
	"redis": {
		Slug:         "redis",
		Name:         "Redis",
		Category:     Cache,
		Type:         Containerized,
		Image:        "redis:7-alpine",
		InternalPort: 6379,
		VolumePaths:  []string{"/data"},
		Probe:        &HealthProbe{Command: []string{"redis-cli", "ping"}},
		ConnectionTemplate: map[string]string{
			"REDIS_URL":  "redis://{host}:{port}/0",
			"REDIS_HOST": "{host}",
			"REDIS_PORT": "{port}",
		},
	},
	"mongodb": {
		Slug:         "mongodb",
		Name:         "MongoDB",
		Category:     Database,
		Type:         Containerized,
		Image:        "mongo:7",
		InternalPort: 27017,
		VolumePaths:  []string{"/data/db"},
		ConnectionTemplate: map[string]string{
			"MONGODB_URI": "mongodb://{host}:{port}/app",
		},
	},
	"rabbitmq": {
		Slug:         "rabbitmq",
		Name:         "RabbitMQ",
		Category:     Queue,
		Type:         Containerized,
		Image:        "rabbitmq:3.13-alpine",
		InternalPort: 5672,
		ConnectionTemplate: map[string]string{
			"AMQP_URL": "amqp://guest:guest@{host}:{port}/",
		},
	},
	"meilisearch": {
		Slug:         "meilisearch",
		Name:         "Meilisearch",
		Category:     Search,
		Type:         Containerized,
		Image:        "getmeili/meilisearch:v1.8",
		InternalPort: 7700,
		VolumePaths:  []string{"/meili_data"},
		ConnectionTemplate: map[string]string{
			"MEILI_URL": "http://{host}:{port}",
		},
	},
	"minio": {
		Slug:         "minio",
		Name:         "MinIO",
		Category:     Storage,
		Type:         Containerized,
		Image:        "minio/minio:latest",
		InternalPort: 9000,
		DefaultEnv: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		VolumePaths: []string{"/data"},
		ConnectionTemplate: map[string]string{
			"S3_ENDPOINT":          "http://{host}:{port}",
			"S3_ACCESS_KEY_ID":     "{MINIO_ROOT_USER}",
			"S3_SECRET_ACCESS_KEY": "{MINIO_ROOT_PASSWORD}",
		},
	},
	"stripe": {
		Slug:     "stripe",
		Name:     "Stripe",
		Category: Payments,
		Type:     External,
		AuthType: "api_key",
		CredentialFields: []CredentialField{
			{Name: "api_key", Label: "Secret key", Secret: true, Required: true},
			{Name: "webhook_secret", Label: "Webhook signing secret", Secret: true},
		},
		ConnectionTemplate: map[string]string{
			"STRIPE_SECRET_KEY":     "{api_key}",
			"STRIPE_WEBHOOK_SECRET": "{webhook_secret}",
		},
	},
	"openai": {
		Slug:     "openai",
		Name:     "OpenAI",
		Category: AI,
		Type:     External,
		AuthType: "api_key",
		CredentialFields: []CredentialField{
			{Name: "api_key", Label: "API key", Secret: true, Required: true},
		},
		ConnectionTemplate: map[string]string{
			"OPENAI_API_KEY": "{api_key}",
		},
	},
	"supabase": {
		Slug:         "supabase",
		Name:         "Supabase",
		Category:     BaaS,
		Type:         Hybrid,
		AuthType:     "api_key",
		Image:        "supabase/postgres:15.1.0.117",
		InternalPort: 5432,
		CredentialFields: []CredentialField{
			{Name: "project_url", Label: "Project URL", Required: true},
			{Name: "anon_key", Label: "Anon key", Secret: true, Required: true},
		},
		ConnectionTemplate: map[string]string{
			"SUPABASE_URL":      "{project_url}",
			"SUPABASE_ANON_KEY": "{anon_key}",
		},
	},
	"clerk": {
		Slug:     "clerk",
		Name:     "Clerk",
		Category: Auth,
		Type:     External,
		AuthType: "api_key",
		CredentialFields: []CredentialField{
			{Name: "publishable_key", Label: "Publishable key", Required: true},
			{Name: "secret_key", Label: "Secret key", Secret: true, Required: true},
		},
		ConnectionTemplate: map[string]string{
			"CLERK_PUBLISHABLE_KEY": "{publishable_key}",
			"CLERK_SECRET_KEY":      "{secret_key}",
		},
	},
}
