package cloudflare

import "strings"

// Account is a Cloudflare account the credential can access.
type Account struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	CreatedOn Time             `json:"created_on"`
	Settings  *AccountSettings `json:"settings"`
}

// AccountSettings carries the subset of account settings the app shows.
type AccountSettings struct {
	EnforceTwoFactor bool   `json:"enforce_twofactor"`
	AbuseContact     string `json:"abuse_contact_email"`
}

// Worker is a Workers script as returned by the scripts listing.
type Worker struct {
	ID                string   `json:"id"`
	Etag              string   `json:"etag"`
	Handlers          []string `json:"handlers"`
	UsageModel        string   `json:"usage_model"`
	CompatibilityDate string   `json:"compatibility_date"`
	LastDeployedFrom  string   `json:"last_deployed_from"`
	CreatedOn         Time     `json:"created_on"`
	ModifiedOn        Time     `json:"modified_on"`
}

// PagesProject is a Cloudflare Pages project.
type PagesProject struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Subdomain        string      `json:"subdomain"`
	Domains          []string    `json:"domains"`
	ProductionBranch string      `json:"production_branch"`
	CreatedOn        Time        `json:"created_on"`
	LatestDeployment *Deployment `json:"latest_deployment"`
}

// Deployment is a single Pages deployment.
type Deployment struct {
	ID          string            `json:"id"`
	ShortID     string            `json:"short_id"`
	ProjectID   string            `json:"project_id"`
	ProjectName string            `json:"project_name"`
	Environment string            `json:"environment"`
	URL         string            `json:"url"`
	CreatedOn   Time              `json:"created_on"`
	ModifiedOn  Time              `json:"modified_on"`
	Aliases     []string          `json:"aliases"`
	IsSkipped   bool              `json:"is_skipped"`
	LatestStage Stage             `json:"latest_stage"`
	Stages      []Stage           `json:"stages"`
	Trigger     DeploymentTrigger `json:"deployment_trigger"`
}

// Stage is one step of a deployment pipeline.
type Stage struct {
	Name      string `json:"name"`
	StartedOn *Time  `json:"started_on"`
	EndedOn   *Time  `json:"ended_on"`
	Status    string `json:"status"`
}

// DeploymentTrigger records what started a deployment.
type DeploymentTrigger struct {
	Type     string          `json:"type"`
	Metadata TriggerMetadata `json:"metadata"`
}

// TriggerMetadata carries the commit details behind a triggered deployment.
type TriggerMetadata struct {
	Branch        string `json:"branch"`
	CommitHash    string `json:"commit_hash"`
	CommitMessage string `json:"commit_message"`
}

// DeploymentStatus is the coarse state derived from a deployment's latest
// stage.
type DeploymentStatus string

const (
	StatusIdle     DeploymentStatus = "idle"
	StatusActive   DeploymentStatus = "active"
	StatusSuccess  DeploymentStatus = "success"
	StatusFailure  DeploymentStatus = "failure"
	StatusCanceled DeploymentStatus = "canceled"
	StatusUnknown  DeploymentStatus = "unknown"
)

// ParseDeploymentStatus maps a raw stage status string onto the coarse
// deployment states, case-insensitively. Unrecognized values map to
// StatusUnknown rather than failing.
func ParseDeploymentStatus(raw string) DeploymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "idle":
		return StatusIdle
	case "active":
		return StatusActive
	case "success":
		return StatusSuccess
	case "failure":
		return StatusFailure
	case "canceled":
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

// Status derives the deployment's coarse state from its latest stage.
func (d *Deployment) Status() DeploymentStatus {
	return ParseDeploymentStatus(d.LatestStage.Status)
}

// Terminal reports whether the status is an end state worth announcing.
func (s DeploymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// KVNamespace is a Workers KV namespace.
type KVNamespace struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	SupportsURLEncoding bool   `json:"supports_url_encoding"`
}

// R2Bucket is an R2 object-storage bucket.
type R2Bucket struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	StorageClass string `json:"storage_class"`
	CreationDate Time   `json:"creation_date"`
}

// D1Database is a D1 serverless database.
type D1Database struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	NumTables int    `json:"num_tables"`
	FileSize  int64  `json:"file_size"`
	CreatedAt Time   `json:"created_at"`
}

// Queue is a Cloudflare Queue with its attached producers and consumers.
type Queue struct {
	ID         string          `json:"queue_id"`
	Name       string          `json:"queue_name"`
	CreatedOn  Time            `json:"created_on"`
	ModifiedOn Time            `json:"modified_on"`
	Producers  []QueueProducer `json:"producers"`
	Consumers  []QueueConsumer `json:"consumers"`
}

// QueueProducer is a script that writes to a queue.
type QueueProducer struct {
	Script string `json:"script"`
	Type   string `json:"type"`
}

// QueueConsumer is a script that reads from a queue.
type QueueConsumer struct {
	Script   string                `json:"script"`
	Type     string                `json:"type"`
	Settings QueueConsumerSettings `json:"settings"`
}

// QueueConsumerSettings are the delivery knobs of a queue consumer.
type QueueConsumerSettings struct {
	BatchSize     int `json:"batch_size"`
	MaxRetries    int `json:"max_retries"`
	MaxWaitTimeMS int `json:"max_wait_time_ms"`
}
