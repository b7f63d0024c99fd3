package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeBillingSync    JobType = "billing_sync"
	JobTypeOverageCharge  JobType = "overage_charge"
	JobTypeWebhookProcess JobType = "webhook_process"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// BillingSyncJobPayload contains the payload for billing sync jobs
type BillingSyncJobPayload struct {
	ShopDomain string `json:"shop_domain"`
	// RequireActive makes the job use the longer return-from-checkout retry
	// schedule instead of a single sync pass.
	RequireActive bool `json:"require_active"`
}

// ToMap converts the payload to a map for storage
func (p BillingSyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"shop_domain":    p.ShopDomain,
		"require_active": p.RequireActive,
	}
}

// BillingSyncJobPayloadFromMap creates a payload from a map
func BillingSyncJobPayloadFromMap(data map[string]interface{}) (*BillingSyncJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BillingSyncJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// OverageChargeJobPayload contains the payload for overage charge jobs
type OverageChargeJobPayload struct {
	ShopDomain      string  `json:"shop_domain"`
	ImagesUsedTotal int     `json:"images_used_total"`
	PlanLimit       int     `json:"plan_limit"`
	PricePerExtra   float64 `json:"price_per_extra"`
	Currency        string  `json:"currency"`
	ImagesThisCall  int     `json:"images_this_call"`
}

// ToMap converts the payload to a map for storage
func (p OverageChargeJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"shop_domain":       p.ShopDomain,
		"images_used_total": p.ImagesUsedTotal,
		"plan_limit":        p.PlanLimit,
		"price_per_extra":   p.PricePerExtra,
		"currency":          p.Currency,
		"images_this_call":  p.ImagesThisCall,
	}
}

// OverageChargeJobPayloadFromMap creates a payload from a map
func OverageChargeJobPayloadFromMap(data map[string]interface{}) (*OverageChargeJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload OverageChargeJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// WebhookProcessJobPayload contains the payload for webhook processing jobs
type WebhookProcessJobPayload struct {
	EventID uint `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p WebhookProcessJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

// WebhookProcessJobPayloadFromMap creates a payload from a map
func WebhookProcessJobPayloadFromMap(data map[string]interface{}) (*WebhookProcessJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookProcessJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
