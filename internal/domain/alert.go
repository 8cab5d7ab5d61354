package domain

import (
	"time"
)

// Alert is raised when a scored transaction trips the alert policy.
type Alert struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Message       string    `json:"message"`
	RiskScore     int       `json:"riskScore"`
	Timestamp     time.Time `json:"timestamp"`
}

// AlertPolicyConfig configures the CEL alert policy.
type AlertPolicyConfig struct {
	// Expression is a CEL expression over score, amount, location,
	// user_id and known_user that returns a bool.
	Expression string `json:"expression"`
}

// DefaultAlertExpression flags transactions at or above the review threshold.
const DefaultAlertExpression = "score >= 70"
