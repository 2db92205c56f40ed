package domain

import (
	"time"
)

// CaseStatus is the review state of an alert case.
type CaseStatus string

const (
	CaseOpen               CaseStatus = "Open"
	CaseInReview           CaseStatus = "In Review"
	CaseEscalated          CaseStatus = "Escalated"
	CaseUnderInvestigation CaseStatus = "Under Investigation"
	CaseClosed             CaseStatus = "Closed"
	CaseFiled              CaseStatus = "Filed"
	CaseManualOverride     CaseStatus = "Override – Manual Review"
)

// CaseStatuses lists every case status.
var CaseStatuses = []CaseStatus{
	CaseOpen, CaseInReview, CaseEscalated, CaseUnderInvestigation, CaseClosed, CaseFiled, CaseManualOverride,
}

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	for _, known := range CaseStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further analyst decision is expected.
func (s CaseStatus) Terminal() bool {
	return s == CaseClosed || s == CaseFiled
}

// RiskRating is an internal customer risk rating.
type RiskRating string

const (
	RiskLow      RiskRating = "Low"
	RiskMedium   RiskRating = "Medium"
	RiskHigh     RiskRating = "High"
	RiskCritical RiskRating = "Critical"
)

// Rank orders ratings from Low (1) to Critical (4). Unknown ratings rank 0.
func (r RiskRating) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Case is a flagged transaction under analyst review.
type Case struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	EntityName          string     `json:"entityName"`
	EntityID            string     `json:"entityId"`
	Type                string     `json:"type"` // Wire, ACH, Cash Deposit, Crypto Transfer
	Date                string     `json:"date"`
	Amount              float64    `json:"amount"`
	Currency            string     `json:"currency"`
	CounterpartyCountry string     `json:"counterpartyCountry"`
	Description         string     `json:"description"`
	RiskLevel           RiskRating `json:"riskLevel"`
	Status              CaseStatus `json:"status"`
	AssignedAnalyst     string     `json:"assignedAnalyst,omitempty"`

	// Profile holds the pre-resolved data that facts are derived from.
	Profile CaseProfile `json:"profile"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CaseProfile is the customer and transaction context of a case.
type CaseProfile struct {
	// Baseline
	AvgOutbound90d       float64 `json:"avgOutbound90d"`
	LargestPriorWire90d  float64 `json:"largestPriorWire90d"`
	FirstTimeBeneficiary bool    `json:"firstTimeBeneficiary"`
	BeneficiaryName      string  `json:"beneficiaryName,omitempty"`

	// Jurisdiction and corridor
	ElevatedRiskJurisdiction bool `json:"elevatedRiskJurisdiction"`
	FirstTimeCountry         bool `json:"firstTimeCountry"`

	// Source of funds. TimeGapHours is nil when no inbound precedes the outbound.
	TimeGapHours *float64 `json:"timeGapHours"`

	DocumentationAttached bool `json:"documentationAttached"`

	// Customer risk drift
	PriorSARCount          int        `json:"priorSarCount"`
	AlertsLast90Days       int        `json:"alertsLast90Days"`
	RiskRatingAtOnboarding RiskRating `json:"riskRatingAtOnboarding"`
	CurrentRiskRating      RiskRating `json:"currentRiskRating"`

	// Short-term velocity
	OutboundLast7d  float64 `json:"outboundLast7d"`
	Historical7dAvg float64 `json:"historical7dAvg"`
	PeerPercentile  float64 `json:"peerPercentile"`
	AdverseMedia    bool    `json:"adverseMedia"`
	SanctionsMatch  bool    `json:"sanctionsMatch"`

	// Exposure concentration
	JurisdictionOutbound90d float64 `json:"jurisdictionOutbound90d"`
	TotalOutbound90d        float64 `json:"totalOutbound90d"`

	// Business behavior vs declared revenue
	DeclaredMonthlyRevenue float64 `json:"declaredMonthlyRevenue"`
	DepositedInWindow      float64 `json:"depositedInWindow"`
	WindowMonths           int     `json:"windowMonths"`
}

// CaseTransition records a status change.
type CaseTransition struct {
	CaseID    string     `json:"caseId"`
	From      CaseStatus `json:"from"`
	To        CaseStatus `json:"to"`
	Action    string     `json:"action"`
	Analyst   string     `json:"analyst"`
	Note      string     `json:"note,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Case actions recorded on transitions.
const (
	ActionEscalated = "Escalated"
	ActionDismissed = "Dismissed"
)

// TriggerSnapshot is the checklist line captured at escalation time.
type TriggerSnapshot struct {
	Label string `json:"label"`
	Met   bool   `json:"met"`
}

// EscalationRecord is the locked record written when an analyst escalates.
// It is never edited after creation.
type EscalationRecord struct {
	CaseID          string            `json:"caseId"`
	Rationale       string            `json:"rationale"`
	Analyst         string            `json:"userId"`
	Timestamp       time.Time         `json:"timestamp"`
	TriggersMet     int               `json:"triggersMet"`
	TriggersTotal   int               `json:"triggersTotal"`
	Threshold       int               `json:"threshold"`
	DeviationPct    float64           `json:"deviationPct"`
	TimeGapHours    *float64          `json:"timeGapHours"`
	TriggerSnapshot []TriggerSnapshot `json:"triggerSnapshot"`
}
