// Package fixtures holds the demo alert queue loaded into an empty repository.
package fixtures

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func hours(h float64) *float64 {
	return &h
}

// Cases returns the demo alert cases. Each call returns fresh values.
func Cases() []*domain.Case {
	return []*domain.Case{
		{
			ID:                  "ALRT-2024-001",
			Title:               "Unusual outbound wire to high-risk jurisdiction",
			EntityName:          "Global Freight Solutions LLC",
			EntityID:            "CUST-41234",
			Type:                "Wire",
			Date:                "2024-11-18",
			Amount:              47892.37,
			Currency:            "USD",
			CounterpartyCountry: "Cyprus",
			Description:         "Outbound wire materially exceeds historical baseline. Stated purpose trade settlement; no supporting documentation on file.",
			RiskLevel:           domain.RiskHigh,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           18200,
				LargestPriorWire90d:      22500,
				FirstTimeBeneficiary:     true,
				BeneficiaryName:          "Aegean Maritime Holdings Ltd",
				ElevatedRiskJurisdiction: true,
				FirstTimeCountry:         true,
				TimeGapHours:             hours(68),
				PriorSARCount:            1,
				AlertsLast90Days:         2,
				RiskRatingAtOnboarding:   domain.RiskMedium,
				CurrentRiskRating:        domain.RiskHigh,
				OutboundLast7d:           61200,
				Historical7dAvg:          18000,
				PeerPercentile:           92,
				JurisdictionOutbound90d:  98400,
				TotalOutbound90d:         169655,
				DeclaredMonthlyRevenue:   19500,
				DepositedInWindow:        98400,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-002",
			Title:               "Structuring – multiple sub-10k deposits",
			EntityName:          "A. Ivanov Trading",
			EntityID:            "CUST-40891",
			Type:                "Cash Deposit",
			Date:                "2024-11-14",
			Amount:              9847.20,
			Currency:            "USD",
			CounterpartyCountry: "United States",
			Description:         "Seven cash deposits just below the CTR threshold totaling $67,240 in a 72-hour window; no matching business pattern.",
			RiskLevel:           domain.RiskHigh,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         4200,
				AlertsLast90Days:       2,
				RiskRatingAtOnboarding: domain.RiskMedium,
				CurrentRiskRating:      domain.RiskHigh,
				OutboundLast7d:         67240,
				Historical7dAvg:        12000,
				PeerPercentile:         97,
				TotalOutbound90d:       88000,
				DeclaredMonthlyRevenue: 15000,
				DepositedInWindow:      67240,
				WindowMonths:           1,
			},
		},
		{
			ID:                  "ALRT-2024-003",
			Title:               "Potential PEP transaction",
			EntityName:          "Premier Imports Inc",
			EntityID:            "CUST-42156",
			Type:                "Wire",
			Date:                "2024-10-29",
			Amount:              124750.25,
			Currency:            "USD",
			CounterpartyCountry: "United Arab Emirates",
			Description:         "Outbound wire to a beneficiary linked to a politically exposed person; no prior relationship or documented purpose.",
			RiskLevel:           domain.RiskHigh,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           31000,
				LargestPriorWire90d:      42000,
				FirstTimeBeneficiary:     true,
				ElevatedRiskJurisdiction: true,
				FirstTimeCountry:         true,
				TimeGapHours:             hours(30),
				RiskRatingAtOnboarding:   domain.RiskMedium,
				CurrentRiskRating:        domain.RiskMedium,
				OutboundLast7d:           124750.25,
				Historical7dAvg:          40000,
				PeerPercentile:           95,
				AdverseMedia:             true,
				JurisdictionOutbound90d:  124750.25,
				TotalOutbound90d:         310000,
				DeclaredMonthlyRevenue:   120000,
				DepositedInWindow:        260000,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-004",
			Title:               "Sanctions screening hit",
			EntityName:          "Nordic Commodities AB",
			EntityID:            "CUST-43902",
			Type:                "Wire",
			Date:                "2024-12-02",
			Amount:              28340.60,
			Currency:            "USD",
			CounterpartyCountry: "Russia",
			Description:         "Counterparty name and address match an OFAC designated list entry; transaction on hold pending compliance review.",
			RiskLevel:           domain.RiskHigh,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           26000,
				ElevatedRiskJurisdiction: true,
				DocumentationAttached:    true,
				RiskRatingAtOnboarding:   domain.RiskMedium,
				CurrentRiskRating:        domain.RiskMedium,
				OutboundLast7d:           28340.60,
				Historical7dAvg:          25000,
				PeerPercentile:           60,
				SanctionsMatch:           true,
				JurisdictionOutbound90d:  28340.60,
				TotalOutbound90d:         240000,
				DeclaredMonthlyRevenue:   90000,
				DepositedInWindow:        210000,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-005",
			Title:               "Sanctions partial match",
			EntityName:          "Nordic Commodities AB",
			EntityID:            "CUST-43902",
			Type:                "Wire",
			Date:                "2024-12-05",
			Amount:              28340.60,
			Currency:            "USD",
			CounterpartyCountry: "Sweden",
			Description:         "Partial name and address match to an SDN list entity; Swedish entity linked to a sanctioned ultimate beneficiary.",
			RiskLevel:           domain.RiskHigh,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         26000,
				PriorSARCount:          1,
				AlertsLast90Days:       1,
				RiskRatingAtOnboarding: domain.RiskMedium,
				CurrentRiskRating:      domain.RiskHigh,
				OutboundLast7d:         56681.20,
				Historical7dAvg:        25000,
				PeerPercentile:         70,
				AdverseMedia:           true,
				TotalOutbound90d:       268000,
				DeclaredMonthlyRevenue: 90000,
				DepositedInWindow:      210000,
				WindowMonths:           3,
			},
		},
		{
			ID:                  "ALRT-2024-006",
			Title:               "Velocity spike in ACH transfers",
			EntityName:          "J. Ramirez Consulting",
			EntityID:            "CUST-40122",
			Type:                "ACH",
			Date:                "2024-11-22",
			Amount:              24999.87,
			Currency:            "USD",
			CounterpartyCountry: "United States",
			Description:         "ACH volume 4.2x above 90-day baseline with multiple debits within 48 hours; no documented business event.",
			RiskLevel:           domain.RiskMedium,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         6000,
				TimeGapHours:           hours(36),
				RiskRatingAtOnboarding: domain.RiskLow,
				CurrentRiskRating:      domain.RiskLow,
				OutboundLast7d:         25200,
				Historical7dAvg:        6000,
				PeerPercentile:         84,
				TotalOutbound90d:       72000,
				DeclaredMonthlyRevenue: 30000,
				DepositedInWindow:      70000,
				WindowMonths:           3,
			},
		},
		{
			ID:                  "ALRT-2024-007",
			Title:               "Trade-based over-invoicing indicator",
			EntityName:          "Pacific Textiles Ltd",
			EntityID:            "CUST-41877",
			Type:                "Wire",
			Date:                "2024-11-08",
			Amount:              186420.50,
			Currency:            "USD",
			CounterpartyCountry: "China",
			Description:         "Invoice amount materially exceeds the customs declaration for the same shipment.",
			RiskLevel:           domain.RiskMedium,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           142000,
				ElevatedRiskJurisdiction: true,
				RiskRatingAtOnboarding:   domain.RiskMedium,
				CurrentRiskRating:        domain.RiskMedium,
				OutboundLast7d:           186420.50,
				Historical7dAvg:          150000,
				PeerPercentile:           93,
				JurisdictionOutbound90d:  380000,
				TotalOutbound90d:         610000,
				DeclaredMonthlyRevenue:   250000,
				DepositedInWindow:        640000,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-008",
			Title:               "Beneficiary name mismatch",
			EntityName:          "Metro Supply Co",
			EntityID:            "CUST-43341",
			Type:                "Wire",
			Date:                "2024-10-15",
			Amount:              15724.33,
			Currency:            "USD",
			CounterpartyCountry: "British Virgin Islands",
			Description:         "Wire beneficiary name does not match the account holder on file; first-time payment to a BVI entity.",
			RiskLevel:           domain.RiskMedium,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           12000,
				FirstTimeBeneficiary:     true,
				ElevatedRiskJurisdiction: true,
				FirstTimeCountry:         true,
				RiskRatingAtOnboarding:   domain.RiskLow,
				CurrentRiskRating:        domain.RiskLow,
				OutboundLast7d:           15724.33,
				Historical7dAvg:          11000,
				PeerPercentile:           55,
				JurisdictionOutbound90d:  15724.33,
				TotalOutbound90d:         98000,
				DeclaredMonthlyRevenue:   40000,
				DepositedInWindow:        115000,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-009",
			Title:               "Rapid micro-transfers to crypto wallet",
			EntityName:          "Tech Ventures LLC",
			EntityID:            "CUST-42668",
			Type:                "Crypto Transfer",
			Date:                "2025-01-06",
			Amount:              3124.50,
			Currency:            "USD",
			CounterpartyCountry: "United States",
			Description:         "Twelve small transfers to the same exchange within 24 hours; no declared crypto activity on the account.",
			RiskLevel:           domain.RiskMedium,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         2800,
				DocumentationAttached:  true,
				RiskRatingAtOnboarding: domain.RiskLow,
				CurrentRiskRating:      domain.RiskMedium,
				OutboundLast7d:         37494,
				Historical7dAvg:        3000,
				PeerPercentile:         88,
				TotalOutbound90d:       52000,
				DeclaredMonthlyRevenue: 20000,
				DepositedInWindow:      55000,
				WindowMonths:           3,
			},
		},
		{
			ID:                  "ALRT-2024-010",
			Title:               "Single wire to high-risk jurisdiction (British Virgin Islands)",
			EntityName:          "Coastal Trading Inc",
			EntityID:            "CUST-40955",
			Type:                "Wire",
			Date:                "2024-09-30",
			Amount:              8750.25,
			Currency:            "USD",
			CounterpartyCountry: "British Virgin Islands",
			Description:         "First-time wire to the British Virgin Islands; documentation received and reviewed.",
			RiskLevel:           domain.RiskLow,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:           9100,
				ElevatedRiskJurisdiction: true,
				FirstTimeCountry:         true,
				DocumentationAttached:    true,
				RiskRatingAtOnboarding:   domain.RiskLow,
				CurrentRiskRating:        domain.RiskLow,
				OutboundLast7d:           8750.25,
				Historical7dAvg:          8000,
				PeerPercentile:           40,
				JurisdictionOutbound90d:  8750.25,
				TotalOutbound90d:         82000,
				DeclaredMonthlyRevenue:   35000,
				DepositedInWindow:        98000,
				WindowMonths:             3,
			},
		},
		{
			ID:                  "ALRT-2024-011",
			Title:               "Round-dollar ACH sequence",
			EntityName:          "Summit Logistics",
			EntityID:            "CUST-41420",
			Type:                "ACH",
			Date:                "2024-11-28",
			Amount:              5247.00,
			Currency:            "USD",
			CounterpartyCountry: "United States",
			Description:         "Three ACH credits in similar amounts over one week from a known payroll vendor.",
			RiskLevel:           domain.RiskLow,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         5100,
				DocumentationAttached:  true,
				RiskRatingAtOnboarding: domain.RiskLow,
				CurrentRiskRating:      domain.RiskLow,
				OutboundLast7d:         15741,
				Historical7dAvg:        15000,
				PeerPercentile:         35,
				TotalOutbound90d:       190000,
				DeclaredMonthlyRevenue: 80000,
				DepositedInWindow:      230000,
				WindowMonths:           3,
			},
		},
		{
			ID:                  "ALRT-2024-012",
			Title:               "Elevated cash deposit (below threshold)",
			EntityName:          "Family Market Corp",
			EntityID:            "CUST-43716",
			Type:                "Cash Deposit",
			Date:                "2025-01-12",
			Amount:              7183.50,
			Currency:            "USD",
			CounterpartyCountry: "United States",
			Description:         "Single deposit below the CTR threshold; consistent with declared retail activity.",
			RiskLevel:           domain.RiskLow,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         6400,
				DocumentationAttached:  true,
				RiskRatingAtOnboarding: domain.RiskLow,
				CurrentRiskRating:      domain.RiskLow,
				OutboundLast7d:         7183.50,
				Historical7dAvg:        6000,
				PeerPercentile:         50,
				TotalOutbound90d:       76000,
				DeclaredMonthlyRevenue: 28000,
				DepositedInWindow:      81000,
				WindowMonths:           3,
			},
		},
		{
			ID:                  "ALRT-2024-013",
			Title:               "New counterparty – EU wire",
			EntityName:          "Euro Parts GmbH",
			EntityID:            "CUST-42289",
			Type:                "Wire",
			Date:                "2024-12-19",
			Amount:              12480.90,
			Currency:            "USD",
			CounterpartyCountry: "Germany",
			Description:         "First payment to a new German supplier; documentation on file.",
			RiskLevel:           domain.RiskLow,
			Status:              domain.CaseOpen,
			Profile: domain.CaseProfile{
				AvgOutbound90d:         11800,
				FirstTimeBeneficiary:   true,
				DocumentationAttached:  true,
				RiskRatingAtOnboarding: domain.RiskLow,
				CurrentRiskRating:      domain.RiskLow,
				OutboundLast7d:         12480.90,
				Historical7dAvg:        11000,
				PeerPercentile:         45,
				TotalOutbound90d:       140000,
				DeclaredMonthlyRevenue: 60000,
				DepositedInWindow:      170000,
				WindowMonths:           3,
			},
		},
	}
}

// Seed saves the demo cases when the repository holds no cases.
// It returns the number of cases written.
func Seed(ctx context.Context, repo domain.Repository, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := repo.ListCases(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list cases: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("case table not empty, skipping fixtures", "cases", len(existing))
		return 0, nil
	}

	cases := Cases()
	for _, c := range cases {
		if err := repo.SaveCase(ctx, c); err != nil {
			return 0, fmt.Errorf("failed to seed case %s: %w", c.ID, err)
		}
	}

	logger.Info("seeded demo cases", "count", len(cases))
	return len(cases), nil
}
